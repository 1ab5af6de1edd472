package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"tipjar/core"
	"tipjar/crypto"
	"tipjar/native/tipjar"
	"tipjar/storage"
)

const testJWTSecret = "rpc-test-secret"

var (
	creatorAcct = crypto.DeriveAccount("rpc-creator")
	tipperAcct  = crypto.DeriveAccount("rpc-tipper")
	brokeAcct   = crypto.DeriveAccount("rpc-broke")
)

type testEnv struct {
	node   *core.Node
	hub    *EventHub
	server *httptest.Server
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	hub := NewEventHub()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Emitter:      hub,
		Genesis:      map[[20]byte]*big.Int{tipperAcct: big.NewInt(5_000_000)},
		FaucetAmount: big.NewInt(100_000),
	})
	require.NoError(t, err)
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testJWTSecret
	}
	srv := NewServer(node, hub, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		hub.Close()
	})
	return &testEnv{node: node, hub: hub, server: ts}
}

func (e *testEnv) client(t *testing.T, account [20]byte) *Client {
	t.Helper()
	token, err := IssueToken(testJWTSecret, account, time.Hour)
	require.NoError(t, err)
	return NewClient(e.server.URL, token)
}

func rpcCode(t *testing.T, err error) int {
	t.Helper()
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "expected RPC error, got %v", err)
	return rpcErr.Code
}

func TestRPCTipFlow(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	creator := env.client(t, creatorAcct)
	tipper := env.client(t, tipperAcct)
	creatorAddr := crypto.FormatAccount(creatorAcct)
	tipperAddr := crypto.FormatAccount(tipperAcct)

	var ok bool
	require.NoError(t, creator.Call(ctx, "tipjar_registerCreator", registerCreatorParams{DisplayName: "Test Creator"}, &ok))
	require.True(t, ok)

	msg := "Great content!"
	var sent SendTipResult
	require.NoError(t, tipper.Call(ctx, "tipjar_sendTip", sendTipParams{Recipient: creatorAddr, Amount: "50000", Message: &msg}, &sent))
	require.Equal(t, uint64(1), sent.ID)
	require.NoError(t, tipper.Call(ctx, "tipjar_sendTip", sendTipParams{Recipient: creatorAddr, Amount: "30000"}, &sent))
	require.Equal(t, uint64(2), sent.ID)

	var info CreatorResult
	require.NoError(t, tipper.Call(ctx, "tipjar_getCreatorInfo", accountParams{Account: creatorAddr}, &info))
	require.Equal(t, "Test Creator", info.DisplayName)
	require.Equal(t, "80000", info.TotalReceived)
	require.Equal(t, uint64(2), info.TipCount)

	var tip TipResult
	require.NoError(t, tipper.Call(ctx, "tipjar_getTip", tipParams{ID: 1}, &tip))
	require.Equal(t, tipperAddr, tip.Tipper)
	require.NotNil(t, tip.Message)
	require.Equal(t, msg, *tip.Message)
	require.Len(t, tip.Receipt, 64)

	var ids []uint64
	require.NoError(t, tipper.Call(ctx, "tipjar_getCreatorTipIds", accountParams{Account: creatorAddr}, &ids))
	require.Equal(t, []uint64{1, 2}, ids)

	var recent []TipResult
	require.NoError(t, tipper.Call(ctx, "tipjar_getRecentTips", recentTipsParams{Creator: creatorAddr, Limit: 5}, &recent))
	require.Len(t, recent, 2)
	require.Equal(t, uint64(2), recent[0].ID)
	require.Nil(t, recent[0].Message)

	var stats TipperStatsResult
	require.NoError(t, tipper.Call(ctx, "tipjar_getTipperStats", tipperStatsParams{Creator: creatorAddr, Tipper: tipperAddr}, &stats))
	require.Equal(t, "80000", stats.TotalTipped)
	require.Equal(t, uint64(2), stats.TipCount)

	var platform PlatformStatsResult
	require.NoError(t, tipper.Call(ctx, "tipjar_getPlatformStats", nil, &platform))
	require.Equal(t, uint64(2), platform.TotalTips)
	require.Equal(t, "80000", platform.TotalVolume)

	var counter uint64
	require.NoError(t, tipper.Call(ctx, "tipjar_getTipCounter", nil, &counter))
	require.Equal(t, uint64(2), counter)

	var balance BalanceResult
	require.NoError(t, tipper.Call(ctx, "tipjar_getBalance", accountParams{Account: tipperAddr}, &balance))
	require.Equal(t, "4920000", balance.Balance)
}

func TestRPCLedgerErrorCodes(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	creator := env.client(t, creatorAcct)
	tipper := env.client(t, tipperAcct)
	broke := env.client(t, brokeAcct)
	creatorAddr := crypto.FormatAccount(creatorAcct)
	tipperAddr := crypto.FormatAccount(tipperAcct)

	require.Equal(t, 105, rpcCode(t, creator.Call(ctx, "tipjar_registerCreator", registerCreatorParams{DisplayName: strings.Repeat("n", 51)}, nil)))
	require.NoError(t, creator.Call(ctx, "tipjar_registerCreator", registerCreatorParams{DisplayName: strings.Repeat("n", 50)}, nil))
	require.Equal(t, 101, rpcCode(t, creator.Call(ctx, "tipjar_registerCreator", registerCreatorParams{DisplayName: "again"}, nil)))
	require.Equal(t, 102, rpcCode(t, tipper.Call(ctx, "tipjar_updateDisplayName", updateDisplayNameParams{NewName: "x"}, nil)))

	cases := []struct {
		client    *Client
		recipient string
		amount    string
		message   *string
		code      int
	}{
		{tipper, tipperAddr, "50000", nil, 102},
		{creator, creatorAddr, "50000", nil, 100},
		{tipper, creatorAddr, "9999", nil, 103},
		{tipper, creatorAddr, "-5", nil, 103},
		{tipper, creatorAddr, "1000000001", nil, 103},
		{broke, creatorAddr, "50000", nil, 104},
	}
	long := strings.Repeat("m", 281)
	cases = append(cases, struct {
		client    *Client
		recipient string
		amount    string
		message   *string
		code      int
	}{tipper, creatorAddr, "50000", &long, 106})
	for _, tc := range cases {
		err := tc.client.Call(ctx, "tipjar_sendTip", sendTipParams{Recipient: tc.recipient, Amount: tc.amount, Message: tc.message}, nil)
		require.Equal(t, tc.code, rpcCode(t, err), "amount %s", tc.amount)
	}

	var counter uint64
	require.NoError(t, tipper.Call(ctx, "tipjar_getTipCounter", nil, &counter))
	require.Zero(t, counter)
}

func TestRPCAuthentication(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()

	anonymous := NewClient(env.server.URL, "")
	err := anonymous.Call(ctx, "tipjar_registerCreator", registerCreatorParams{DisplayName: "Anon"}, nil)
	require.Equal(t, codeUnauthorized, rpcCode(t, err))

	forged, err := IssueToken("other-secret", creatorAcct, time.Hour)
	require.NoError(t, err)
	err = NewClient(env.server.URL, forged).Call(ctx, "tipjar_registerCreator", registerCreatorParams{DisplayName: "Forged"}, nil)
	require.Equal(t, codeUnauthorized, rpcCode(t, err))

	err = anonymous.Call(ctx, "tipjar_registerCreator", registerCreatorParams{Caller: crypto.FormatAccount(creatorAcct), DisplayName: "Caller"}, nil)
	require.Equal(t, codeUnauthorized, rpcCode(t, err), "caller parameter must be ignored unless insecure callers are allowed")

	ok, err := env.node.IsCreator(creatorAcct)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRPCInsecureCaller(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AllowInsecureCaller: true})
	client := NewClient(env.server.URL, "")
	require.NoError(t, client.Call(context.Background(), "tipjar_registerCreator",
		registerCreatorParams{Caller: crypto.FormatAccount(creatorAcct), DisplayName: "Dev"}, nil))
	ok, err := env.node.IsCreator(creatorAcct)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRPCReadsReturnEmptyOnAbsence(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	client := NewClient(env.server.URL, "")
	unknown := crypto.FormatAccount(crypto.DeriveAccount("nobody"))

	var info *CreatorResult
	require.NoError(t, client.Call(ctx, "tipjar_getCreatorInfo", accountParams{Account: unknown}, &info))
	require.Nil(t, info)

	var tip *TipResult
	require.NoError(t, client.Call(ctx, "tipjar_getTip", tipParams{ID: 0}, &tip))
	require.Nil(t, tip)

	var ids []uint64
	require.NoError(t, client.Call(ctx, "tipjar_getCreatorTipIds", accountParams{Account: unknown}, &ids))
	require.Empty(t, ids)

	var recent []TipResult
	require.NoError(t, client.Call(ctx, "tipjar_getRecentTips", recentTipsParams{Creator: unknown, Limit: 10}, &recent))
	require.Empty(t, recent)

	var isCreator bool
	require.NoError(t, client.Call(ctx, "tipjar_isCreator", accountParams{Account: unknown}, &isCreator))
	require.False(t, isCreator)

	var stats *TipperStatsResult
	require.NoError(t, client.Call(ctx, "tipjar_getTipperStats", tipperStatsParams{Creator: unknown, Tipper: unknown}, &stats))
	require.Nil(t, stats)
}

func TestRPCRecentTipsRejectsLimitAboveMaximum(t *testing.T) {
	env := newTestEnv(t, ServerConfig{MaxRecentTips: 2})
	require.NoError(t, env.node.RegisterCreator(creatorAcct, "Creator"))
	for i := 0; i < 3; i++ {
		_, err := env.node.SendTip(tipperAcct, creatorAcct, big.NewInt(10_000), nil)
		require.NoError(t, err)
	}
	client := NewClient(env.server.URL, "")
	ctx := context.Background()

	var recent []TipResult
	require.NoError(t, client.Call(ctx, "tipjar_getRecentTips",
		recentTipsParams{Creator: crypto.FormatAccount(creatorAcct), Limit: 2}, &recent))
	require.Len(t, recent, 2)
	require.Equal(t, uint64(3), recent[0].ID)

	err := client.Call(ctx, "tipjar_getRecentTips",
		recentTipsParams{Creator: crypto.FormatAccount(creatorAcct), Limit: 10}, &recent)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "expected RPC error, got %v", err)
	require.Equal(t, codeInvalidParams, rpcErr.Code)
	require.Contains(t, rpcErr.Message, "maximum of 2")
}

func TestRPCFaucet(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	var balance BalanceResult
	require.NoError(t, env.client(t, brokeAcct).Call(context.Background(), "tipjar_faucet", nil, &balance))
	require.Equal(t, "100000", balance.Balance)
	require.Equal(t, crypto.FormatAccount(brokeAcct), balance.Address)
}

func TestRPCRejectsMalformedRequests(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, err := http.Get(env.server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	post := func(body string) (int, RPCResponse) {
		resp, err := http.Post(env.server.URL, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.NotEmpty(t, resp.Header.Get(requestIDHeader))
		var decoded RPCResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return resp.StatusCode, decoded
	}

	status, decoded := post("{not json")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeParseError, decoded.Error.Code)

	status, decoded = post(`{"jsonrpc":"2.0","id":1,"method":"tipjar_nope"}`)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)

	status, decoded = post(`{"jsonrpc":"2.0","id":1,"method":"tipjar_getTip","params":[]}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)

	status, decoded = post(`{"jsonrpc":"2.0","id":1,"method":"tipjar_getCreatorInfo","params":[{"account":"eth1xyz"}]}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)
}

func TestEventStreamDeliversCommittedTips(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?type=" + tipjar.EventTypeTipSent
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, env.node.RegisterCreator(creatorAcct, "Creator"))
	_, err = env.node.SendTip(brokeAcct, creatorAcct, big.NewInt(10_000), nil)
	require.Error(t, err)
	_, err = env.node.SendTip(tipperAcct, creatorAcct, big.NewInt(20_000), nil)
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt StreamEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, tipjar.EventTypeTipSent, evt.Type)
	require.Equal(t, "1", evt.Attributes["id"])
	require.Equal(t, "20000", evt.Attributes["amount"])
	require.Equal(t, crypto.FormatAccount(tipperAcct), evt.Attributes["tipper"])
}
