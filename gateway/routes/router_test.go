package routes

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tipjar/core"
	"tipjar/crypto"
	"tipjar/gateway/middleware"
	"tipjar/integrations/exports"
	"tipjar/rpc"
	"tipjar/storage"
)

var (
	creator = crypto.DeriveAccount("gateway-creator")
	tipper  = crypto.DeriveAccount("gateway-tipper")
)

func newGateway(t *testing.T, cfg Config) (*core.Node, http.Handler) {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Genesis: map[[20]byte]*big.Int{tipper: big.NewInt(10_000_000)},
	})
	require.NoError(t, err)
	cfg.Node = node
	handler, err := New(cfg)
	require.NoError(t, err)
	return node, handler
}

func seedTips(t *testing.T, node *core.Node, amounts ...int64) {
	t.Helper()
	require.NoError(t, node.RegisterCreator(creator, "Gateway Creator"))
	for i, amount := range amounts {
		var msg *string
		if i == 0 {
			m := "first"
			msg = &m
		}
		_, err := node.SendTip(tipper, creator, big.NewInt(amount), msg)
		require.NoError(t, err)
	}
}

func get(t *testing.T, handler http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestGatewayCreatorAndTips(t *testing.T) {
	node, handler := newGateway(t, Config{})
	seedTips(t, node, 50_000, 30_000)
	addr := crypto.FormatAccount(creator)

	res := get(t, handler, "/v1/creators/"+addr, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, res.Header().Get(middleware.RequestIDHeader))
	var profile rpc.CreatorResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &profile))
	require.Equal(t, "Gateway Creator", profile.DisplayName)
	require.Equal(t, "80000", profile.TotalReceived)

	res = get(t, handler, "/v1/creators/"+addr+"/tips?limit=1", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var recent []rpc.TipResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &recent))
	require.Len(t, recent, 1)
	require.Equal(t, uint64(2), recent[0].ID)

	res = get(t, handler, "/v1/creators/"+addr+"/tip-ids", nil)
	require.JSONEq(t, "[1,2]", res.Body.String())

	res = get(t, handler, "/v1/creators/"+addr+"/tippers/"+crypto.FormatAccount(tipper), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var stats rpc.TipperStatsResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &stats))
	require.Equal(t, uint64(2), stats.TipCount)

	res = get(t, handler, "/v1/tips/1", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var tip rpc.TipResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &tip))
	require.NotNil(t, tip.Message)
	require.Equal(t, "first", *tip.Message)

	res = get(t, handler, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var platform statsResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &platform))
	require.Equal(t, uint64(2), platform.TotalTips)
	require.Equal(t, "80000", platform.TotalVolume)
	require.Equal(t, uint64(2), platform.TipCounter)

	res = get(t, handler, "/v1/accounts/"+crypto.FormatAccount(tipper)+"/balance", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"balance":"9920000"`)
}

func TestGatewayNotFoundAndBadInput(t *testing.T) {
	_, handler := newGateway(t, Config{})
	unknown := crypto.FormatAccount(crypto.DeriveAccount("unknown"))

	require.Equal(t, http.StatusNotFound, get(t, handler, "/v1/creators/"+unknown, nil).Code)
	require.Equal(t, http.StatusNotFound, get(t, handler, "/v1/tips/7", nil).Code)
	require.Equal(t, http.StatusNotFound, get(t, handler, "/v1/creators/"+unknown+"/tippers/"+unknown, nil).Code)
	require.Equal(t, http.StatusBadRequest, get(t, handler, "/v1/creators/not-an-address", nil).Code)
	require.Equal(t, http.StatusBadRequest, get(t, handler, "/v1/tips/abc", nil).Code)
	require.Equal(t, http.StatusBadRequest, get(t, handler, "/v1/creators/"+unknown+"/tips?limit=-1", nil).Code)

	res := get(t, handler, "/v1/creators/"+unknown+"/tip-ids", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, "[]", res.Body.String())

	res = get(t, handler, "/v1/creators/"+unknown+"/tips", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, "[]", res.Body.String())
}

func TestGatewayRecentTipsRejectsLimitAboveMaximum(t *testing.T) {
	node, handler := newGateway(t, Config{MaxRecentTips: 2})
	seedTips(t, node, 10_000, 20_000, 30_000)
	path := "/v1/creators/" + crypto.FormatAccount(creator) + "/tips"

	res := get(t, handler, path+"?limit=2", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var recent []rpc.TipResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &recent))
	require.Len(t, recent, 2)
	require.Equal(t, uint64(3), recent[0].ID)
	require.Equal(t, uint64(2), recent[1].ID)

	res = get(t, handler, path+"?limit=100", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "maximum of 2")
}

func TestGatewayExports(t *testing.T) {
	node, handler := newGateway(t, Config{MaxExportTips: 2})
	seedTips(t, node, 10_000, 20_000, 30_000)

	res := get(t, handler, "/v1/exports/tips", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "text/csv", res.Header().Get("Content-Type"))
	require.Equal(t, exports.Checksum(res.Body.Bytes()), res.Header().Get(checksumHeader))
	lines := strings.Split(strings.TrimSpace(res.Body.String()), "\n")
	require.Len(t, lines, 3, "header plus the first two tips")
	require.Contains(t, res.Header().Get("Content-Disposition"), "tips-1-2.csv")

	res = get(t, handler, "/v1/exports/tips?format=jsonl&from=3", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, 1, strings.Count(strings.TrimSpace(res.Body.String()), "\n")+1)
	require.Contains(t, res.Body.String(), `"id":3`)

	res = get(t, handler, "/v1/exports/tips?format=parquet", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.True(t, strings.HasPrefix(res.Body.String(), "PAR1"))

	require.Equal(t, http.StatusBadRequest, get(t, handler, "/v1/exports/tips?format=xml", nil).Code)
}

func TestGatewayExportsRequireToken(t *testing.T) {
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "gw-secret", Issuer: "tipjar"}, nil)
	_, handler := newGateway(t, Config{Authenticator: auth})

	require.Equal(t, http.StatusUnauthorized, get(t, handler, "/v1/exports/tips", nil).Code)
	require.Equal(t, http.StatusOK, get(t, handler, "/v1/stats", nil).Code, "reads stay public")

	token, err := rpc.IssueToken("gw-secret", tipper, time.Minute)
	require.NoError(t, err)
	res := get(t, handler, "/v1/exports/tips", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.Code)
}

func TestGatewayRateLimitsReads(t *testing.T) {
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		RateLimitReads: {RatePerSecond: 1, Burst: 1},
	}, nil)
	_, handler := newGateway(t, Config{RateLimiter: limiter})

	require.Equal(t, http.StatusOK, get(t, handler, "/v1/stats", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, get(t, handler, "/v1/stats", nil).Code)
	require.Equal(t, http.StatusOK, get(t, handler, "/healthz", nil).Code)
}

func TestGatewayMetricsEndpoint(t *testing.T) {
	obs := middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true}, nil)
	_, handler := newGateway(t, Config{Observability: obs})

	require.Equal(t, http.StatusOK, get(t, handler, "/v1/stats", nil).Code)
	res := get(t, handler, "/metrics", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "tipjar_module_requests_total")
}

func TestNewRequiresNode(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
