package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"tipjar/crypto"
)

type registerCreatorParams struct {
	Caller      string `json:"caller,omitempty"`
	DisplayName string `json:"displayName"`
}

type updateDisplayNameParams struct {
	Caller  string `json:"caller,omitempty"`
	NewName string `json:"newName"`
}

type sendTipParams struct {
	Caller    string  `json:"caller,omitempty"`
	Recipient string  `json:"recipient"`
	Amount    string  `json:"amount"`
	Message   *string `json:"message,omitempty"`
}

type accountParams struct {
	Caller  string `json:"caller,omitempty"`
	Account string `json:"account"`
}

type tipParams struct {
	ID uint64 `json:"id"`
}

type tipperStatsParams struct {
	Creator string `json:"creator"`
	Tipper  string `json:"tipper"`
}

type recentTipsParams struct {
	Creator string `json:"creator"`
	Limit   uint64 `json:"limit"`
}

func (s *Server) tipjarHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"tipjar_registerCreator":   s.handleRegisterCreator,
		"tipjar_updateDisplayName": s.handleUpdateDisplayName,
		"tipjar_sendTip":           s.handleSendTip,
		"tipjar_getCreatorInfo":    s.handleGetCreatorInfo,
		"tipjar_isCreator":         s.handleIsCreator,
		"tipjar_getTip":            s.handleGetTip,
		"tipjar_getTipCounter":     s.handleGetTipCounter,
		"tipjar_getPlatformStats":  s.handleGetPlatformStats,
		"tipjar_getTipperStats":    s.handleGetTipperStats,
		"tipjar_getCreatorTipIds":  s.handleGetCreatorTipIDs,
		"tipjar_getRecentTips":     s.handleGetRecentTips,
		"tipjar_getBalance":        s.handleGetBalance,
		"tipjar_faucet":            s.handleFaucet,
		"tipjar_status":            s.handleStatus,
	}
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func decodeAccount(field, value string) ([20]byte, *RPCError) {
	account, err := crypto.ParseAccount(strings.TrimSpace(value))
	if err != nil {
		return account, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address", field), Data: err.Error()}
	}
	return account, nil
}

// parseAmount accepts any base-10 integer. Range checks belong to the ledger so
// out-of-range values surface as InvalidAmount.
func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	return value, nil
}

func fail(w http.ResponseWriter, req *RPCRequest, status int, rpcErr *RPCError) {
	writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

func (s *Server) handleRegisterCreator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params registerCreatorParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	caller, rpcErr := s.authenticate(r, params.Caller)
	if rpcErr != nil {
		fail(w, req, http.StatusUnauthorized, rpcErr)
		return
	}
	if err := s.node.RegisterCreator(caller, params.DisplayName); err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleUpdateDisplayName(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params updateDisplayNameParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	caller, rpcErr := s.authenticate(r, params.Caller)
	if rpcErr != nil {
		fail(w, req, http.StatusUnauthorized, rpcErr)
		return
	}
	if err := s.node.UpdateDisplayName(caller, params.NewName); err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSendTip(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params sendTipParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	caller, rpcErr := s.authenticate(r, params.Caller)
	if rpcErr != nil {
		fail(w, req, http.StatusUnauthorized, rpcErr)
		return
	}
	recipient, rpcErr := decodeAccount("recipient", params.Recipient)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := s.node.SendTip(caller, recipient, amount, params.Message)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, SendTipResult{ID: id})
}

func (s *Server) handleGetCreatorInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	account, rpcErr := decodeAccount("account", params.Account)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	profile, ok, err := s.node.CreatorInfo(account)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, FormatCreator(account, profile))
}

func (s *Server) handleIsCreator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	account, rpcErr := decodeAccount("account", params.Account)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	ok, err := s.node.IsCreator(account)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handleGetTip(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tipParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	tip, ok, err := s.node.Tip(params.ID)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, FormatTip(tip))
}

func (s *Server) handleGetTipCounter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	counter, err := s.node.TipCounter()
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, counter)
}

func (s *Server) handleGetPlatformStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stats, err := s.node.PlatformStats()
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, FormatPlatformStats(stats))
}

func (s *Server) handleGetTipperStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tipperStatsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	creator, rpcErr := decodeAccount("creator", params.Creator)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	tipper, rpcErr := decodeAccount("tipper", params.Tipper)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	stats, ok, err := s.node.TipperStats(creator, tipper)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, FormatTipperStats(stats))
}

func (s *Server) handleGetCreatorTipIDs(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	account, rpcErr := decodeAccount("account", params.Account)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	ids, err := s.node.CreatorTipIDs(account)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeResult(w, req.ID, ids)
}

func (s *Server) handleGetRecentTips(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params recentTipsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	creator, rpcErr := decodeAccount("creator", params.Creator)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	if params.Limit > s.maxRecentTips {
		fail(w, req, http.StatusBadRequest, &RPCError{
			Code:    codeInvalidParams,
			Message: fmt.Sprintf("limit exceeds maximum of %d", s.maxRecentTips),
		})
		return
	}
	tips, err := s.node.RecentTips(creator, params.Limit)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, FormatTips(tips))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	account, rpcErr := decodeAccount("account", params.Account)
	if rpcErr != nil {
		fail(w, req, http.StatusBadRequest, rpcErr)
		return
	}
	balance, err := s.node.Balance(account)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: crypto.FormatAccount(account), Balance: bigString(balance)})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountParams
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			fail(w, req, http.StatusBadRequest, rpcErr)
			return
		}
	}
	caller, rpcErr := s.authenticate(r, params.Caller)
	if rpcErr != nil {
		fail(w, req, http.StatusUnauthorized, rpcErr)
		return
	}
	balance, err := s.node.Faucet(caller)
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: crypto.FormatAccount(caller), Balance: bigString(balance)})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	counter, err := s.node.TipCounter()
	if err != nil {
		s.writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, StatusResult{Height: s.node.Height(), TipCounter: counter})
}
