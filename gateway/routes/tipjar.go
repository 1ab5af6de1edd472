package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tipjar/core"
	"tipjar/crypto"
	"tipjar/integrations/exports"
	"tipjar/rpc"
)

const checksumHeader = "X-Checksum-Blake3"

type tipjarRoutes struct {
	node          *core.Node
	maxRecentTips uint64
	maxExportTips uint64
}

type statsResponse struct {
	rpc.PlatformStatsResult
	TipCounter uint64 `json:"tipCounter"`
	Height     uint64 `json:"height"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Default().Error("gateway query failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func accountParam(r *http.Request, name string) ([20]byte, error) {
	account, err := crypto.ParseAccount(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		return account, fmt.Errorf("invalid %s: %w", name, err)
	}
	return account, nil
}

func uintQuery(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return value, nil
}

func (t *tipjarRoutes) getCreator(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile, ok, err := t.node.CreatorInfo(account)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "creator not registered")
		return
	}
	writeJSON(w, http.StatusOK, rpc.FormatCreator(account, profile))
}

func (t *tipjarRoutes) getRecentTips(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fallback := uint64(DefaultRecentTips)
	if fallback > t.maxRecentTips {
		fallback = t.maxRecentTips
	}
	limit, err := uintQuery(r, "limit", fallback)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > t.maxRecentTips {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit exceeds maximum of %d", t.maxRecentTips))
		return
	}
	tips, err := t.node.RecentTips(account, limit)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.FormatTips(tips))
}

func (t *tipjarRoutes) getCreatorTipIDs(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids, err := t.node.CreatorTipIDs(account)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (t *tipjarRoutes) getTipperStats(w http.ResponseWriter, r *http.Request) {
	creator, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tipper, err := accountParam(r, "tipper")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, ok, err := t.node.TipperStats(creator, tipper)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no tips from tipper")
		return
	}
	writeJSON(w, http.StatusOK, rpc.FormatTipperStats(stats))
}

func (t *tipjarRoutes) getTip(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tip id")
		return
	}
	tip, ok, err := t.node.Tip(id)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "tip not found")
		return
	}
	writeJSON(w, http.StatusOK, rpc.FormatTip(tip))
}

func (t *tipjarRoutes) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := t.node.PlatformStats()
	if err != nil {
		internalError(w, r, err)
		return
	}
	counter, err := t.node.TipCounter()
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		PlatformStatsResult: rpc.FormatPlatformStats(stats),
		TipCounter:          counter,
		Height:              t.node.Height(),
	})
}

func (t *tipjarRoutes) getBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := t.node.Balance(account)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.BalanceResult{Address: crypto.FormatAccount(account), Balance: balance.String()})
}

// exportTips streams tips with ids in [from, to] in the requested format. The
// range is truncated to maxExportTips entries.
func (t *tipjarRoutes) exportTips(w http.ResponseWriter, r *http.Request) {
	format := exports.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if format == "" {
		format = exports.FormatCSV
	}
	counter, err := t.node.TipCounter()
	if err != nil {
		internalError(w, r, err)
		return
	}
	from, err := uintQuery(r, "from", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := uintQuery(r, "to", counter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from == 0 {
		from = 1
	}
	if to > counter {
		to = counter
	}
	if to >= from && to-from+1 > t.maxExportTips {
		to = from + t.maxExportTips - 1
	}
	tips, err := t.node.Tips(from, to)
	if err != nil {
		internalError(w, r, err)
		return
	}
	data, checksum, err := exports.Tips(format, tips)
	if errors.Is(err, exports.ErrUnknownFormat) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tips-%d-%d.%s", from, to, format))
	w.Header().Set(checksumHeader, checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
