package routes

import (
	"context"
	"fmt"
	"net/http"

	"tipjar/crypto"
	"tipjar/services/indexer"
)

const (
	defaultTopCreators = 10
	maxTopCreators     = 100
	defaultTipperTips  = 50
)

// Analytics serves aggregate reads from the SQL mirror.
type Analytics interface {
	TopCreators(ctx context.Context, limit int) ([]indexer.Creator, error)
	TipsByTipper(ctx context.Context, tipper string, limit int) ([]indexer.Tip, error)
	Creator(ctx context.Context, address string) (*indexer.Creator, bool, error)
}

type analyticsRoutes struct {
	source  Analytics
	maxTips uint64
}

func boundedLimit(r *http.Request, fallback, ceiling uint64) (int, error) {
	limit, err := uintQuery(r, "limit", fallback)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		limit = fallback
	}
	if limit > ceiling {
		return 0, fmt.Errorf("limit exceeds maximum of %d", ceiling)
	}
	return int(limit), nil
}

func (a *analyticsRoutes) topCreators(w http.ResponseWriter, r *http.Request) {
	limit, err := boundedLimit(r, defaultTopCreators, maxTopCreators)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creators, err := a.source.TopCreators(r.Context(), limit)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if creators == nil {
		creators = []indexer.Creator{}
	}
	writeJSON(w, http.StatusOK, creators)
}

func (a *analyticsRoutes) tipsByTipper(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fallback := uint64(defaultTipperTips)
	if fallback > a.maxTips {
		fallback = a.maxTips
	}
	limit, err := boundedLimit(r, fallback, a.maxTips)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tips, err := a.source.TipsByTipper(r.Context(), crypto.FormatAccount(account), limit)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if tips == nil {
		tips = []indexer.Tip{}
	}
	writeJSON(w, http.StatusOK, tips)
}

func (a *analyticsRoutes) creator(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	row, ok, err := a.source.Creator(r.Context(), crypto.FormatAccount(account))
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "creator not mirrored")
		return
	}
	writeJSON(w, http.StatusOK, row)
}
