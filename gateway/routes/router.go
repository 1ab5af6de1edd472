package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tipjar/core"
	"tipjar/gateway/middleware"
)

const (
	DefaultRecentTips    = 20
	DefaultMaxRecentTips = 500
	DefaultMaxExportTips = 10_000
)

// Rate limit keys understood by the router.
const (
	RateLimitReads   = "reads"
	RateLimitExports = "exports"
)

type Config struct {
	Node          *core.Node
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	MaxRecentTips uint64
	MaxExportTips uint64
	// Analytics enables the /v1/analytics routes when set.
	Analytics Analytics
}

// New builds the read-only REST gateway over the node's query surface.
func New(cfg Config) (http.Handler, error) {
	if cfg.Node == nil {
		return nil, errors.New("gateway: node required")
	}
	api := &tipjarRoutes{
		node:          cfg.Node,
		maxRecentTips: cfg.MaxRecentTips,
		maxExportTips: cfg.MaxExportTips,
	}
	if api.maxRecentTips == 0 {
		api.maxRecentTips = DefaultMaxRecentTips
	}
	if api.maxExportTips == 0 {
		api.maxExportTips = DefaultMaxExportTips
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return passthrough
		}
		return cfg.RateLimiter.Middleware(key)
	}
	observe := func(route string) func(http.Handler) http.Handler {
		if obs == nil {
			return passthrough
		}
		return obs.Middleware(route)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	r.Route("/v1", func(sr chi.Router) {
		sr.Group(func(g chi.Router) {
			g.Use(limit(RateLimitReads))
			g.With(observe("creator")).Get("/creators/{address}", api.getCreator)
			g.With(observe("creator_tips")).Get("/creators/{address}/tips", api.getRecentTips)
			g.With(observe("creator_tip_ids")).Get("/creators/{address}/tip-ids", api.getCreatorTipIDs)
			g.With(observe("tipper_stats")).Get("/creators/{address}/tippers/{tipper}", api.getTipperStats)
			g.With(observe("tip")).Get("/tips/{id}", api.getTip)
			g.With(observe("stats")).Get("/stats", api.getStats)
			g.With(observe("balance")).Get("/accounts/{address}/balance", api.getBalance)
			if cfg.Analytics != nil {
				stats := &analyticsRoutes{source: cfg.Analytics, maxTips: api.maxRecentTips}
				g.With(observe("analytics_top_creators")).Get("/analytics/top-creators", stats.topCreators)
				g.With(observe("analytics_creator")).Get("/analytics/creators/{address}", stats.creator)
				g.With(observe("analytics_tipper_tips")).Get("/analytics/tippers/{address}/tips", stats.tipsByTipper)
			}
		})
		sr.Group(func(g chi.Router) {
			g.Use(limit(RateLimitExports))
			if cfg.Authenticator != nil {
				g.Use(cfg.Authenticator.Middleware())
			}
			g.With(observe("export_tips")).Get("/exports/tips", api.exportTips)
		})
	})

	return r, nil
}

func passthrough(next http.Handler) http.Handler { return next }
