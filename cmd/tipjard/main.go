package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tipjar/config"
	"tipjar/core"
	"tipjar/core/events"
	"tipjar/gateway/middleware"
	"tipjar/gateway/routes"
	"tipjar/integrations/webhooks"
	"tipjar/observability/logging"
	telemetry "tipjar/observability/otel"
	"tipjar/rpc"
	"tipjar/services/indexer"
	"tipjar/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("tipjard stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.SetupWithOptions("tipjard", cfg.Environment, logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Level:      logging.ParseLevel(cfg.Logging.Level),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "tipjard",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	hub := rpc.NewEventHub()
	defer hub.Close()
	fanout := events.NewFanout(hub)
	if cfg.Telemetry.Metrics {
		recorder, err := telemetry.NewEventRecorder(nil)
		if err != nil {
			return err
		}
		fanout.Add(recorder)
	}

	var idx *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		sqlDB, err := indexer.Open(dsn)
		if err != nil {
			return err
		}
		idx, err = indexer.New(sqlDB, indexer.WithLogger(logger), indexer.WithQueueSize(cfg.Indexer.QueueSize))
		if err != nil {
			return err
		}
		defer idx.Close()
		fanout.Add(idx)
	}

	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		dispatcher, err := webhooks.NewDispatcher(url, []byte(cfg.Webhook.Secret),
			webhooks.WithEventTypes(cfg.Webhook.EventTypes...),
			webhooks.WithLogger(logger))
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		fanout.Add(dispatcher)
	}

	genesis, err := cfg.GenesisBalances()
	if err != nil {
		return err
	}
	faucet, err := cfg.Faucet()
	if err != nil {
		return err
	}
	node, err := core.NewNode(db, core.Options{
		Emitter:      fanout,
		Genesis:      genesis,
		FaucetAmount: faucet,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	if idx != nil {
		if err := backfillIndexer(ctx, node, idx, logger); err != nil {
			logger.Error("indexer backfill failed", slog.String("error", err.Error()))
		}
	}

	rpcServer := rpc.NewServer(node, hub, rpc.ServerConfig{
		JWTSecret:           cfg.RPC.JWTSecret,
		AllowInsecureCaller: cfg.RPC.AllowInsecureCaller,
		MaxConnections:      cfg.RPC.MaxConnections,
		ReadTimeout:         time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
		WriteTimeout:        time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
		MaxRecentTips:       cfg.Gateway.MaxRecentTips,
		Logger:              logger,
	})
	errCh := make(chan error, 2)
	go func() {
		if err := rpcServer.Start(cfg.RPC.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()

	var gatewayServer *http.Server
	if addr := strings.TrimSpace(cfg.Gateway.Address); addr != "" {
		handler, err := newGateway(cfg, node, idx, logger)
		if err != nil {
			return err
		}
		gatewayServer = &http.Server{
			Addr:              addr,
			Handler:           telemetry.WrapHandler(handler, "tipjar-gateway"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
		}
		go func() {
			logger.Info("gateway listening", slog.String("address", addr))
			if err := gatewayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("gateway server: %w", err)
			}
		}()
	}

	go runBlockTicker(ctx, node, cfg.BlockInterval(), logger)

	logger.Info("tipjard started",
		slog.String("network", cfg.NetworkName),
		slog.String("storage", cfg.StorageBackend),
		slog.Uint64("height", node.Height()))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown", slog.String("error", err.Error()))
	}
	if gatewayServer != nil {
		if err := gatewayServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown", slog.String("error", err.Error()))
		}
	}
	return runErr
}

func newGateway(cfg *config.Config, node *core.Node, idx *indexer.Indexer, logger *slog.Logger) (http.Handler, error) {
	limits := map[string]middleware.RateLimit{
		routes.RateLimitReads: {
			RatePerSecond: cfg.Gateway.RateLimitPerSecond,
			Burst:         cfg.Gateway.RateLimitBurst,
		},
		routes.RateLimitExports: {RatePerSecond: 1, Burst: 2},
	}
	routeCfg := routes.Config{
		Node: node,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    strings.TrimSpace(cfg.RPC.JWTSecret) != "",
			HMACSecret: cfg.RPC.JWTSecret,
			Issuer:     rpc.TokenIssuer,
		}, logger),
		RateLimiter:   middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true}, logger),
		MaxRecentTips: cfg.Gateway.MaxRecentTips,
	}
	if idx != nil {
		routeCfg.Analytics = idx
	}
	return routes.New(routeCfg)
}

func runBlockTicker(ctx context.Context, node *core.Node, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := node.AdvanceHeight(); err != nil {
				logger.Error("advance height failed", slog.String("error", err.Error()))
			}
		}
	}
}

// backfillIndexer mirrors tips, and the profiles of their recipients,
// committed while the indexer was offline.
func backfillIndexer(ctx context.Context, node *core.Node, idx *indexer.Indexer, logger *slog.Logger) error {
	last, err := idx.LastTipID(ctx)
	if err != nil {
		return err
	}
	counter, err := node.TipCounter()
	if err != nil {
		return err
	}
	if counter <= last {
		return nil
	}
	tips, err := node.Tips(last+1, counter)
	if err != nil {
		return err
	}
	inserted, err := idx.Backfill(ctx, node, tips)
	if err != nil {
		return err
	}
	logger.Info("indexer backfilled", slog.Int("tips", inserted), slog.Uint64("from", last+1), slog.Uint64("to", counter))
	return nil
}
