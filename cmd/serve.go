package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/api"
	"github.com/stalehq/staleness/internal/cache"
	"github.com/stalehq/staleness/internal/clock/system"
	"github.com/stalehq/staleness/internal/config"
	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/engine"
	"github.com/stalehq/staleness/internal/extract"
	"github.com/stalehq/staleness/internal/fetch"
	"github.com/stalehq/staleness/internal/headercache"
	"github.com/stalehq/staleness/internal/kvstore"
	kvMemory "github.com/stalehq/staleness/internal/kvstore/memory"
	kvPostgres "github.com/stalehq/staleness/internal/kvstore/postgres"
	kvSqlite "github.com/stalehq/staleness/internal/kvstore/sqlite"
	"github.com/stalehq/staleness/internal/license"
	"github.com/stalehq/staleness/internal/logging"
	"github.com/stalehq/staleness/internal/metrics"
	"github.com/stalehq/staleness/internal/prefs"
	"github.com/stalehq/staleness/internal/quota"
	"github.com/stalehq/staleness/internal/sched"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the freshness HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			logger.Warn("store close failed", zap.Error(closeErr))
		}
	}()

	clock := system.New()
	parser := dateparse.New(clock)

	cacheStore := cache.New(kv, clock, cacheConfig(cfg), logger)
	headers := headercache.New()
	fetcher := fetch.NewFetcher(fetch.FetcherConfig{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})
	pipeline := extract.NewPipeline(
		extract.DeepExtractors(parser, clock),
		extract.DefaultPipelineConfig(),
		logger,
	)
	retriever := fetch.NewRetriever(fetcher, cacheStore, headers, pipeline, clock, logger)

	quotaMgr := quota.New(kv, clock, cfg.Quota.DailyLimit, logger)
	licenseMgr := license.New(kv, license.Config{
		VerifyURL: cfg.License.VerifyURL,
		Timeout:   time.Duration(cfg.License.TimeoutSeconds) * time.Second,
	}, logger)
	prefsMgr := prefs.New(kv, logger)

	eng := engine.New(quotaMgr, cacheStore, retriever, headers, licenseMgr, prefsMgr, clock, logger)

	scheduler := sched.NewCron(logger)
	scheduler.Daily("quota-reset", "00:00", func() {
		if _, err := quotaMgr.Reset(context.Background()); err != nil {
			logger.Warn("scheduled quota reset failed", zap.Error(err))
		}
	})
	scheduler.Every("cache-sweep", time.Duration(cfg.Cache.SweepHours)*time.Hour, func() {
		removed := cacheStore.Sweep(context.Background())
		logger.Info("cache sweep finished", zap.Int("removed", removed))
	})
	if cfg.License.VerifyURL != "" {
		scheduler.Every("license-revalidate", time.Duration(cfg.License.RevalidateHours)*time.Hour, func() {
			licenseMgr.Revalidate(context.Background())
		})
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(eng, cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return kvMemory.New(), nil
	case "sqlite":
		return kvSqlite.Open(cfg.Store.Path)
	case "postgres":
		return kvPostgres.New(ctx, kvPostgres.Config{
			DSN:   cfg.Store.DSN,
			Table: cfg.Store.Table,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func cacheConfig(cfg config.Config) cache.Config {
	return cache.Config{
		PositiveTTL: time.Duration(cfg.Cache.PositiveTTLHours) * time.Hour,
		NegativeTTL: time.Duration(cfg.Cache.NegativeTTLHours) * time.Hour,
		MaxAge:      time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour,
		MaxEntries:  cfg.Cache.MaxEntries,
	}
}
