package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingsync/internal/api"
	"bookingsync/internal/clock"
	"bookingsync/internal/connectivity"
	"bookingsync/internal/database"
	"bookingsync/internal/domain"
	"bookingsync/internal/events"
	"bookingsync/internal/metrics"
	"bookingsync/internal/queue"
	"bookingsync/internal/repository"
	"bookingsync/internal/service"
	"bookingsync/internal/syncer"
	"bookingsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine, connectivity prober and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, logger, closer, err := loadConfigAndLogger(configPath, "syncd")
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	res := &resources{}
	defer res.Close()

	if err := openDatabase(cfg, res, &logger); err != nil {
		return err
	}
	cache, err := buildCache(ctx, cfg, res, &logger)
	if err != nil {
		return err
	}
	store, err := buildRemote(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	clk := clock.New()
	bus := events.NewBus[events.SyncEvent]()
	bus.Subscribe(func(ev events.SyncEvent) {
		data, err := ev.JSON()
		if err != nil {
			return
		}
		logger.Debug().RawJSON("event", data).Msg("sync event")
	})

	var recorder domain.CycleRecorder
	var cycles api.CycleLister
	if res.db != nil {
		recorder = res.db
		cycles = res.db
	}

	q := queue.New()
	cleanup := service.NewCleanupService(cache, &logger)
	committer := syncer.NewCommitter(store, cleanup, cfg.Sync, &logger)
	policy := worker.PolicyFromConfig(cfg.Sync)
	syncWorker := worker.NewSyncWorker(q, committer, clk, policy, bus, recorder, &logger)

	sig := connectivity.NewManualSignal()
	monitor := connectivity.NewMonitor(sig, clk, cfg.Sync.ReconnectSettleDelay(), &logger)
	prober := connectivity.NewProber(store, sig, cfg.Connectivity.ProbeInterval(), cfg.Connectivity.ProbeTimeout(), &logger)
	monitor.Subscribe(func(online bool) {
		ev := logger.Info().Bool("online", online)
		if f, ok := cache.(*repository.FailoverCacheRepository); ok {
			ev = ev.Bool("cache_degraded", f.Degraded())
		}
		ev.Msg("connectivity changed")
	})

	svc := service.NewOfflineService(q, cleanup, syncWorker, monitor, clk, &logger)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start offline service: %w", err)
	}
	defer svc.Stop()

	go prober.Run(ctx)

	if res.db != nil && cfg.Database.Backup.Enabled {
		backup := database.NewBackupService(res.db, cfg.Database.Backup, &logger)
		go backup.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	var httpServer *api.HTTPServer
	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(ctx, cfg.API, svc, cycles, bus, clk, &logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Str("cache", cfg.Cache.Backend).
		Str("remote", cfg.Remote.Driver).
		Int("http_port", cfg.API.HTTP.Port).
		Durs("backoff", policy.Schedule()).
		Msg("sync daemon started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	st := svc.Status()
	logger.Info().Int("pending", st.QueueLength).Msg("sync daemon stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
