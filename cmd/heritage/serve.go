package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/internal/infrastructure/scheduler"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/scheduler/jobs"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// redriveBatch caps the dead letters retried per run.
const redriveBatch = 100

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the event consumers and the metrics endpoint until interrupted",
		Long: "serve keeps the engine's event handlers and journal running and " +
			"retries dead-lettered events every EVENT_REDRIVE_INTERVAL. With " +
			"REDIS_ENABLED it consumes the events of every instance. With " +
			"METRICS_ENABLED it serves /metrics and /healthz on METRICS_ADDR.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, runServe)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	var srv *http.Server
	errCh := make(chan error, 1)

	sched, err := startScheduler(ctx, a)
	if err != nil {
		return err
	}
	if sched != nil {
		defer func() { _ = sched.Stop() }()
	}

	if a.cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		mux.Handle("/healthz", a.health.Handler())
		srv = &http.Server{
			Addr:              a.cfg.Observability.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.log.Info("metrics server listening", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	a.log.Info("engine serving",
		logger.String("store", string(a.cfg.Store.Backend)),
		logger.Bool("redis", a.cfg.Redis.Enabled),
		logger.Bool("journal", a.cfg.Catalog.JournalDir != ""),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case runErr = <-errCh:
		a.log.Error("metrics server failed", logger.Err(runErr))
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("metrics server shutdown failed", logger.Err(err))
		}
	}
	return runErr
}

// startScheduler registers the background jobs: dead letter redrive and
// earn counter retries. It returns nil when EVENT_REDRIVE_INTERVAL is 0.
func startScheduler(ctx context.Context, a *app) (*scheduler.Scheduler, error) {
	interval := a.cfg.Engine.RedriveInterval
	if interval <= 0 {
		return nil, nil
	}

	sched := scheduler.New(scheduler.WithLogger(a.log), scheduler.WithObserver(a.metrics))
	job := jobs.NewRedriveDeadLettersJob(a.dispatcher, a.metrics, redriveBatch, a.log)
	if err := sched.Register(job, scheduler.Every(interval)); err != nil {
		return nil, err
	}
	counters := jobs.NewRetryEarnCountersJob(a.ledger, a.log)
	if err := sched.Register(counters, scheduler.Every(interval)); err != nil {
		return nil, err
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	return sched, nil
}
