package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/adapters/worker"
	"github.com/kirillkom/tradedoc-ledger/internal/bootstrap"
	"github.com/kirillkom/tradedoc-ledger/internal/config"
	"github.com/kirillkom/tradedoc-ledger/internal/observability/logging"
	"github.com/kirillkom/tradedoc-ledger/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, logger, workerMetrics)
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()

	runner := worker.NewRunner(app.Integrity, app.Bus, app.Anomalies, workerMetrics, worker.Config{
		SweepInterval:   cfg.IntegritySweepInterval,
		AnomalyInterval: cfg.AnomalyScanInterval,
	}, logger)

	logger.Info("worker_started",
		"integrity_subject", cfg.NATSIntegritySubject,
		"sweep_interval", cfg.IntegritySweepInterval.String(),
		"anomaly_interval", cfg.AnomalyScanInterval.String(),
	)
	if err := runner.Run(ctx); err != nil {
		logger.Error("worker_error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
