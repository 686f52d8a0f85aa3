// Package worker drives integrity sweeps and anomaly scans outside the
// request path: on a schedule and on requests arriving over the event bus.
package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

const (
	triggerScheduled = "scheduled"
	triggerRequested = "requested"
)

type AnomalyScanner interface {
	Scan(ctx context.Context) (int, error)
}

type Metrics interface {
	StartSweep()
	FinishSweep(trigger string, duration time.Duration, err error)
	FinishAnomalyScan(err error)
}

type Config struct {
	SweepInterval   time.Duration
	AnomalyInterval time.Duration
	SweepTimeout    time.Duration
}

type Runner struct {
	integrity  ports.IntegrityChecker
	subscriber ports.IntegrityRequestSubscriber
	anomalies  AnomalyScanner
	metrics    Metrics
	cfg        Config
	logger     *slog.Logger
}

func NewRunner(
	integrity ports.IntegrityChecker,
	subscriber ports.IntegrityRequestSubscriber,
	anomalies AnomalyScanner,
	metrics Metrics,
	cfg Config,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 30 * time.Minute
	}
	return &Runner{
		integrity:  integrity,
		subscriber: subscriber,
		anomalies:  anomalies,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled or the subscription fails. A zero
// interval disables the corresponding loop.
func (r *Runner) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	if r.subscriber != nil {
		group.Go(func() error {
			return r.subscriber.SubscribeIntegrityCheckRequested(ctx, func(ctx context.Context, req domain.BatchCheckRequest) error {
				return r.sweep(ctx, triggerRequested, req)
			})
		})
	}
	if r.cfg.SweepInterval > 0 {
		group.Go(func() error {
			every(ctx, r.cfg.SweepInterval, func() {
				_ = r.sweep(ctx, triggerScheduled, domain.BatchCheckRequest{})
			})
			return nil
		})
	}
	if r.anomalies != nil && r.cfg.AnomalyInterval > 0 {
		group.Go(func() error {
			every(ctx, r.cfg.AnomalyInterval, func() { r.scan(ctx) })
			return nil
		})
	}
	return group.Wait()
}

// sweep runs a batch check as the system actor. Requests are authorized by
// the API before they are published.
func (r *Runner) sweep(ctx context.Context, trigger string, req domain.BatchCheckRequest) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SweepTimeout)
	defer cancel()

	start := time.Now()
	if r.metrics != nil {
		r.metrics.StartSweep()
	}
	summary, err := r.integrity.RunBatchCheck(ctx, domain.SystemActor, req)
	if r.metrics != nil {
		r.metrics.FinishSweep(trigger, time.Since(start), err)
	}
	if err != nil {
		r.logger.Error("integrity_sweep_failed",
			"trigger", trigger,
			"organization", req.Organization,
			"requested_by", req.RequestedBy,
			"error", err,
		)
		return err
	}
	r.logger.Info("integrity_sweep_completed",
		"trigger", trigger,
		"run_id", summary.RunID,
		"requested_by", req.RequestedBy,
		"total", summary.TotalChecked,
		"failed", summary.Failed,
		"pending", summary.Pending,
	)
	return nil
}

func (r *Runner) scan(ctx context.Context) {
	raised, err := r.anomalies.Scan(ctx)
	if r.metrics != nil {
		r.metrics.FinishAnomalyScan(err)
	}
	if err != nil {
		r.logger.Error("anomaly_scan_failed", "error", err)
		return
	}
	if raised > 0 {
		r.logger.Info("anomaly_scan_completed", "alerts_raised", raised)
	}
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
