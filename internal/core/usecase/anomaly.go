package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

type AnomalyConfig struct {
	Window              time.Duration
	AccessThreshold     int
	VerifyFailThreshold int
}

// AnomalyScanner looks for unusual ledger patterns and raises deduplicated
// alerts for them.
type AnomalyScanner struct {
	ledger ports.LedgerRepository
	alerts *Alerting
	cfg    AnomalyConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewAnomalyScanner(ledger ports.LedgerRepository, alerts *Alerting, cfg AnomalyConfig, logger *slog.Logger) *AnomalyScanner {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.AccessThreshold <= 0 {
		cfg.AccessThreshold = 100
	}
	if cfg.VerifyFailThreshold <= 0 {
		cfg.VerifyFailThreshold = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnomalyScanner{
		ledger: ledger,
		alerts: alerts,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Scan returns the number of new alerts raised.
func (s *AnomalyScanner) Scan(ctx context.Context) (int, error) {
	since := s.now().Add(-s.cfg.Window)
	raised := 0

	actors, err := s.ledger.ActorsAbove(ctx, domain.EventAccessed, since, s.cfg.AccessThreshold)
	if err != nil {
		return raised, fmt.Errorf("scan access volume: %w", err)
	}
	for _, actor := range actors {
		fingerprint := fmt.Sprintf("suspicious-access:%s:%s", actor.ActorOrganization, actor.ActorID)
		_, ok, err := s.alerts.RaiseOnce(ctx, fingerprint, domain.AlertInput{
			Kind:     domain.AlertKindSuspiciousActivity,
			Severity: domain.SeverityMedium,
			Message: fmt.Sprintf("Actor %s (%s) accessed documents %d times within %s",
				actor.ActorID, actor.ActorOrganization, actor.EntryCount, s.cfg.Window),
		})
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}

	docs, err := s.ledger.DocumentsWithMismatches(ctx, since, s.cfg.VerifyFailThreshold)
	if err != nil {
		return raised, fmt.Errorf("scan verification failures: %w", err)
	}
	for _, doc := range docs {
		_, ok, err := s.alerts.RaiseOnce(ctx, "verify-mismatch:"+doc.DocumentID, domain.AlertInput{
			Kind:       domain.AlertKindRepeatedVerifyFailure,
			Severity:   domain.SeverityHigh,
			Message:    fmt.Sprintf("Document %s failed verification %d times within %s", doc.DocumentID, doc.EntryCount, s.cfg.Window),
			DocumentID: doc.DocumentID,
		})
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}

	if raised > 0 {
		s.logger.Info("anomaly_scan_raised_alerts", "count", raised)
	}
	return raised, nil
}
