package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/access"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

type Alerting struct {
	repo      ports.AlertRepository
	publisher ports.EventPublisher
	observer  ports.AlertObserver
	logger    *slog.Logger
	now       func() time.Time
}

// NewAlerting builds the alert service. publisher may be nil, in which case
// alerts are only persisted.
func NewAlerting(repo ports.AlertRepository, publisher ports.EventPublisher, logger *slog.Logger) *Alerting {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerting{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithObserver attaches an observer notified after each inserted alert.
func (a *Alerting) WithObserver(observer ports.AlertObserver) *Alerting {
	a.observer = observer
	return a
}

func (a *Alerting) Raise(ctx context.Context, in domain.AlertInput) (*domain.Alert, error) {
	alert, _, err := a.raise(ctx, in, nil)
	return alert, err
}

// RaiseOnce raises an alert unless an unacknowledged alert with the same
// fingerprint is already open. raised is false in that case.
func (a *Alerting) RaiseOnce(ctx context.Context, fingerprint string, in domain.AlertInput) (*domain.Alert, bool, error) {
	if strings.TrimSpace(fingerprint) == "" {
		return nil, false, domain.WrapError(domain.ErrInvalidInput, "raise alert", errors.New("fingerprint is required"))
	}
	return a.raise(ctx, in, &fingerprint)
}

func (a *Alerting) raise(ctx context.Context, in domain.AlertInput, fingerprint *string) (*domain.Alert, bool, error) {
	const op = "raise alert"
	if strings.TrimSpace(in.Kind) == "" || strings.TrimSpace(in.Message) == "" {
		return nil, false, domain.WrapError(domain.ErrInvalidInput, op, errors.New("kind and message are required"))
	}
	if _, ok := domain.ParseAlertSeverity(string(in.Severity)); !ok {
		return nil, false, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unknown severity %q", in.Severity))
	}

	alert := &domain.Alert{
		Kind:        in.Kind,
		Severity:    in.Severity,
		Message:     in.Message,
		Fingerprint: fingerprint,
		CreatedAt:   a.now(),
	}
	if in.DocumentID != "" {
		alert.DocumentID = domain.StringPtr(in.DocumentID)
	}
	if in.IntegrityCheckID != 0 {
		checkID := in.IntegrityCheckID
		alert.IntegrityCheckID = &checkID
	}

	inserted, err := a.repo.Create(ctx, alert)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !inserted {
		return nil, false, nil
	}

	a.logger.Warn("alert_raised",
		"alert_id", alert.ID,
		"alert_kind", alert.Kind,
		"severity", alert.Severity,
		"document_id", in.DocumentID,
	)
	if a.observer != nil {
		a.observer.ObserveAlertRaised(alert.Kind, alert.Severity)
	}
	if a.publisher != nil {
		if err := a.publisher.PublishAlertRaised(ctx, *alert); err != nil {
			a.logger.Error("alert_publish_failed", "alert_id", alert.ID, "error", err)
		}
	}
	return alert, true, nil
}

func (a *Alerting) List(ctx context.Context, actor domain.Actor, filter domain.AlertFilter, page domain.Page) ([]domain.Alert, error) {
	if err := access.RequireRole(actor, access.ActionViewAlerts); err != nil {
		return nil, err
	}
	return a.repo.List(ctx, filter, page.Normalize())
}

func (a *Alerting) Acknowledge(ctx context.Context, actor domain.Actor, id int64) (*domain.Alert, error) {
	if err := access.RequireRole(actor, access.ActionAcknowledgeAlert); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acknowledge alert", errors.New("alert id must be positive"))
	}
	return a.repo.Acknowledge(ctx, id, actor.ID, a.now())
}
