package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

func TestAlertAcknowledgeOnlyOnce(t *testing.T) {
	h := newHarness()
	alert, err := h.alerting.Raise(context.Background(), domain.AlertInput{
		Kind:     domain.AlertKindIntegrityFailure,
		Severity: domain.SeverityCritical,
		Message:  "digest mismatch",
	})
	if err != nil {
		t.Fatalf("Raise() error = %v", err)
	}

	acked, err := h.alerting.Acknowledge(context.Background(), auditor, alert.ID)
	if err != nil {
		t.Fatalf("first acknowledge: %v", err)
	}
	if !acked.Acknowledged || acked.AcknowledgedBy == nil || *acked.AcknowledgedBy != auditor.ID || acked.AcknowledgedAt == nil {
		t.Fatalf("unexpected acknowledged alert %+v", acked)
	}

	_, err = h.alerting.Acknowledge(context.Background(), adminA, alert.ID)
	if !errors.Is(err, domain.ErrAlreadyAcknowledged) {
		t.Fatalf("expected ErrAlreadyAcknowledged, got %v", err)
	}
	_, err = h.alerting.Acknowledge(context.Background(), adminA, 404)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = h.alerting.Acknowledge(context.Background(), bankA, alert.ID)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for bank role, got %v", err)
	}
}

func TestAlertRaiseOnceDeduplicatesOpenAlerts(t *testing.T) {
	h := newHarness()
	in := domain.AlertInput{Kind: domain.AlertKindSuspiciousActivity, Severity: domain.SeverityMedium, Message: "burst"}

	first, raised, err := h.alerting.RaiseOnce(context.Background(), "fp-1", in)
	if err != nil || !raised {
		t.Fatalf("first raise: raised=%v err=%v", raised, err)
	}
	if _, raised, err := h.alerting.RaiseOnce(context.Background(), "fp-1", in); err != nil || raised {
		t.Fatalf("duplicate raise: raised=%v err=%v", raised, err)
	}
	if _, err := h.alerting.Acknowledge(context.Background(), adminA, first.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, raised, err := h.alerting.RaiseOnce(context.Background(), "fp-1", in); err != nil || !raised {
		t.Fatalf("raise after acknowledge: raised=%v err=%v", raised, err)
	}
	if len(h.publisher.alerts) != 2 {
		t.Fatalf("expected two published alerts, got %d", len(h.publisher.alerts))
	}
	if len(h.observer.alertKinds) != 2 {
		t.Fatalf("observer must see only inserted alerts, got %v", h.observer.alertKinds)
	}
}

func TestAlertRaiseSurvivesPublishFailure(t *testing.T) {
	h := newHarness()
	h.publisher.err = errors.New("nats down")

	alert, err := h.alerting.Raise(context.Background(), domain.AlertInput{
		Kind:       domain.AlertKindFileNotFound,
		Severity:   domain.SeverityHigh,
		Message:    "bytes missing",
		DocumentID: "doc-1",
	})
	if err != nil {
		t.Fatalf("Raise() error = %v", err)
	}
	if alert.DocumentID == nil || *alert.DocumentID != "doc-1" {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if len(h.store.alerts) != 1 {
		t.Fatalf("alert must be persisted even when publishing fails")
	}
}

func TestAlertRaiseValidatesInput(t *testing.T) {
	h := newHarness()
	_, err := h.alerting.Raise(context.Background(), domain.AlertInput{Kind: "X", Severity: "URGENT", Message: "m"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAlertListFilters(t *testing.T) {
	h := newHarness()
	for _, kind := range []string{domain.AlertKindIntegrityFailure, domain.AlertKindFileNotFound, domain.AlertKindFileNotFound} {
		if _, err := h.alerting.Raise(context.Background(), domain.AlertInput{Kind: kind, Severity: domain.SeverityHigh, Message: "m"}); err != nil {
			t.Fatalf("raise: %v", err)
		}
	}
	if _, err := h.alerting.Acknowledge(context.Background(), adminA, 2); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	open := false
	alerts, err := h.alerting.List(context.Background(), auditor, domain.AlertFilter{Acknowledged: &open, Kind: domain.AlertKindFileNotFound}, domain.Page{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != 3 {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if _, err := h.alerting.List(context.Background(), corpB, domain.AlertFilter{}, domain.Page{}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAnomalyScannerRaisesDeduplicatedAlerts(t *testing.T) {
	h := newHarness()
	doc, err := h.upload(bankA, "INV-1", "watched")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	for range 3 {
		if _, err := h.documents.GetByID(context.Background(), bankA2, noOrigin, doc.ID); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	for range 2 {
		if _, err := h.verifier.VerifyAndRecord(context.Background(), bankA2, noOrigin, bytesReader("forged"), doc.Digest); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}

	raised, err := h.anomalies.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if raised != 2 {
		t.Fatalf("expected two alerts, got %d: %+v", raised, h.store.alerts)
	}
	kinds := map[string]bool{}
	for _, alert := range h.store.alerts {
		kinds[alert.Kind] = true
	}
	if !kinds[domain.AlertKindSuspiciousActivity] || !kinds[domain.AlertKindRepeatedVerifyFailure] {
		t.Fatalf("unexpected alert kinds %v", kinds)
	}

	raised, err = h.anomalies.Scan(context.Background())
	if err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}
	if raised != 0 {
		t.Fatalf("open alerts must not be raised again, got %d", raised)
	}
}
