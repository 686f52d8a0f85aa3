package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/config"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

const testDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func testDocument() *domain.Document {
	return &domain.Document{
		ID:             "doc-1",
		OwnerID:        "alice",
		Organization:   "bank-a",
		Category:       domain.CategoryInvoice,
		DocumentNumber: "INV-1",
		Digest:         testDigest,
		StorageLocator: "local://doc-1_invoice.pdf",
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

type ingestFake struct {
	err      error
	upload   ports.UploadRequest
	metadata ports.MetadataRequest
	body     string
	origin   domain.Origin
}

func (f *ingestFake) Upload(_ context.Context, _ domain.Actor, origin domain.Origin, req ports.UploadRequest) (*domain.Document, error) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.upload, f.body, f.origin = req, string(raw), origin
	if f.err != nil {
		return nil, f.err
	}
	return testDocument(), nil
}

func (f *ingestFake) RegisterMetadata(_ context.Context, _ domain.Actor, origin domain.Origin, req ports.MetadataRequest) (*domain.Document, error) {
	f.metadata, f.origin = req, origin
	if f.err != nil {
		return nil, f.err
	}
	return testDocument(), nil
}

type documentsFake struct {
	err        error
	lastDigest string
	lastID     string
}

func (f *documentsFake) GetByDigest(_ context.Context, _ domain.Actor, _ domain.Origin, digest string) (*domain.Document, error) {
	f.lastDigest = digest
	if f.err != nil {
		return nil, f.err
	}
	return testDocument(), nil
}

func (f *documentsFake) GetByID(_ context.Context, _ domain.Actor, _ domain.Origin, id string) (*domain.Document, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return testDocument(), nil
}

func (f *documentsFake) List(context.Context, domain.Actor) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Document{*testDocument()}, nil
}

func (f *documentsFake) Delete(_ context.Context, actor domain.Actor, _ domain.Origin, id string) (*domain.LedgerEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.LedgerEntry{ID: 9, DocumentID: id, Kind: domain.EventDeleted, ActorID: actor.ID}, nil
}

type verifierFake struct {
	claimed string
	body    string
}

func (f *verifierFake) VerifyAndRecord(_ context.Context, _ domain.Actor, _ domain.Origin, body io.Reader, claimed string) (*domain.VerificationOutcome, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.claimed, f.body = claimed, string(raw)
	return &domain.VerificationOutcome{
		ComputedDigest: testDigest,
		ProvidedDigest: claimed,
		HashesMatch:    claimed == testDigest,
		DocumentExists: true,
		DocumentID:     "doc-1",
	}, nil
}

type ledgerFake struct {
	err    error
	filter domain.LedgerFilter
	page   domain.Page
	shared string
}

func (f *ledgerFake) List(_ context.Context, _ domain.Actor, filter domain.LedgerFilter, page domain.Page) ([]domain.LedgerEntry, error) {
	f.filter, f.page = filter, page
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func (f *ledgerFake) Get(_ context.Context, _ domain.Actor, id int64) (*domain.LedgerEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.LedgerEntry{ID: id, DocumentID: "doc-1", Kind: domain.EventAccessed}, nil
}

func (f *ledgerFake) ListForDocument(_ context.Context, _ domain.Actor, id string) ([]domain.LedgerEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.LedgerEntry{{ID: 1, DocumentID: id, Kind: domain.EventUploaded}}, nil
}

func (f *ledgerFake) RecordShare(_ context.Context, actor domain.Actor, _ domain.Origin, id, description string, _ map[string]any) (*domain.LedgerEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.shared = id
	return &domain.LedgerEntry{ID: 2, DocumentID: id, Kind: domain.EventShared, ActorID: actor.ID, Description: description}, nil
}

type statsFake struct{}

func (statsFake) Stats(context.Context, domain.Actor) (*domain.LedgerStats, error) {
	return &domain.LedgerStats{TotalEntries: 3}, nil
}

type integrityFake struct {
	err       error
	requested *domain.BatchCheckRequest
	ran       *domain.BatchCheckRequest
}

func (f *integrityFake) RunBatchCheck(_ context.Context, _ domain.Actor, req domain.BatchCheckRequest) (*domain.BatchCheckSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.ran = &req
	return &domain.BatchCheckSummary{RunID: "run-1", TotalChecked: 2, Passed: 2}, nil
}

func (f *integrityFake) RequestBatchCheck(_ context.Context, _ domain.Actor, req domain.BatchCheckRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requested = &req
	return nil
}

func (f *integrityFake) ListResults(context.Context, domain.Actor, domain.IntegrityCheckFilter, domain.Page) ([]domain.IntegrityCheckResult, error) {
	return nil, f.err
}

func (f *integrityFake) Summary(context.Context, domain.Actor) (*domain.IntegritySummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IntegritySummary{TotalChecks: 4, Passed: 3, Failed: 1, PassRate: 75}, nil
}

type alertsFake struct {
	err    error
	filter domain.AlertFilter
}

func (f *alertsFake) List(_ context.Context, _ domain.Actor, filter domain.AlertFilter, _ domain.Page) ([]domain.Alert, error) {
	f.filter = filter
	return nil, f.err
}

func (f *alertsFake) Acknowledge(_ context.Context, actor domain.Actor, id int64) (*domain.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Alert{ID: id, Acknowledged: true, AcknowledgedBy: domain.StringPtr(actor.ID)}, nil
}

type testServices struct {
	ingest    *ingestFake
	documents *documentsFake
	verifier  *verifierFake
	ledger    *ledgerFake
	integrity *integrityFake
	alerts    *alertsFake
}

func newTestServices() *testServices {
	return &testServices{
		ingest:    &ingestFake{},
		documents: &documentsFake{},
		verifier:  &verifierFake{},
		ledger:    &ledgerFake{},
		integrity: &integrityFake{},
		alerts:    &alertsFake{},
	}
}

func (s *testServices) handler(cfg config.Config, options ...Option) http.Handler {
	return NewRouter(cfg, Services{
		Ingestor:  s.ingest,
		Documents: s.documents,
		Verifier:  s.verifier,
		Ledger:    s.ledger,
		Stats:     statsFake{},
		Integrity: s.integrity,
		Alerts:    s.alerts,
	}, options...).Handler()
}

func withActor(req *http.Request, id string, role domain.Role, organization string) *http.Request {
	req.Header.Set(actorIDHeader, id)
	req.Header.Set(actorRoleHeader, string(role))
	req.Header.Set(actorOrganizationHeader, organization)
	return req
}
