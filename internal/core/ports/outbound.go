package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

// DocumentRepository persists document metadata. It is the only writer of
// document rows.
type DocumentRepository interface {
	// Insert stores doc unless its digest is taken, in which case it returns
	// *domain.DuplicateDigestError. The check and insert are one atomic step.
	Insert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByDigest(ctx context.Context, digest string) (*domain.Document, error)
	ListByOrganization(ctx context.Context, organization string) ([]domain.Document, error)
}

// LedgerRepository is the append-only event store.
type LedgerRepository interface {
	// Append assigns entry.ID and entry.CreatedAt from the store. It fails
	// with domain.ErrNotFound when the referenced document does not exist.
	Append(ctx context.Context, entry *domain.LedgerEntry) error
	List(ctx context.Context, filter domain.LedgerFilter, page domain.Page) ([]domain.LedgerEntry, error)
	ListByDocument(ctx context.Context, documentID string) ([]domain.LedgerEntry, error)
	GetByID(ctx context.Context, id int64) (*domain.LedgerEntry, error)
	CountByKind(ctx context.Context, organization string, since time.Time) (map[domain.EventKind]int64, error)
	MostActiveDocuments(ctx context.Context, organization string, limit int) ([]domain.DocumentActivity, error)
	ActorsAbove(ctx context.Context, kind domain.EventKind, since time.Time, threshold int) ([]domain.ActorActivity, error)
	DocumentsWithMismatches(ctx context.Context, since time.Time, threshold int) ([]domain.DocumentActivity, error)
}

// IntegrityRepository stores batch verification results. Append only.
type IntegrityRepository interface {
	Append(ctx context.Context, result *domain.IntegrityCheckResult) error
	List(ctx context.Context, filter domain.IntegrityCheckFilter, page domain.Page) ([]domain.IntegrityCheckResult, error)
	CountByStatus(ctx context.Context, organization string) (map[domain.IntegrityStatus]int64, error)
}

type AlertRepository interface {
	// Create inserts the alert. When alert.Fingerprint matches an open alert
	// nothing is written and inserted is false.
	Create(ctx context.Context, alert *domain.Alert) (inserted bool, err error)
	List(ctx context.Context, filter domain.AlertFilter, page domain.Page) ([]domain.Alert, error)
	// Acknowledge flips the flag exactly once; a second call fails with
	// domain.ErrAlreadyAcknowledged.
	Acknowledge(ctx context.Context, id int64, by string, at time.Time) (*domain.Alert, error)
}

// ObjectStorage stores raw document bytes and hands back opaque locators.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (locator string, err error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}

// EventPublisher fans out alerts and asynchronous sweep requests.
type EventPublisher interface {
	PublishAlertRaised(ctx context.Context, alert domain.Alert) error
	PublishIntegrityCheckRequested(ctx context.Context, req domain.BatchCheckRequest) error
}

type IntegrityRequestSubscriber interface {
	SubscribeIntegrityCheckRequested(ctx context.Context, handler func(context.Context, domain.BatchCheckRequest) error) error
}

// CheckLocker guards a document against concurrent checks from overlapping
// sweeps.
type CheckLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// IntegrityObserver receives per-document outcomes of a sweep.
type IntegrityObserver interface {
	ObserveIntegrityResult(status domain.IntegrityStatus)
}

// AlertObserver is told about every alert that was actually written.
type AlertObserver interface {
	ObserveAlertRaised(kind string, severity domain.AlertSeverity)
}
