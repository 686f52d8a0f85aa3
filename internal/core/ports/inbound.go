package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type UploadRequest struct {
	Filename       string
	Category       domain.DocumentCategory
	DocumentNumber string
	TradeReference string
	IssuedAt       *time.Time
	Body           io.Reader
}

type MetadataRequest struct {
	Category       domain.DocumentCategory `json:"category"`
	DocumentNumber string                  `json:"document_number"`
	Digest         string                  `json:"digest"`
	StorageLocator string                  `json:"storage_locator"`
	TradeReference string                  `json:"trade_reference,omitempty"`
	IssuedAt       *time.Time              `json:"issued_at,omitempty"`
}

// DocumentIngestor is the inbound contract for registering documents.
type DocumentIngestor interface {
	Upload(ctx context.Context, actor domain.Actor, origin domain.Origin, req UploadRequest) (*domain.Document, error)
	RegisterMetadata(ctx context.Context, actor domain.Actor, origin domain.Origin, req MetadataRequest) (*domain.Document, error)
}

// DocumentReader is the access-checked read model for document metadata.
type DocumentReader interface {
	GetByDigest(ctx context.Context, actor domain.Actor, origin domain.Origin, digest string) (*domain.Document, error)
	GetByID(ctx context.Context, actor domain.Actor, origin domain.Origin, id string) (*domain.Document, error)
	List(ctx context.Context, actor domain.Actor) ([]domain.Document, error)
	Delete(ctx context.Context, actor domain.Actor, origin domain.Origin, id string) (*domain.LedgerEntry, error)
}

type DocumentVerifier interface {
	VerifyAndRecord(ctx context.Context, actor domain.Actor, origin domain.Origin, body io.Reader, claimedDigest string) (*domain.VerificationOutcome, error)
}

type LedgerReader interface {
	List(ctx context.Context, actor domain.Actor, filter domain.LedgerFilter, page domain.Page) ([]domain.LedgerEntry, error)
	Get(ctx context.Context, actor domain.Actor, id int64) (*domain.LedgerEntry, error)
	ListForDocument(ctx context.Context, actor domain.Actor, documentID string) ([]domain.LedgerEntry, error)
	RecordShare(ctx context.Context, actor domain.Actor, origin domain.Origin, documentID, description string, metadata map[string]any) (*domain.LedgerEntry, error)
}

type StatsReader interface {
	Stats(ctx context.Context, actor domain.Actor) (*domain.LedgerStats, error)
}

type IntegrityChecker interface {
	RunBatchCheck(ctx context.Context, actor domain.Actor, req domain.BatchCheckRequest) (*domain.BatchCheckSummary, error)
	RequestBatchCheck(ctx context.Context, actor domain.Actor, req domain.BatchCheckRequest) error
	ListResults(ctx context.Context, actor domain.Actor, filter domain.IntegrityCheckFilter, page domain.Page) ([]domain.IntegrityCheckResult, error)
	Summary(ctx context.Context, actor domain.Actor) (*domain.IntegritySummary, error)
}

type AlertService interface {
	List(ctx context.Context, actor domain.Actor, filter domain.AlertFilter, page domain.Page) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, actor domain.Actor, id int64) (*domain.Alert, error)
}
