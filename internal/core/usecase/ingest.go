package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/tradedoc-ledger/internal/core/access"
	"github.com/kirillkom/tradedoc-ledger/internal/core/digest"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

type IngestDocumentUseCase struct {
	registry *DocumentRegistry
	ledger   *AuditLedger
	storage  ports.ObjectStorage
	logger   *slog.Logger
}

func NewIngestDocumentUseCase(
	registry *DocumentRegistry,
	ledger *AuditLedger,
	storage ports.ObjectStorage,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		registry: registry,
		ledger:   ledger,
		storage:  storage,
		logger:   logger,
	}
}

// Upload stores the bytes, hashing them on the way through, registers the
// document and appends its UPLOADED entry.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	actor domain.Actor,
	origin domain.Origin,
	req ports.UploadRequest,
) (*domain.Document, error) {
	const op = "upload document"
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("file content is required"))
	}
	doc, err := uc.draftDocument(actor, op, req.Category, req.DocumentNumber, req.TradeReference)
	if err != nil {
		return nil, err
	}
	doc.IssuedAt = req.IssuedAt

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))
	hasher := digest.NewWriter()

	locator, err := uc.storage.Save(ctx, storageKey, io.TeeReader(req.Body, hasher))
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if hasher.Len() == 0 {
		uc.discard(ctx, locator)
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("file is empty"))
	}

	doc.ID = id
	doc.Digest = hasher.Sum()
	doc.StorageLocator = locator

	if _, err := uc.registry.Register(ctx, doc); err != nil {
		uc.discard(ctx, locator)
		return nil, err
	}

	entry := domain.LedgerEntry{
		DocumentID:        doc.ID,
		Kind:              domain.EventUploaded,
		ActorID:           actor.ID,
		ActorOrganization: actor.Organization,
		OriginAddress:     origin.Address,
		UserAgent:         origin.UserAgent,
		DigestAfter:       domain.StringPtr(doc.Digest),
		Description:       fmt.Sprintf("Document uploaded: %s (%s %s)", req.Filename, doc.Category, doc.DocumentNumber),
		Metadata: map[string]any{
			"filename":   req.Filename,
			"size_bytes": hasher.Len(),
		},
	}
	if err := uc.recordRegistration(ctx, doc, entry); err != nil {
		return nil, err
	}
	return doc, nil
}

// RegisterMetadata registers a document whose bytes were stored elsewhere.
func (uc *IngestDocumentUseCase) RegisterMetadata(
	ctx context.Context,
	actor domain.Actor,
	origin domain.Origin,
	req ports.MetadataRequest,
) (*domain.Document, error) {
	const op = "register document metadata"
	doc, err := uc.draftDocument(actor, op, req.Category, req.DocumentNumber, req.TradeReference)
	if err != nil {
		return nil, err
	}
	doc.Digest = strings.TrimSpace(req.Digest)
	doc.StorageLocator = strings.TrimSpace(req.StorageLocator)
	doc.IssuedAt = req.IssuedAt

	if _, err := uc.registry.Register(ctx, doc); err != nil {
		return nil, err
	}

	entry := domain.LedgerEntry{
		DocumentID:        doc.ID,
		Kind:              domain.EventCreated,
		ActorID:           actor.ID,
		ActorOrganization: actor.Organization,
		OriginAddress:     origin.Address,
		UserAgent:         origin.UserAgent,
		DigestAfter:       domain.StringPtr(doc.Digest),
		Description:       fmt.Sprintf("Document metadata created: %s %s", doc.Category, doc.DocumentNumber),
	}
	if err := uc.recordRegistration(ctx, doc, entry); err != nil {
		return nil, err
	}
	return doc, nil
}

func (uc *IngestDocumentUseCase) draftDocument(
	actor domain.Actor,
	op string,
	rawCategory domain.DocumentCategory,
	documentNumber, tradeReference string,
) (*domain.Document, error) {
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, op, errors.New("actor is required"))
	}
	category, ok := domain.ParseDocumentCategory(string(rawCategory))
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unknown category %q", rawCategory))
	}
	documentNumber = strings.TrimSpace(documentNumber)
	if documentNumber == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("document number is required"))
	}

	doc := &domain.Document{
		OwnerID:        actor.ID,
		Organization:   actor.Organization,
		Category:       category,
		DocumentNumber: documentNumber,
		TradeReference: strings.TrimSpace(tradeReference),
	}
	if !access.Authorize(actor, *doc, access.ActionRegister).Allowed() {
		return nil, domain.WrapError(domain.ErrForbidden, op, errors.New("actor may not register documents"))
	}
	return doc, nil
}

// recordRegistration appends the registration event. The document row is
// already committed at this point, so a failure here leaves a gap that is
// logged for operators and surfaced to the caller.
func (uc *IngestDocumentUseCase) recordRegistration(ctx context.Context, doc *domain.Document, entry domain.LedgerEntry) error {
	if _, err := uc.ledger.Append(ctx, entry); err != nil {
		uc.logger.Error("audit_trail_gap",
			"document_id", doc.ID,
			"event_kind", entry.Kind,
			"error", err,
		)
		return domain.WrapError(domain.ErrAuditTrailGap, "record registration", fmt.Errorf("document %s registered without ledger entry: %w", doc.ID, err))
	}
	return nil
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, locator string) {
	if err := uc.storage.Delete(ctx, locator); err != nil {
		uc.logger.Warn("stored_bytes_cleanup_failed", "locator", locator, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "document.bin"
	}
	return truncateFilename(base, maxStoredNameBytes)
}

// maxStoredNameBytes keeps uuid-prefixed keys under common filesystem name
// limits. base is ASCII after sanitizing, so bytes and characters agree.
const maxStoredNameBytes = 100

func truncateFilename(base string, limit int) string {
	if len(base) <= limit {
		return base
	}
	ext := filepath.Ext(base)
	if len(ext) > 16 {
		ext = ""
	}
	return base[:limit-len(ext)] + ext
}
