package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/access"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

// AuditLedger is the only writer of ledger entries.
type AuditLedger struct {
	repo     ports.LedgerRepository
	registry *DocumentRegistry
}

func NewAuditLedger(repo ports.LedgerRepository, registry *DocumentRegistry) *AuditLedger {
	return &AuditLedger{
		repo:     repo,
		registry: registry,
	}
}

// Append validates entry and stores it. The store assigns the identifier
// and timestamp; whatever the caller put there is discarded.
func (l *AuditLedger) Append(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	entry.ID = 0
	entry.CreatedAt = time.Time{}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	if err := l.repo.Append(ctx, &entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return &entry, nil
}

// List returns entries newest first, limited to what the actor may see.
func (l *AuditLedger) List(ctx context.Context, actor domain.Actor, filter domain.LedgerFilter, page domain.Page) ([]domain.LedgerEntry, error) {
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, "list ledger entries", errors.New("actor is required"))
	}
	if filter.Kind != "" {
		if _, ok := domain.ParseEventKind(string(filter.Kind)); !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "list ledger entries", fmt.Errorf("unknown event kind %q", filter.Kind))
		}
	}
	filter.Organization = access.ScopeFor(actor)
	return l.repo.List(ctx, filter, page.Normalize())
}

// Get returns one entry when the actor may read its document. Missing and
// hidden entries are reported the same way.
func (l *AuditLedger) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.LedgerEntry, error) {
	const op = "get ledger entry"
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, op, errors.New("actor is required"))
	}
	if id <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("entry id must be positive"))
	}
	entry, err := l.repo.GetByID(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, entryUnavailable(op)
		}
		return nil, err
	}
	if _, err := l.readableDocument(ctx, actor, entry.DocumentID, op); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, entryUnavailable(op)
		}
		return nil, err
	}
	return entry, nil
}

// ListForDocument returns a document's full trail in append order.
func (l *AuditLedger) ListForDocument(ctx context.Context, actor domain.Actor, documentID string) ([]domain.LedgerEntry, error) {
	if _, err := l.readableDocument(ctx, actor, documentID, "list document ledger"); err != nil {
		return nil, err
	}
	return l.repo.ListByDocument(ctx, documentID)
}

// RecordShare appends a SHARED entry on behalf of an actor allowed to share
// the document.
func (l *AuditLedger) RecordShare(
	ctx context.Context,
	actor domain.Actor,
	origin domain.Origin,
	documentID, description string,
	metadata map[string]any,
) (*domain.LedgerEntry, error) {
	const op = "record share"
	doc, err := l.readableDocument(ctx, actor, documentID, op)
	if err != nil {
		return nil, err
	}
	if !access.Authorize(actor, *doc, access.ActionShare).Allowed() {
		return nil, domain.WrapError(domain.ErrForbidden, op, errors.New("actor may not share this document"))
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = fmt.Sprintf("Document shared: %s", doc.DocumentNumber)
	}
	return l.Append(ctx, domain.LedgerEntry{
		DocumentID:        doc.ID,
		Kind:              domain.EventShared,
		ActorID:           actor.ID,
		ActorOrganization: actor.Organization,
		OriginAddress:     origin.Address,
		UserAgent:         origin.UserAgent,
		DigestAfter:       domain.StringPtr(doc.Digest),
		Description:       description,
		Metadata:          metadata,
	})
}

// readableDocument loads a document and applies the read rule. A missing
// document and a denied one produce the same error.
func (l *AuditLedger) readableDocument(ctx context.Context, actor domain.Actor, documentID, op string) (*domain.Document, error) {
	return readableDocument(ctx, l.registry, actor, documentID, op)
}

func readableDocument(ctx context.Context, registry *DocumentRegistry, actor domain.Actor, documentID, op string) (*domain.Document, error) {
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, op, errors.New("actor is required"))
	}
	doc, err := registry.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, documentUnavailable(op)
		}
		return nil, err
	}
	if !access.Authorize(actor, *doc, access.ActionRead).Allowed() {
		return nil, documentUnavailable(op)
	}
	return doc, nil
}

func entryUnavailable(op string) error {
	return domain.WrapError(domain.ErrNotFound, op, errors.New("ledger entry not found"))
}

func documentUnavailable(op string) error {
	return domain.WrapError(domain.ErrNotFound, op, errors.New("document not found"))
}
