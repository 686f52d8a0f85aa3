package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/tradedoc-ledger/internal/core/access"
	"github.com/kirillkom/tradedoc-ledger/internal/core/digest"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

// DocumentQueryUseCase serves access-checked document reads. Every
// successful single-document read leaves an ACCESSED entry.
type DocumentQueryUseCase struct {
	registry *DocumentRegistry
	ledger   *AuditLedger
}

func NewDocumentQueryUseCase(registry *DocumentRegistry, ledger *AuditLedger) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{
		registry: registry,
		ledger:   ledger,
	}
}

func (uc *DocumentQueryUseCase) GetByDigest(ctx context.Context, actor domain.Actor, origin domain.Origin, value string) (*domain.Document, error) {
	const op = "get document by digest"
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, op, errors.New("actor is required"))
	}
	if !digest.Valid(value) {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("digest must be 64 lowercase hex characters"))
	}
	doc, err := uc.registry.GetByDigest(ctx, value)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, documentUnavailable(op)
		}
		return nil, err
	}
	if !access.Authorize(actor, *doc, access.ActionRead).Allowed() {
		return nil, documentUnavailable(op)
	}
	if err := uc.recordAccess(ctx, actor, origin, doc, "digest"); err != nil {
		return nil, err
	}
	return doc, nil
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, actor domain.Actor, origin domain.Origin, id string) (*domain.Document, error) {
	doc, err := readableDocument(ctx, uc.registry, actor, id, "get document")
	if err != nil {
		return nil, err
	}
	if err := uc.recordAccess(ctx, actor, origin, doc, "id"); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the documents visible to the actor, newest first.
func (uc *DocumentQueryUseCase) List(ctx context.Context, actor domain.Actor) ([]domain.Document, error) {
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, "list documents", errors.New("actor is required"))
	}
	return uc.registry.ListForOrganization(ctx, access.ScopeFor(actor))
}

// Delete records a deletion event. Document rows and ledger history are
// never removed.
func (uc *DocumentQueryUseCase) Delete(ctx context.Context, actor domain.Actor, origin domain.Origin, id string) (*domain.LedgerEntry, error) {
	const op = "delete document"
	doc, err := readableDocument(ctx, uc.registry, actor, id, op)
	if err != nil {
		return nil, err
	}
	if !access.Authorize(actor, *doc, access.ActionDelete).Allowed() {
		return nil, domain.WrapError(domain.ErrForbidden, op, errors.New("only the owner or an administrator may delete"))
	}
	return uc.ledger.Append(ctx, domain.LedgerEntry{
		DocumentID:        doc.ID,
		Kind:              domain.EventDeleted,
		ActorID:           actor.ID,
		ActorOrganization: actor.Organization,
		OriginAddress:     origin.Address,
		UserAgent:         origin.UserAgent,
		DigestAfter:       domain.StringPtr(doc.Digest),
		Description:       fmt.Sprintf("Document deleted: %s", doc.DocumentNumber),
	})
}

func (uc *DocumentQueryUseCase) recordAccess(ctx context.Context, actor domain.Actor, origin domain.Origin, doc *domain.Document, lookup string) error {
	_, err := uc.ledger.Append(ctx, domain.LedgerEntry{
		DocumentID:        doc.ID,
		Kind:              domain.EventAccessed,
		ActorID:           actor.ID,
		ActorOrganization: actor.Organization,
		OriginAddress:     origin.Address,
		UserAgent:         origin.UserAgent,
		Description:       fmt.Sprintf("Document accessed by %s: %s", lookup, doc.DocumentNumber),
		Metadata:          map[string]any{"lookup": lookup},
	})
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}
