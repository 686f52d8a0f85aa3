package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/tradedoc-ledger/internal/core/digest"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

// DocumentRegistry owns document metadata. It does not check access and
// does not write ledger entries; callers do both.
type DocumentRegistry struct {
	repo ports.DocumentRepository
	now  func() time.Time
}

func NewDocumentRegistry(repo ports.DocumentRepository) *DocumentRegistry {
	return &DocumentRegistry{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Register stores doc, assigning ID and CreatedAt when they are empty. A
// digest collision returns *domain.DuplicateDigestError.
func (r *DocumentRegistry) Register(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if doc == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register document", errors.New("document is required"))
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now()
	}
	if err := r.repo.Insert(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRegistry) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("id is required"))
	}
	return r.repo.GetByID(ctx, id)
}

func (r *DocumentRegistry) GetByDigest(ctx context.Context, value string) (*domain.Document, error) {
	if !digest.Valid(value) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document by digest", errors.New("digest must be 64 lowercase hex characters"))
	}
	return r.repo.GetByDigest(ctx, value)
}

// ListForOrganization returns the newest documents first. Pass
// domain.AllOrganizations to list every organization.
func (r *DocumentRegistry) ListForOrganization(ctx context.Context, organization string) ([]domain.Document, error) {
	if strings.TrimSpace(organization) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", errors.New("organization is required"))
	}
	return r.repo.ListByOrganization(ctx, organization)
}

func validateDocument(doc *domain.Document) error {
	const op = "register document"
	switch {
	case strings.TrimSpace(doc.OwnerID) == "":
		return domain.WrapError(domain.ErrInvalidInput, op, errors.New("owner id is required"))
	case strings.TrimSpace(doc.Organization) == "" || doc.Organization == domain.AllOrganizations:
		return domain.WrapError(domain.ErrInvalidInput, op, errors.New("a concrete organization is required"))
	case strings.TrimSpace(doc.DocumentNumber) == "":
		return domain.WrapError(domain.ErrInvalidInput, op, errors.New("document number is required"))
	case strings.TrimSpace(doc.StorageLocator) == "":
		return domain.WrapError(domain.ErrInvalidInput, op, errors.New("storage locator is required"))
	case !digest.Valid(doc.Digest):
		return domain.WrapError(domain.ErrInvalidInput, op, errors.New("digest must be 64 lowercase hex characters"))
	}
	category, ok := domain.ParseDocumentCategory(string(doc.Category))
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unknown category %q", doc.Category))
	}
	doc.Category = category
	return nil
}
