package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, owner_id, organization, category, document_number, digest, storage_locator, trade_reference, issued_at, created_at`

// Insert relies on the unique digest constraint: of two concurrent inserts
// with the same digest exactly one gets a row back.
func (r *DocumentRepository) Insert(ctx context.Context, doc *domain.Document) error {
	var issuedAt sql.NullTime
	if doc.IssuedAt != nil {
		issuedAt = sql.NullTime{Time: *doc.IssuedAt, Valid: true}
	}

	var id string
	err := r.db.QueryRowContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (digest) DO NOTHING
RETURNING id
`,
		doc.ID, doc.OwnerID, doc.Organization, string(doc.Category), doc.DocumentNumber,
		doc.Digest, doc.StorageLocator, doc.TradeReference, issuedAt, doc.CreatedAt,
	).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return wrapDBError("insert document", err)
	}

	var existing string
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE digest = $1`, doc.Digest).Scan(&existing); err != nil {
		return wrapDBError("lookup digest owner", err)
	}
	return &domain.DuplicateDigestError{Digest: doc.Digest, ExistingID: existing}
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, wrapDBError("get document", err)
	}
	return doc, nil
}

func (r *DocumentRepository) GetByDigest(ctx context.Context, digest string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE digest = $1
`, digest)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document by digest", errors.New("no document with this digest"))
		}
		return nil, wrapDBError("get document by digest", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByOrganization(ctx context.Context, organization string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE ($1 = '*' OR organization = $1)
ORDER BY created_at DESC, id
`, organization)
	if err != nil {
		return nil, wrapDBError("list documents", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc      domain.Document
		category string
		issuedAt sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Organization, &category, &doc.DocumentNumber,
		&doc.Digest, &doc.StorageLocator, &doc.TradeReference, &issuedAt, &doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Category = domain.DocumentCategory(category)
	if issuedAt.Valid {
		t := issuedAt.Time
		doc.IssuedAt = &t
	}
	return &doc, nil
}
