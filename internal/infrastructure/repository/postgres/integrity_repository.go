package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type IntegrityRepository struct {
	db *sql.DB
}

func NewIntegrityRepository(db *sql.DB) *IntegrityRepository {
	return &IntegrityRepository{db: db}
}

func (r *IntegrityRepository) Append(ctx context.Context, result *domain.IntegrityCheckResult) error {
	err := r.db.QueryRowContext(ctx, `
INSERT INTO integrity_checks (document_id, run_id, check_kind, status, stored_digest, computed_digest, checked_at, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`,
		result.DocumentID, result.RunID, result.CheckKind, string(result.Status), result.StoredDigest,
		nullStringPtr(result.ComputedDigest), result.CheckedAt, result.Remarks,
	).Scan(&result.ID)
	if err != nil {
		return wrapDBError("append integrity check", err)
	}
	return nil
}

func (r *IntegrityRepository) List(ctx context.Context, filter domain.IntegrityCheckFilter, page domain.Page) ([]domain.IntegrityCheckResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.document_id, c.run_id, c.check_kind, c.status, c.stored_digest, c.computed_digest, c.checked_at, c.remarks
FROM integrity_checks c
JOIN documents d ON d.id = c.document_id
WHERE ($1 = '*' OR d.organization = $1)
  AND ($2 = '' OR c.document_id = $2)
  AND ($3 = '' OR c.status = $3)
ORDER BY c.id DESC
LIMIT $4 OFFSET $5
`, filter.Organization, filter.DocumentID, string(filter.Status), page.Limit, page.Skip)
	if err != nil {
		return nil, wrapDBError("list integrity checks", err)
	}
	defer rows.Close()

	out := make([]domain.IntegrityCheckResult, 0)
	for rows.Next() {
		var (
			result   domain.IntegrityCheckResult
			status   string
			computed sql.NullString
		)
		err := rows.Scan(
			&result.ID, &result.DocumentID, &result.RunID, &result.CheckKind, &status,
			&result.StoredDigest, &computed, &result.CheckedAt, &result.Remarks,
		)
		if err != nil {
			return nil, fmt.Errorf("scan integrity check: %w", err)
		}
		result.Status = domain.IntegrityStatus(status)
		result.ComputedDigest = stringPtr(computed)
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrity checks: %w", err)
	}
	return out, nil
}

func (r *IntegrityRepository) CountByStatus(ctx context.Context, organization string) (map[domain.IntegrityStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.status, COUNT(*)
FROM integrity_checks c
JOIN documents d ON d.id = c.document_id
WHERE ($1 = '*' OR d.organization = $1)
GROUP BY c.status
`, organization)
	if err != nil {
		return nil, wrapDBError("count integrity checks", err)
	}
	defer rows.Close()

	counts := map[domain.IntegrityStatus]int64{}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan integrity count: %w", err)
		}
		counts[domain.IntegrityStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrity counts: %w", err)
	}
	return counts, nil
}
