package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `l.id, l.document_id, l.event_kind, l.actor_id, l.actor_organization, l.origin_address, l.user_agent, l.digest_before, l.digest_after, l.description, l.metadata, l.created_at`

// Append inserts the entry only if its document exists, in one statement.
// The sequence and clock_timestamp() supply ordering and time.
func (r *LedgerRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
INSERT INTO ledger_entries (
	document_id, event_kind, actor_id, actor_organization, origin_address, user_agent, digest_before, digest_after, description, metadata
)
SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text, $9::text, $10::jsonb
WHERE EXISTS (SELECT 1 FROM documents WHERE id = $1::text)
RETURNING id, created_at
`,
		entry.DocumentID, string(entry.Kind), entry.ActorID, entry.ActorOrganization, entry.OriginAddress, entry.UserAgent,
		nullStringPtr(entry.DigestBefore), nullStringPtr(entry.DigestAfter), entry.Description, string(metadataJSON),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "append ledger entry", fmt.Errorf("document %s does not exist", entry.DocumentID))
		}
		return wrapDBError("append ledger entry", err)
	}
	entry.Metadata = metadata
	return nil
}

func (r *LedgerRepository) List(ctx context.Context, filter domain.LedgerFilter, page domain.Page) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+ledgerColumns+`
FROM ledger_entries l
JOIN documents d ON d.id = l.document_id
WHERE ($1 = '*' OR d.organization = $1)
  AND ($2 = '' OR l.event_kind = $2)
  AND ($3 = '' OR l.document_id = $3)
ORDER BY l.id DESC
LIMIT $4 OFFSET $5
`, filter.Organization, string(filter.Kind), filter.DocumentID, page.Limit, page.Skip)
	if err != nil {
		return nil, wrapDBError("list ledger entries", err)
	}
	return collectEntries(rows)
}

func (r *LedgerRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+ledgerColumns+`
FROM ledger_entries l
WHERE l.document_id = $1
ORDER BY l.id ASC
`, documentID)
	if err != nil {
		return nil, wrapDBError("list document ledger", err)
	}
	return collectEntries(rows)
}

func (r *LedgerRepository) GetByID(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+ledgerColumns+`
FROM ledger_entries l
WHERE l.id = $1
`, id)
	if err != nil {
		return nil, wrapDBError("get ledger entry", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "get ledger entry", fmt.Errorf("entry %d does not exist", id))
	}
	return &entries[0], nil
}

func (r *LedgerRepository) CountByKind(ctx context.Context, organization string, since time.Time) (map[domain.EventKind]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT l.event_kind, COUNT(*)
FROM ledger_entries l
JOIN documents d ON d.id = l.document_id
WHERE ($1 = '*' OR d.organization = $1)
  AND l.created_at >= $2
GROUP BY l.event_kind
`, organization, since)
	if err != nil {
		return nil, wrapDBError("count ledger entries", err)
	}
	defer rows.Close()

	counts := map[domain.EventKind]int64{}
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan event kind count: %w", err)
		}
		counts[domain.EventKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event kind counts: %w", err)
	}
	return counts, nil
}

func (r *LedgerRepository) MostActiveDocuments(ctx context.Context, organization string, limit int) ([]domain.DocumentActivity, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT l.document_id, COUNT(*) AS entries
FROM ledger_entries l
JOIN documents d ON d.id = l.document_id
WHERE ($1 = '*' OR d.organization = $1)
GROUP BY l.document_id
ORDER BY entries DESC, l.document_id
LIMIT $2
`, organization, limit)
	if err != nil {
		return nil, wrapDBError("most active documents", err)
	}
	return collectDocumentActivity(rows)
}

func (r *LedgerRepository) ActorsAbove(ctx context.Context, kind domain.EventKind, since time.Time, threshold int) ([]domain.ActorActivity, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT actor_id, actor_organization, COUNT(*) AS entries
FROM ledger_entries
WHERE event_kind = $1
  AND created_at >= $2
GROUP BY actor_id, actor_organization
HAVING COUNT(*) >= $3
ORDER BY entries DESC
`, string(kind), since, threshold)
	if err != nil {
		return nil, wrapDBError("actors above threshold", err)
	}
	defer rows.Close()

	out := make([]domain.ActorActivity, 0)
	for rows.Next() {
		var activity domain.ActorActivity
		if err := rows.Scan(&activity.ActorID, &activity.ActorOrganization, &activity.EntryCount); err != nil {
			return nil, fmt.Errorf("scan actor activity: %w", err)
		}
		out = append(out, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actor activity: %w", err)
	}
	return out, nil
}

func (r *LedgerRepository) DocumentsWithMismatches(ctx context.Context, since time.Time, threshold int) ([]domain.DocumentActivity, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, COUNT(*) AS entries
FROM ledger_entries
WHERE event_kind = 'VERIFIED'
  AND metadata->>'outcome' = 'mismatch'
  AND created_at >= $1
GROUP BY document_id
HAVING COUNT(*) >= $2
ORDER BY entries DESC
`, since, threshold)
	if err != nil {
		return nil, wrapDBError("documents with mismatches", err)
	}
	return collectDocumentActivity(rows)
}

func collectEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()

	out := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var (
			entry        domain.LedgerEntry
			kind         string
			digestBefore sql.NullString
			digestAfter  sql.NullString
			metadataRaw  []byte
		)
		err := rows.Scan(
			&entry.ID, &entry.DocumentID, &kind, &entry.ActorID, &entry.ActorOrganization, &entry.OriginAddress,
			&entry.UserAgent, &digestBefore, &digestAfter, &entry.Description, &metadataRaw, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.Kind = domain.EventKind(kind)
		entry.DigestBefore = stringPtr(digestBefore)
		entry.DigestAfter = stringPtr(digestAfter)
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}

func collectDocumentActivity(rows *sql.Rows) ([]domain.DocumentActivity, error) {
	defer rows.Close()

	out := make([]domain.DocumentActivity, 0)
	for rows.Next() {
		var activity domain.DocumentActivity
		if err := rows.Scan(&activity.DocumentID, &activity.EntryCount); err != nil {
			return nil, fmt.Errorf("scan document activity: %w", err)
		}
		out = append(out, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document activity: %w", err)
	}
	return out, nil
}
