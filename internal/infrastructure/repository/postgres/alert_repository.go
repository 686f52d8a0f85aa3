package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, alert_kind, severity, message, document_id, integrity_check_id, fingerprint, created_at, acknowledged, acknowledged_by, acknowledged_at`

// Create skips the insert when an open alert already carries the same
// fingerprint; the partial unique index makes that check atomic.
func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) (bool, error) {
	var checkID sql.NullInt64
	if alert.IntegrityCheckID != nil {
		checkID = sql.NullInt64{Int64: *alert.IntegrityCheckID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, `
INSERT INTO alerts (alert_kind, severity, message, document_id, integrity_check_id, fingerprint, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (fingerprint) WHERE fingerprint IS NOT NULL AND NOT acknowledged DO NOTHING
RETURNING id
`,
		alert.Kind, string(alert.Severity), alert.Message, nullStringPtr(alert.DocumentID), checkID,
		nullStringPtr(alert.Fingerprint), alert.CreatedAt,
	).Scan(&alert.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, wrapDBError("create alert", err)
	}
	return true, nil
}

func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter, page domain.Page) ([]domain.Alert, error) {
	var acknowledged sql.NullBool
	if filter.Acknowledged != nil {
		acknowledged = sql.NullBool{Bool: *filter.Acknowledged, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE ($1::boolean IS NULL OR acknowledged = $1::boolean)
  AND ($2 = '' OR alert_kind = $2)
ORDER BY id DESC
LIMIT $3 OFFSET $4
`, acknowledged, filter.Kind, page.Limit, page.Skip)
	if err != nil {
		return nil, wrapDBError("list alerts", err)
	}
	defer rows.Close()

	out := make([]domain.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// Acknowledge is a conditional update, so concurrent callers cannot both
// succeed.
func (r *AlertRepository) Acknowledge(ctx context.Context, id int64, by string, at time.Time) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE alerts
SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
WHERE id = $1 AND NOT acknowledged
RETURNING `+alertColumns+`
`, id, by, at)

	alert, err := scanAlert(row)
	if err == nil {
		return alert, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, wrapDBError("acknowledge alert", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, wrapDBError("lookup alert", err)
	}
	if exists {
		return nil, domain.WrapError(domain.ErrAlreadyAcknowledged, "acknowledge alert", fmt.Errorf("id=%d", id))
	}
	return nil, domain.WrapError(domain.ErrNotFound, "acknowledge alert", fmt.Errorf("id=%d", id))
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var (
		alert          domain.Alert
		severity       string
		documentID     sql.NullString
		checkID        sql.NullInt64
		fingerprint    sql.NullString
		acknowledgedBy sql.NullString
		acknowledgedAt sql.NullTime
	)
	err := row.Scan(
		&alert.ID, &alert.Kind, &severity, &alert.Message, &documentID, &checkID, &fingerprint,
		&alert.CreatedAt, &alert.Acknowledged, &acknowledgedBy, &acknowledgedAt,
	)
	if err != nil {
		return nil, err
	}
	alert.Severity = domain.AlertSeverity(severity)
	alert.DocumentID = stringPtr(documentID)
	alert.Fingerprint = stringPtr(fingerprint)
	alert.AcknowledgedBy = stringPtr(acknowledgedBy)
	if checkID.Valid {
		v := checkID.Int64
		alert.IntegrityCheckID = &v
	}
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		alert.AcknowledgedAt = &t
	}
	return &alert, nil
}
