package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaLockID = int64(2026031701)

// EnsureSchema creates tables, indexes and the triggers that keep digests
// immutable and the ledger append-only. It is safe to run from several
// processes at once.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	organization TEXT NOT NULL,
	category TEXT NOT NULL,
	document_number TEXT NOT NULL,
	digest TEXT NOT NULL,
	storage_locator TEXT NOT NULL,
	trade_reference TEXT NOT NULL DEFAULT '',
	issued_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT documents_digest_key UNIQUE (digest),
	CONSTRAINT documents_digest_format CHECK (digest ~ '^[0-9a-f]{64}$')
);

CREATE INDEX IF NOT EXISTS idx_documents_org_created ON documents(organization, created_at DESC);

CREATE OR REPLACE FUNCTION documents_digest_immutable() RETURNS trigger AS $$
BEGIN
	IF NEW.digest <> OLD.digest THEN
		RAISE EXCEPTION 'document digest is immutable';
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_documents_digest_immutable ON documents;
CREATE TRIGGER trg_documents_digest_immutable
	BEFORE UPDATE ON documents
	FOR EACH ROW EXECUTE FUNCTION documents_digest_immutable();

CREATE OR REPLACE FUNCTION reject_append_only_mutation() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END;
$$ LANGUAGE plpgsql;

CREATE TABLE IF NOT EXISTS ledger_entries (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	event_kind TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	actor_organization TEXT NOT NULL,
	origin_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	digest_before TEXT,
	digest_after TEXT,
	description TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS idx_ledger_document ON ledger_entries(document_id, id);
CREATE INDEX IF NOT EXISTS idx_ledger_kind_created ON ledger_entries(event_kind, created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger_entries(created_at);

DROP TRIGGER IF EXISTS trg_ledger_entries_append_only ON ledger_entries;
CREATE TRIGGER trg_ledger_entries_append_only
	BEFORE UPDATE OR DELETE ON ledger_entries
	FOR EACH ROW EXECUTE FUNCTION reject_append_only_mutation();

CREATE TABLE IF NOT EXISTS integrity_checks (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	run_id TEXT NOT NULL,
	check_kind TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PASS', 'FAIL', 'PENDING')),
	stored_digest TEXT NOT NULL,
	computed_digest TEXT,
	checked_at TIMESTAMPTZ NOT NULL,
	remarks TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_integrity_checks_document ON integrity_checks(document_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_integrity_checks_status ON integrity_checks(status);
CREATE INDEX IF NOT EXISTS idx_integrity_checks_run ON integrity_checks(run_id);

DROP TRIGGER IF EXISTS trg_integrity_checks_append_only ON integrity_checks;
CREATE TRIGGER trg_integrity_checks_append_only
	BEFORE UPDATE OR DELETE ON integrity_checks
	FOR EACH ROW EXECUTE FUNCTION reject_append_only_mutation();

CREATE TABLE IF NOT EXISTS alerts (
	id BIGSERIAL PRIMARY KEY,
	alert_kind TEXT NOT NULL,
	severity TEXT NOT NULL CHECK (severity IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
	message TEXT NOT NULL,
	document_id TEXT,
	integrity_check_id BIGINT REFERENCES integrity_checks(id),
	fingerprint TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
	acknowledged_by TEXT,
	acknowledged_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts(acknowledged, id DESC);
CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_open_fingerprint
	ON alerts(fingerprint)
	WHERE fingerprint IS NOT NULL AND NOT acknowledged;
`
