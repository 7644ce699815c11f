// Package sqlite provides a SQLite-backed implementation of
// auditlog.Repository.
//
// WAL mode is enabled on Open so readers never block the writer — the
// orchestrator appends while an operator may be querying the table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndlong/eshop-checkout/internal/checkout/auditlog"

	// Register the pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup. The table is append-only:
// each row is an immutable event in an order's checkout lifecycle.
const schema = `
CREATE TABLE IF NOT EXISTS checkout_audit (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Business identifier. Empty for rejected callbacks whose order
    -- reference could not be trusted.
    order_number    TEXT        NOT NULL DEFAULT '',

    -- Transition recorded by this row (CHECKOUT_STARTED, FINALIZED, ...).
    status          TEXT        NOT NULL,

    -- Operation that produced the row (begin_checkout, finalize, ...).
    stage           TEXT        NOT NULL DEFAULT '',

    -- Human-readable context: failure reason, raw rejected callback query.
    detail          TEXT        NOT NULL DEFAULT '',

    -- W3C trace_id / span_id of the active OTel span, for jumping from a
    -- row to the distributed trace.
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, SQLite idiom.
    updated_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkout_audit_order
    ON checkout_audit(order_number, updated_at);

CREATE INDEX IF NOT EXISTS idx_checkout_audit_trace
    ON checkout_audit(trace_id);
`

// Repository is the SQLite implementation of auditlog.Repository.
type Repository struct {
	db *sql.DB
}

var _ auditlog.Repository = (*Repository)(nil)

// Open opens (or creates) the audit database at the given path and applies
// the schema.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %q: %w", path, err)
	}

	// Single writer connection; SQLite performs best this way.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends a new audit entry. Safe to call concurrently.
func (r *Repository) Save(ctx context.Context, e *auditlog.Entry) error {
	const q = `
		INSERT INTO checkout_audit
			(order_number, status, stage, detail, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		e.OrderNumber,
		string(e.Status),
		e.Stage,
		e.Detail,
		e.TraceID,
		e.SpanID,
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("auditlog: save entry for %q: %w", e.OrderNumber, err)
	}
	return nil
}

// Latest returns the most recent entry for an order number. Useful for a
// status endpoint and for tests.
func (r *Repository) Latest(ctx context.Context, orderNumber string) (*auditlog.Entry, error) {
	const q = `
		SELECT order_number, status, stage, detail, trace_id, span_id, updated_at
		FROM   checkout_audit
		WHERE  order_number = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`

	row := r.db.QueryRowContext(ctx, q, orderNumber)

	var e auditlog.Entry
	var updatedAt string
	err := row.Scan(&e.OrderNumber, &e.Status, &e.Stage, &e.Detail, &e.TraceID, &e.SpanID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("auditlog: no entries for %q", orderNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("auditlog: latest for %q: %w", orderNumber, err)
	}

	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("auditlog: parse time %q: %w", updatedAt, err)
	}
	return &e, nil
}
