// Package auditlog defines the durable audit trail of checkout state
// transitions.
//
// Every transition an order goes through — checkout started, finalized,
// failed, a callback rejected — is appended as an immutable row. It serves
// two purposes:
//
//  1. Observability: the log can be joined with business data by order
//     number and correlated with a distributed trace via the trace_id field.
//
//  2. Manual review: rejected gateway callbacks (possible forgery or an
//     integration bug) land here for a human to look at.
package auditlog

import (
	"context"
	"time"
)

// Status is the transition being recorded.
type Status string

const (
	StatusStarted           Status = "CHECKOUT_STARTED"
	StatusFinalized         Status = "FINALIZED"
	StatusFailed            Status = "FAILED"
	StatusDeclined          Status = "DECLINED"
	StatusSignatureRejected Status = "SIGNATURE_REJECTED"
)

// Entry is a single row in the checkout_audit table: a point-in-time
// snapshot of an order's progress through checkout.
type Entry struct {
	// OrderNumber joins the entry with the order it describes. Empty when a
	// callback was rejected before its order reference could be trusted.
	OrderNumber string

	// Status is the transition recorded by this entry.
	Status Status

	// Stage names the operation that produced the entry, e.g.
	// "begin_checkout", "finalize", "payment_return".
	Stage string

	// Detail carries human-readable context: the failure reason, the raw
	// callback query of a rejected signature, and so on.
	Detail string

	// TraceID is the W3C trace ID of the span active when the entry was
	// written, for jumping from a row to the full trace.
	TraceID string

	// SpanID pinpoints the exact span within the trace.
	SpanID string

	// UpdatedAt is the wall-clock time of the transition.
	UpdatedAt time.Time
}

// Repository is the port for persisting audit entries. Append-only: each
// Save adds a row, never an upsert.
type Repository interface {
	Save(ctx context.Context, e *Entry) error
}
