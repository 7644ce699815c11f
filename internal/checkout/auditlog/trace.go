package auditlog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	TraceID string // 32 lowercase hex chars, empty when no span is active
	SpanID  string // 16 lowercase hex chars
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx and returns
// its trace and span ids as hex strings. Contexts without an active span
// (unit tests, background work) yield empty strings.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry builds an Entry with the trace info extracted from ctx.
func NewEntry(ctx context.Context, orderNumber string, status Status, stage, detail string) *Entry {
	ti := ExtractTraceInfo(ctx)
	return &Entry{
		OrderNumber: orderNumber,
		Status:      status,
		Stage:       stage,
		Detail:      detail,
		TraceID:     ti.TraceID,
		SpanID:      ti.SpanID,
		UpdatedAt:   time.Now().UTC(),
	}
}
