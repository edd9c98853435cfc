// Package tracer provides a lightweight tracing abstraction.
//
// Services depend on the Tracer interface rather than OpenTelemetry directly.
// NoopTracer serves tests; OTelTracer adapts the global OpenTelemetry provider.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanVerify        = "verification.verify"
	SpanLedgerLookup  = "verification.ledger_lookup"
	SpanIndexLocator  = "verification.index_locator"
	SpanIssue         = "issuance.issue"
	SpanRevoke        = "issuance.revoke"
	SpanDocumentStore = "issuance.document_put"
)
