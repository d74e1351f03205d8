// Package tracer provides a lightweight tracing abstraction for the vault.
//
// The vault depends on this interface rather than on OpenTelemetry directly:
//   - NoopTracer: for tests and the CLI's one-shot commands
//   - OTelTracer: OpenTelemetry adapter for the long-running server
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
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

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the vault.
const (
	SpanStore    = "vault.store"
	SpanRetrieve = "vault.retrieve"
	SpanSearch   = "vault.search"
	SpanDelete   = "vault.delete"
	SpanExpire   = "vault.expire"
	SpanHold     = "vault.hold"
)

// Attribute keys used by the vault. Owners are recorded only as hashes.
const (
	AttrArtifactID     = "artifact.id"
	AttrArtifactType   = "artifact.type"
	AttrRetentionClass = "artifact.retention_class"
	AttrOwnerHash      = "artifact.owner_hash"
	AttrFound          = "found"
	AttrDeleted        = "deleted"
	AttrCount          = "count"
	AttrCaseID         = "legal_hold.case_id"
)

// Event names used by the vault.
const (
	EventDeleteDenied = "delete.denied"
	EventOverwrite    = "store.overwrite"
)
