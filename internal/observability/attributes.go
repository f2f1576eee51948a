// Package observability provides OpenTelemetry-based instrumentation for the
// command binding pipeline.
//
// It supports distributed tracing, metrics collection, and enhanced
// structured logging.
//
// All observability features are opt-in. When not configured, no-op
// implementations are used with zero performance overhead.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/nlstn/go-cmdbind"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/nlstn/go-cmdbind"
)

// Semantic attribute keys following OpenTelemetry conventions.
const (
	// Pipeline attributes
	AttrCommand     = "cmdbind.command"
	AttrEndpoint    = "cmdbind.endpoint"
	AttrOperation   = "cmdbind.operation"
	AttrPayloadSize = "cmdbind.payload_size"

	// Authorization attributes
	AttrCheck         = "cmdbind.check"
	AttrAllowed       = "cmdbind.allowed"
	AttrReason        = "cmdbind.reason"
	AttrAuthenticated = "cmdbind.identity.authenticated"

	// Error attributes
	AttrErrorReason  = "cmdbind.error.reason"
	AttrErrorMessage = "cmdbind.error.message"
)

// Operation types for the cmdbind.operation attribute.
const (
	OpBind      = "bind"
	OpDecode    = "decode"
	OpAuthorize = "authorize"
	OpAudit     = "audit"
)

// Log field keys for structured logging with trace context.
const (
	LogFieldCommand  = "cmdbind.command"
	LogFieldEndpoint = "cmdbind.endpoint"
	LogFieldReason   = "cmdbind.reason"
	LogFieldTraceID  = "trace_id"
	LogFieldSpanID   = "span_id"
	LogFieldDuration = "duration_ms"
	LogFieldError    = "error"
)

// CommandAttr creates an attribute for the command name.
func CommandAttr(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

// EndpointAttr creates an attribute for the endpoint path.
func EndpointAttr(path string) attribute.KeyValue {
	return attribute.String(AttrEndpoint, path)
}

// OperationAttr creates an attribute for the operation type.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// ReasonAttr creates an attribute for a decision reason code.
func ReasonAttr(reason string) attribute.KeyValue {
	return attribute.String(AttrReason, reason)
}

// AllowedAttr creates an attribute for the decision outcome.
func AllowedAttr(allowed bool) attribute.KeyValue {
	return attribute.Bool(AttrAllowed, allowed)
}

// CheckAttr creates an attribute for an authorization check name.
func CheckAttr(name string) attribute.KeyValue {
	return attribute.String(AttrCheck, name)
}

// PayloadSizeAttr creates an attribute for the payload size in bytes.
func PayloadSizeAttr(size int) attribute.KeyValue {
	return attribute.Int(AttrPayloadSize, size)
}

// AuthenticatedAttr creates an attribute for the caller's authentication state.
func AuthenticatedAttr(authenticated bool) attribute.KeyValue {
	return attribute.Bool(AttrAuthenticated, authenticated)
}
