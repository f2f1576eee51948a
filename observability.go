package cmdbind

import "github.com/nlstn/go-cmdbind/internal/observability"

// ObservabilityOption configures tracing and metrics for the service.
type ObservabilityOption = observability.Option

// WithTracerProvider sets the OpenTelemetry tracer provider.
var WithTracerProvider = observability.WithTracerProvider

// WithMeterProvider sets the OpenTelemetry meter provider.
var WithMeterProvider = observability.WithMeterProvider

// WithServiceName sets the service name reported on spans and metrics.
var WithServiceName = observability.WithServiceName

// WithServiceVersion sets the service version reported on spans and metrics.
var WithServiceVersion = observability.WithServiceVersion

// WithAuditDBTracing enables span creation for audit database operations.
var WithAuditDBTracing = observability.WithAuditDBTracing

// WithServerTiming adds Server-Timing response headers with per-stage
// durations.
var WithServerTiming = observability.WithServerTiming
