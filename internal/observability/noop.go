package observability

import (
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{
		tracer:      tracenoop.NewTracerProvider().Tracer(""),
		serviceName: "",
	}
}

// NewNoopMetrics creates metrics that do nothing.
func NewNoopMetrics() *Metrics {
	meter := noop.NewMeterProvider().Meter("")
	m := &Metrics{}

	// Note: noop meter never returns errors, but we must check them to satisfy the linter.
	m.bindDuration, _ = meter.Float64Histogram("cmdbind.bind.duration")            //nolint:errcheck
	m.bindCount, _ = meter.Int64Counter("cmdbind.bind.count")                      //nolint:errcheck
	m.decisionCount, _ = meter.Int64Counter("cmdbind.authz.decision.count")        //nolint:errcheck
	m.payloadSize, _ = meter.Int64Histogram("cmdbind.payload.size")                //nolint:errcheck
	m.auditDuration, _ = meter.Float64Histogram("cmdbind.audit.write.duration")    //nolint:errcheck
	m.errorCount, _ = meter.Int64Counter("cmdbind.error.count")                    //nolint:errcheck

	return m
}
