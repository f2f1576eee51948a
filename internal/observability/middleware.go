package observability

import (
	"net/http"

	servertiming "github.com/mitchellh/go-server-timing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware returns an HTTP middleware that instruments requests with
// tracing. It uses otelhttp for automatic span propagation and HTTP semantic
// attributes.
func HTTPMiddleware(cfg *Config) func(http.Handler) http.Handler {
	if cfg == nil || cfg.TracerProvider == nil {
		// Return a passthrough middleware if tracing is not configured
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	opts := []otelhttp.Option{otelhttp.WithTracerProvider(cfg.TracerProvider)}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "cmdbind.http", opts...)
	}
}

// ServerTimingMiddleware returns an HTTP middleware that attaches a
// Server-Timing header collector and a database time accumulator to each
// request. When server timing is not enabled it is a passthrough.
func ServerTimingMiddleware(cfg *Config) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.EnableServerTiming {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		withAccumulator := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithDBTimeAccumulator(r.Context())))
		})
		return servertiming.Middleware(withAccumulator, nil)
	}
}
