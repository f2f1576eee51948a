package observability

import (
	"context"
	"sync"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric wraps the server-timing library's Metric type.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *ServerTimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartServerTiming starts a server-timing metric with the given name.
// Returns a metric that should be stopped when the timed operation completes.
// If server timing is not enabled or the context doesn't contain timing info,
// returns a no-op metric.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}

	return &ServerTimingMetric{
		metric: timing.NewMetric(name).Start(),
	}
}

// dbTimeAccumulator collects database time spent during a request so it can
// be reported as a single "db" Server-Timing metric.
type dbTimeAccumulator struct {
	mu    sync.Mutex
	total time.Duration
}

type dbTimeContextKey struct{}

// WithDBTimeAccumulator attaches a database time accumulator to the context.
func WithDBTimeAccumulator(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbTimeContextKey{}, &dbTimeAccumulator{})
}

// AddDBTime adds a database operation duration to the request accumulator,
// if one is present.
func AddDBTime(ctx context.Context, d time.Duration) {
	acc, ok := ctx.Value(dbTimeContextKey{}).(*dbTimeAccumulator)
	if !ok {
		return
	}
	acc.mu.Lock()
	acc.total += d
	acc.mu.Unlock()
}

// DBTime returns the accumulated database time for the request.
func DBTime(ctx context.Context) time.Duration {
	acc, ok := ctx.Value(dbTimeContextKey{}).(*dbTimeAccumulator)
	if !ok {
		return 0
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.total
}

// FlushDBTiming reports the accumulated database time as a single "db"
// Server-Timing metric. Must run before the response body is written, since
// the header is emitted on first write.
func FlushDBTiming(ctx context.Context) {
	d := DBTime(ctx)
	if d <= 0 {
		return
	}
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return
	}
	timing.NewMetric("db").Duration = d
}
