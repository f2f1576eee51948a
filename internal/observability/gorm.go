package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	gormSpanKey        = "cmdbind:gorm:span"
	gormStartTimeKey   = "cmdbind:gorm:start"
	gormTimingStartKey = "cmdbind:gorm:timing_start"
	gormTimingPrefix   = "cmdbind_server_timing"
)

// RegisterGORMCallbacks registers GORM callbacks for audit store query
// tracing. This should be called after GORM is initialized and observability
// is configured. The audit store only creates and queries records, so only
// those callback groups are instrumented.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	if cfg == nil || cfg.TracerProvider == nil || !cfg.EnableAuditDBTracing {
		return nil
	}

	tracer := cfg.Tracer()

	if err := db.Callback().Query().Before("gorm:query").Register("cmdbind:before_query", beforeDBOp(tracer, "db.query")); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("cmdbind:after_query", afterDBOp(tracer, cfg)); err != nil {
		return err
	}

	if err := db.Callback().Create().Before("gorm:create").Register("cmdbind:before_create", beforeDBOp(tracer, "db.create")); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("cmdbind:after_create", afterDBOp(tracer, cfg)); err != nil {
		return err
	}

	if err := db.Callback().Raw().Before("gorm:raw").Register("cmdbind:before_raw", beforeDBOp(tracer, "db.raw")); err != nil {
		return err
	}
	if err := db.Callback().Raw().After("gorm:raw").Register("cmdbind:after_raw", afterDBOp(tracer, cfg)); err != nil {
		return err
	}

	return nil
}

// RegisterServerTimingCallbacks registers GORM callbacks that accumulate
// database operation duration for the "db" Server-Timing metric. This is
// independent of the tracing callbacks and can be enabled without
// OpenTelemetry.
func RegisterServerTimingCallbacks(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register(gormTimingPrefix+":before_query", beforeTiming); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register(gormTimingPrefix+":after_query", afterTiming); err != nil {
		return err
	}

	if err := db.Callback().Create().Before("gorm:create").Register(gormTimingPrefix+":before_create", beforeTiming); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register(gormTimingPrefix+":after_create", afterTiming); err != nil {
		return err
	}

	if err := db.Callback().Raw().Before("gorm:raw").Register(gormTimingPrefix+":before_raw", beforeTiming); err != nil {
		return err
	}
	if err := db.Callback().Raw().After("gorm:raw").Register(gormTimingPrefix+":after_raw", afterTiming); err != nil {
		return err
	}

	return nil
}

// beforeTiming records the start time of a database operation for server timing.
func beforeTiming(db *gorm.DB) {
	db.InstanceSet(gormTimingStartKey, time.Now())
}

// afterTiming calculates the duration of a database operation and adds it to
// the accumulator.
func afterTiming(db *gorm.DB) {
	startTimeVal, ok := db.InstanceGet(gormTimingStartKey)
	if !ok {
		return
	}

	startTime, ok := startTimeVal.(time.Time)
	if !ok {
		return
	}

	if db.Statement != nil && db.Statement.Context != nil {
		AddDBTime(db.Statement.Context, time.Since(startTime))
	}
}

func beforeDBOp(tracer *Tracer, spanName string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		ctx, span := tracer.StartSpan(ctx, spanName,
			attribute.String("db.system", "gorm"),
		)

		db.Statement.Context = ctx
		db.InstanceSet(gormSpanKey, span)
		db.InstanceSet(gormStartTimeKey, time.Now())
	}
}

func afterDBOp(tracer *Tracer, cfg *Config) func(*gorm.DB) {
	return func(db *gorm.DB) {
		spanVal, ok := db.InstanceGet(gormSpanKey)
		if !ok {
			return
		}

		span, ok := spanVal.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement != nil {
			if db.Statement.Table != "" {
				span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
			}
			span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
		}

		if db.Error != nil {
			tracer.RecordError(span, db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}

		if startTimeVal, ok := db.InstanceGet(gormStartTimeKey); ok {
			if startTime, ok := startTimeVal.(time.Time); ok {
				cfg.Metrics().RecordAuditWrite(db.Statement.Context, time.Since(startTime))
			}
		}
	}
}
