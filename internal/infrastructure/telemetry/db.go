package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls GORM instrumentation
type DBConfig struct {
	Tracing         bool
	SlowQueryThresh time.Duration
	// IncludeQueryVariables puts bound values into spans. Amounts and
	// phone numbers end up in the trace backend when set.
	IncludeQueryVariables bool
}

type startKey struct{}

// InstrumentDB registers otelgorm spans, a slow-query annotator and
// connection pool gauges on db
func InstrumentDB(db *gorm.DB, cfg DBConfig, meter metric.Meter, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tracing {
		var opts []otelgorm.Option
		opts = append(opts, otelgorm.WithDBName("postgresql"))
		if !cfg.IncludeQueryVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return fmt.Errorf("register otelgorm: %w", err)
		}
		if err := registerSlowQuery(db, cfg.SlowQueryThresh); err != nil {
			return fmt.Errorf("register slow query callbacks: %w", err)
		}
		logger.Info("database tracing enabled", zap.Duration("slow_query_threshold", cfg.SlowQueryThresh))
	}
	if meter != nil {
		if err := registerPoolGauges(db, meter); err != nil {
			return err
		}
	}
	return nil
}

func registerSlowQuery(db *gorm.DB, thresh time.Duration) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, startKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateSpan(tx, thresh) }

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("telemetry:before_create", before),
		cb.Query().Before("gorm:query").Register("telemetry:before_query", before),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", before),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", before),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", before),
		cb.Create().After("gorm:create").Register("telemetry:after_create", after),
		cb.Query().After("gorm:query").Register("telemetry:after_query", after),
		cb.Update().After("gorm:update").Register("telemetry:after_update", after),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", after),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", after),
	)
}

func annotateSpan(tx *gorm.DB, thresh time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.RecordError(tx.Error)
		span.SetStatus(codes.Error, tx.Error.Error())
	}
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok || thresh <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed >= thresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}

func registerPoolGauges(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	open, err := meter.Int64ObservableGauge("db.pool.connections",
		metric.WithDescription("Database connections by state"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db.pool.wait_count",
		metric.WithDescription("Connections waited for"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(open, int64(s.InUse), metric.WithAttributes(attribute.String("state", "in_use")))
		o.ObserveInt64(open, int64(s.Idle), metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, open, waits)
	return err
}
