package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var _ appsettlement.MetricsRecorder = (*SettlementMetrics)(nil)

var (
	attrOperation = attribute.Key("operation")
	attrOutcome   = attribute.Key("outcome")
	attrEntryType = attribute.Key("entry_type")
)

var (
	operationDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	amountBuckets            = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}
)

// SettlementMetrics records operation counts, latencies and ledger amounts
type SettlementMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	entries    metric.Int64Counter
	amount     metric.Float64Histogram
}

// NewSettlementMetrics creates the instruments on meter
func NewSettlementMetrics(meter metric.Meter) (*SettlementMetrics, error) {
	m := &SettlementMetrics{}
	var err error
	if m.operations, err = meter.Int64Counter("settlement.operations",
		metric.WithDescription("Settlement operations by outcome"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("failed to create settlement.operations: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("settlement.operation.duration",
		metric.WithDescription("Settlement operation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(operationDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create settlement.operation.duration: %w", err)
	}
	if m.entries, err = meter.Int64Counter("settlement.ledger.entries",
		metric.WithDescription("Ledger entries appended"),
		metric.WithUnit("{entry}")); err != nil {
		return nil, fmt.Errorf("failed to create settlement.ledger.entries: %w", err)
	}
	if m.amount, err = meter.Float64Histogram("settlement.ledger.amount",
		metric.WithDescription("Absolute amount of appended ledger entries"),
		metric.WithExplicitBucketBoundaries(amountBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create settlement.ledger.amount: %w", err)
	}
	return m, nil
}

// RecordOperation counts one operation. The outcome label is "ok" or the
// domain error code, "error" for infrastructure failures.
func (m *SettlementMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attrOperation.String(operation), attrOutcome.String(outcome(err)))
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEntry counts one appended ledger entry
func (m *SettlementMetrics) RecordEntry(ctx context.Context, entryType settlement.EntryType, amount decimal.Decimal) {
	attrs := metric.WithAttributes(attrEntryType.String(string(entryType)))
	m.entries.Add(ctx, 1, attrs)
	m.amount.Record(ctx, amount.Abs().InexactFloat64(), attrs)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := shared.CodeOf(err); code != "" {
		return code
	}
	return "error"
}
