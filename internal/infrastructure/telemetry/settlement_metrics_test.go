package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestSettlementMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewSettlementMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOperation(ctx, "settle", 20*time.Millisecond, nil)
	m.RecordOperation(ctx, "settle", time.Millisecond, shared.NewDomainError("FORBIDDEN", "no"))
	m.RecordOperation(ctx, "assign_to_agent", time.Millisecond, errors.New("db down"))
	m.RecordEntry(ctx, settlement.EntryTypeReturn, decimal.RequireFromString("-12.50"))

	data := collect(t, reader)

	ops, ok := data["settlement.operations"].(metricdata.Sum[int64])
	require.True(t, ok)
	outcomes := map[string]int64{}
	for _, dp := range ops.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		outcomes[v.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"ok": 1, "FORBIDDEN": 1, "error": 1}, outcomes)

	amounts, ok := data["settlement.ledger.amount"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, amounts.DataPoints, 1)
	assert.InDelta(t, 12.5, amounts.DataPoints[0].Sum, 0.0001)
	entryType, _ := amounts.DataPoints[0].Attributes.Value(attribute.Key("entry_type"))
	assert.Equal(t, string(settlement.EntryTypeReturn), entryType.AsString())
}
