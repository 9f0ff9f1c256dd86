package costtracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aegis-run/governor/internal/pricing"
	"github.com/aegis-run/governor/internal/store"
	"github.com/aegis-run/governor/internal/store/memstore"
)

func writePricing(t *testing.T) *pricing.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
defaults: {input_per_1k: 0.001, output_per_1k: 0.002}
providers:
  anthropic:
    claude-3-haiku: {input_per_1k: 0.00025, output_per_1k: 0.00125}
`), 0o644))
	table, err := pricing.NewTable(path)
	require.NoError(t, err)
	return table
}

func TestRecordAppendsCall(t *testing.T) {
	st := memstore.New()
	tracker := New(st, st, st, writePricing(t), zaptest.NewLogger(t))
	ctx := context.Background()

	tracker.Record(ctx, store.LLMCallRecord{RequestID: "r1", UID: "u1", Provider: "anthropic", Model: "claude-3-haiku", Cost: 0.01, Success: true, Timestamp: time.Now()})

	out, err := st.ListForUser(ctx, "u1", time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].RequestID)
}

func TestRecordIncrementsDailyUsageOnlyOnSuccess(t *testing.T) {
	st := memstore.New()
	tracker := New(st, st, st, writePricing(t), zaptest.NewLogger(t))
	ctx := context.Background()
	day := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)

	tracker.Record(ctx, store.LLMCallRecord{RequestID: "r1", UID: "u1", RequestType: "fitness:coach-chat", Cost: 0.02, Success: true, Timestamp: day})
	tracker.Record(ctx, store.LLMCallRecord{RequestID: "r2", UID: "u1", RequestType: "fitness:coach-chat", Cost: 5.00, Success: false, Timestamp: day})
	tracker.Record(ctx, store.LLMCallRecord{RequestID: "r3", UID: "u1", RequestType: "fitness:meal-plan", Cost: 0.01, Success: true, Timestamp: day})

	usage, err := st.GetDaily(ctx, "u1", "2026-07-15")
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.TotalCalls, "the failed call must not be counted")
	assert.InDelta(t, 0.03, usage.TotalCostUsd, 1e-9)
	assert.Equal(t, int64(1), usage.RequestTypes["fitness:coach-chat"])
	assert.Equal(t, int64(1), usage.RequestTypes["fitness:meal-plan"])
}

func TestAggregateDailyIsIdempotent(t *testing.T) {
	st := memstore.New()
	tracker := New(st, st, st, writePricing(t), zaptest.NewLogger(t))
	ctx := context.Background()
	day := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	tracker.Record(ctx, store.LLMCallRecord{RequestID: "r1", UID: "u1", Provider: "anthropic", RequestType: "fitness:coach-chat", RoutingPreference: "quality", Cost: 0.02, Success: true, Timestamp: day})
	tracker.Record(ctx, store.LLMCallRecord{RequestID: "r2", UID: "u2", Provider: "anthropic", RequestType: "fitness:coach-chat", RoutingPreference: "cost", Cost: 0.01, Success: true, Timestamp: day})

	first, err := tracker.AggregateDaily(ctx, "2026-07-15")
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.TotalCalls)
	assert.InDelta(t, 0.03, first.TotalCostUsd, 1e-9)

	second, err := tracker.AggregateDaily(ctx, "2026-07-15")
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-running AggregateDaily for the same date must produce a byte-identical document")
}

func TestCostEstimateDelegatesToPricingTable(t *testing.T) {
	st := memstore.New()
	tracker := New(st, st, st, writePricing(t), zaptest.NewLogger(t))
	cost := tracker.CostEstimate("anthropic", "claude-3-haiku", 1000, 1000)
	assert.InDelta(t, 0.0015, cost, 1e-9)
}
