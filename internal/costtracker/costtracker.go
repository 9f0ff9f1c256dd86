// Package costtracker records completed LLM calls (C6): an append-only
// write to the call ledger, plus idempotent daily aggregation for
// finance/ops reporting. Cost estimation itself is a pure pass-through to
// the pricing table (C1).
package costtracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/pricing"
	"github.com/aegis-run/governor/internal/store"
)

// Tracker records calls and produces daily rollups.
type Tracker struct {
	calls   store.CallRecordStore
	summary store.SummaryStore
	usage   store.UsageStore
	pricing *pricing.Table
	logger  *zap.Logger
}

func New(calls store.CallRecordStore, summary store.SummaryStore, usage store.UsageStore, pricingTable *pricing.Table, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{calls: calls, summary: summary, usage: usage, pricing: pricingTable, logger: logger}
}

// CostEstimate delegates to the pricing table; exposed here so callers in
// the request path don't need to import both packages.
func (t *Tracker) CostEstimate(provider, model string, inputTokens, outputTokens int) float64 {
	return t.pricing.CostEstimate(provider, model, inputTokens, outputTokens)
}

// Record appends one call outcome to the ledger and, on success, folds it
// into the caller's (uid, today) usage aggregate. Failures are logged, not
// returned to the caller's hot path — a lost audit row must never abort
// or retry an LLM call that already completed.
func (t *Tracker) Record(ctx context.Context, rec store.LLMCallRecord) {
	if err := t.calls.Append(ctx, rec); err != nil {
		t.logger.Error("cost tracker: failed to append call record",
			zap.String("request_id", rec.RequestID), zap.String("uid", rec.UID), zap.Error(err))
	}

	if !rec.Success {
		return
	}
	requestType := rec.RequestType
	if requestType == "" {
		requestType = "unknown"
	}
	date := rec.Timestamp.Format("2006-01-02")
	if err := t.usage.IncrementDaily(ctx, rec.UID, date, rec.Cost, requestType); err != nil {
		t.logger.Error("cost tracker: failed to increment daily usage aggregate",
			zap.String("uid", rec.UID), zap.String("date", date), zap.Error(err))
	}
}

// AggregateDaily recomputes and stores the rollup for date (YYYY-MM-DD).
// Idempotent: re-running for the same date fully replaces the prior
// summary rather than double-counting.
func (t *Tracker) AggregateDaily(ctx context.Context, date string) (store.DailyCostSummary, error) {
	records, err := t.calls.ListForDate(ctx, date)
	if err != nil {
		return store.DailyCostSummary{}, fmt.Errorf("costtracker: list calls for %s: %w", date, err)
	}

	generatedAt, err := time.Parse("2006-01-02", date)
	if err != nil {
		return store.DailyCostSummary{}, fmt.Errorf("costtracker: invalid date %q: %w", date, err)
	}

	summary := store.DailyCostSummary{
		Date:          date,
		ByProvider:    map[string]float64{},
		ByRequestType: map[string]float64{},
		ByPreference:  map[string]float64{},
		// Derived from date, not time.Now(): AggregateDaily must produce a
		// byte-identical document on every re-run for the same date.
		GeneratedAt: generatedAt,
	}
	perUser := map[string]float64{}

	for _, rec := range records {
		summary.TotalCalls++
		summary.TotalCostUsd += rec.Cost
		summary.ByProvider[rec.Provider] += rec.Cost
		summary.ByRequestType[rec.RequestType] += rec.Cost
		summary.ByPreference[rec.RoutingPreference] += rec.Cost
		perUser[rec.UID] += rec.Cost
	}

	summary.TopUsers = topN(perUser, 10)

	if err := t.summary.Put(ctx, summary); err != nil {
		return store.DailyCostSummary{}, fmt.Errorf("costtracker: put summary for %s: %w", date, err)
	}
	return summary, nil
}

func topN(costs map[string]float64, n int) []store.UserCost {
	out := make([]store.UserCost, 0, len(costs))
	for uid, cost := range costs {
		out = append(out, store.UserCost{UID: uid, CostUsd: cost})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CostUsd != out[j].CostUsd {
			return out[i].CostUsd > out[j].CostUsd
		}
		return out[i].UID < out[j].UID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
