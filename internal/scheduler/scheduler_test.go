package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/governor/internal/budget"
	"github.com/aegis-run/governor/internal/costtracker"
	"github.com/aegis-run/governor/internal/pricing"
	"github.com/aegis-run/governor/internal/store"
	"github.com/aegis-run/governor/internal/store/memstore"
)

type fixedTierResolver struct{ tier store.Tier }

func (f fixedTierResolver) TierFor(ctx context.Context, uid string) (store.Tier, error) {
	return f.tier, nil
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, store.Store) {
	t.Helper()
	s := memstore.New()
	pricingTable := &pricing.Table{}
	costs := costtracker.New(s, s, s, pricingTable, nil)
	budgets := budget.NewManager(budget.Options{
		Store:        s,
		TierResolver: fixedTierResolver{tier: store.TierPro},
		Clock:        func() time.Time { return now },
	})
	sched := New(Options{Store: s, Budgets: budgets, Costs: costs, Clock: func() time.Time { return now }})
	return sched, s
}

func TestMonthlyResetRollsPreviousPeriodUsers(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 5, 0, 0, time.UTC)
	sched, s := newTestScheduler(t, now)

	prevPeriod := "2026-07"
	_, err := s.GetOrCreate(context.Background(), "uid-1", prevPeriod, store.UserAIBudget{
		Tier: store.TierPro, BudgetUsd: 3, Status: store.StatusDegraded,
	})
	require.NoError(t, err)

	require.NoError(t, sched.runMonthlyReset(context.Background()))

	rolled, err := s.GetOrCreate(context.Background(), "uid-1", "2026-08", store.UserAIBudget{})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPremium, rolled.Status)
}

func TestDailyRollupAggregatesYesterday(t *testing.T) {
	now := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	sched, s := newTestScheduler(t, now)

	require.NoError(t, s.Append(context.Background(), store.LLMCallRecord{
		UID: "uid-1", Provider: "openai", Model: "gpt-4o", Cost: 0.02, Success: true,
		Timestamp: now.AddDate(0, 0, -1),
	}))

	require.NoError(t, sched.runDailyRollup(context.Background()))

	summary, err := s.Get(context.Background(), "2026-07-29")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalCalls)
}

func TestApproachingLimitSweepRerunsWithoutError(t *testing.T) {
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	sched, s := newTestScheduler(t, now)

	_, err := s.GetOrCreate(context.Background(), "uid-1", "2026-07", store.UserAIBudget{
		Tier: store.TierPro, BudgetUsd: 10, SpentUsd: 9, Status: store.StatusPremium,
	})
	require.NoError(t, err)

	require.NoError(t, sched.runApproachingLimitSweep(context.Background()))
	require.NoError(t, sched.runApproachingLimitSweep(context.Background()))
}
