package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/governor/internal/store"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	defaults := store.UserAIBudget{Tier: store.TierPro, BudgetUsd: 20, ResetAt: time.Now()}

	first, err := s.GetOrCreate(ctx, "u1", "2026-07", defaults)
	require.NoError(t, err)
	assert.Equal(t, 20.0, first.BudgetUsd)

	defaults.BudgetUsd = 999
	second, err := s.GetOrCreate(ctx, "u1", "2026-07", defaults)
	require.NoError(t, err)
	assert.Equal(t, 20.0, second.BudgetUsd, "second call must not overwrite existing budget")
}

func TestWithLockAppliesUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, "u1", "2026-07", store.UserAIBudget{Tier: store.TierPro, BudgetUsd: 20, ResetAt: time.Now()})
	require.NoError(t, err)

	updated, err := s.WithLock(ctx, "u1", "2026-07", func(b store.UserAIBudget) (store.UserAIBudget, error) {
		b.SpentUsd += 5
		return b, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated.SpentUsd)
	assert.Equal(t, int64(2), updated.Version)
}

func TestWithLockOnMissingBudget(t *testing.T) {
	s := New()
	_, err := s.WithLock(context.Background(), "missing", "2026-07", func(b store.UserAIBudget) (store.UserAIBudget, error) {
		return b, nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApproachingLimitFiltersByFraction(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.GetOrCreate(ctx, "low", "2026-07", store.UserAIBudget{BudgetUsd: 100, SpentUsd: 10, ResetAt: time.Now()})
	_, _ = s.GetOrCreate(ctx, "high", "2026-07", store.UserAIBudget{BudgetUsd: 100, SpentUsd: 85, ResetAt: time.Now()})

	out, err := s.ApproachingLimit(ctx, "2026-07", 0.8)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "high", out[0].UID)
}

func TestJobRunIdempotency(t *testing.T) {
	s := New()
	ctx := context.Background()
	runAt := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	started, err := s.Start(ctx, "monthly-reset", runAt)
	require.NoError(t, err)
	assert.True(t, started)

	startedAgain, err := s.Start(ctx, "monthly-reset", runAt)
	require.NoError(t, err)
	assert.False(t, startedAgain, "a second Start for the same run must be rejected")

	require.NoError(t, s.Finish(ctx, "monthly-reset", runAt, "succeeded", ""))
}

func TestCallRecordListing(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Append(ctx, store.LLMCallRecord{UID: "u1", RequestID: "r1", Timestamp: now}))
	require.NoError(t, s.Append(ctx, store.LLMCallRecord{UID: "u2", RequestID: "r2", Timestamp: now}))

	out, err := s.ListForUser(ctx, "u1", now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].RequestID)
}
