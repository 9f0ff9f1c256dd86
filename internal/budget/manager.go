// Package budget implements the per-user, per-period AI spend state
// machine (C7): premium -> degraded -> blocked, one-way within a period,
// with a lazy period roll and an explicit tier-upgrade escape hatch.
//
// Grounded on the teacher's BudgetManager/TokenBudget warning-threshold
// idiom ("soft downgrade at 80% of budget") generalized from an
// in-process token ceiling to a store-backed USD state machine, and on
// spec.md §9's instruction to serialize at the store layer rather than
// in-process: every mutation goes through store.BudgetStore.WithLock,
// which Postgres implements with SELECT ... FOR UPDATE, not a
// package-level mutex.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/metrics"
	"github.com/aegis-run/governor/internal/routing"
	"github.com/aegis-run/governor/internal/store"
)

// ErrBlockedDeduction is the programming-error spec.md §4.7 step 3 names:
// Deduct must never be called for an already-blocked budget because
// Check should have rejected the call first.
var ErrBlockedDeduction = errors.New("budget: deduct called on a blocked budget")

const maxLockRetries = 3

// TierResolver re-reads a user's current tier from identity, used on
// period roll since users may have upgraded or downgraded mid-period.
type TierResolver interface {
	TierFor(ctx context.Context, uid string) (store.Tier, error)
}

// Manager is the budget state engine. Stateless beyond its dependencies;
// safe to share across concurrent requests.
type Manager struct {
	store   store.BudgetStore
	tiers   map[store.Tier]TierConfig
	tierRes TierResolver
	clock   func() time.Time
	logger  *zap.Logger
}

// Options configures a Manager. Clock defaults to time.Now and only needs
// overriding in tests.
type Options struct {
	Store        store.BudgetStore
	TierConfigs  map[store.Tier]TierConfig
	TierResolver TierResolver
	Clock        func() time.Time
	Logger       *zap.Logger
}

func NewManager(opts Options) *Manager {
	if opts.TierConfigs == nil {
		opts.TierConfigs = DefaultTierConfigs()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		store:   opts.Store,
		tiers:   opts.TierConfigs,
		tierRes: opts.TierResolver,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
}

// CheckResult is Check's outcome.
type CheckResult struct {
	Allowed   bool
	Status    store.BudgetStatus
	Routing   routing.Preference
	Remaining float64
}

func currentPeriod(now time.Time) string {
	return now.UTC().Format("2006-01")
}

func resetAtFor(period string) time.Time {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Check is the pre-flight gate. On any internal error it fails safe to
// blocked, per spec.md §4.7.
func (m *Manager) Check(ctx context.Context, uid string) CheckResult {
	budget, err := m.loadRolled(ctx, uid)
	if err != nil {
		m.logger.Error("budget check failed, failing safe to blocked", zap.String("uid", uid), zap.Error(err))
		metrics.BudgetCheckResults.WithLabelValues("false", "blocked").Inc()
		return CheckResult{Allowed: false, Status: store.StatusBlocked, Routing: routing.PreferenceCost, Remaining: 0}
	}

	cfg := m.tiers[budget.Tier]
	var result CheckResult
	switch {
	case !cfg.AllowAI || budget.Status == store.StatusBlocked:
		result = CheckResult{Allowed: false, Status: store.StatusBlocked, Routing: routing.PreferenceCost, Remaining: 0}
	case budget.Status == store.StatusDegraded:
		remaining := budget.MaxDegradedUsd - budget.DegradedSpendUsd
		result = CheckResult{Allowed: remaining > 0, Status: store.StatusDegraded, Routing: routing.PreferenceCost, Remaining: remaining}
	default: // premium
		remaining := budget.BudgetUsd - budget.SpentUsd
		pref := routing.PreferenceQuality
		if remaining <= 0.2*budget.BudgetUsd {
			pref = routing.PreferenceCost
		}
		result = CheckResult{Allowed: true, Status: store.StatusPremium, Routing: pref, Remaining: remaining}
	}

	metrics.BudgetCheckResults.WithLabelValues(fmt.Sprint(result.Allowed), string(result.Status)).Inc()
	return result
}

// Deduct is the post-flight transaction. It retries up to maxLockRetries
// times on a store conflict, per spec.md §7's "retried transparently up
// to 3 times inside the txn helper" policy.
func (m *Manager) Deduct(ctx context.Context, uid string, costUsd float64, requestType, model string) (store.UserAIBudget, error) {
	if _, err := m.loadRolled(ctx, uid); err != nil {
		return store.UserAIBudget{}, fmt.Errorf("budget: deduct preload: %w", err)
	}

	period := currentPeriod(m.clock())
	var result store.UserAIBudget
	var err error
	for attempt := 0; attempt < maxLockRetries; attempt++ {
		result, err = m.store.WithLock(ctx, uid, period, func(current store.UserAIBudget) (store.UserAIBudget, error) {
			return m.applyDeduction(current, costUsd)
		})
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		return store.UserAIBudget{}, err
	}
	return result, nil
}

func (m *Manager) applyDeduction(b store.UserAIBudget, costUsd float64) (store.UserAIBudget, error) {
	now := m.clock()
	switch b.Status {
	case store.StatusPremium:
		newSpent := b.SpentUsd + costUsd
		if newSpent <= b.BudgetUsd {
			b.SpentUsd = newSpent
			b.CallCount++
		} else {
			b.SpentUsd = b.BudgetUsd
			b.DegradedSpendUsd = newSpent - b.BudgetUsd
			b.Status = store.StatusDegraded
			b.DegradedAt = &now
			b.CallCount++
			b.CallCountDegraded = 1
			metrics.BudgetTransitions.WithLabelValues("degraded").Inc()
		}
	case store.StatusDegraded:
		newDeg := b.DegradedSpendUsd + costUsd
		if newDeg <= b.MaxDegradedUsd {
			b.DegradedSpendUsd = newDeg
			b.CallCount++
			b.CallCountDegraded++
		} else {
			b.DegradedSpendUsd = b.MaxDegradedUsd
			b.Status = store.StatusBlocked
			b.BlockedAt = &now
			b.CallCount++
			b.CallCountDegraded++
			metrics.BudgetTransitions.WithLabelValues("blocked").Inc()
		}
	case store.StatusBlocked:
		return store.UserAIBudget{}, ErrBlockedDeduction
	}
	b.LastCallAt = &now
	return b, nil
}

// UpgradeTier raises (or lowers) a user's tier mid-period. It never
// refunds spentUsd/degradedSpendUsd, but a tier that allows AI always
// returns the budget to premium — the only backward transition spec.md
// §4.7 permits within a period.
func (m *Manager) UpgradeTier(ctx context.Context, uid string, newTier store.Tier) (store.UserAIBudget, error) {
	if _, err := m.loadRolled(ctx, uid); err != nil {
		return store.UserAIBudget{}, fmt.Errorf("budget: upgrade preload: %w", err)
	}
	period := currentPeriod(m.clock())
	cfg, ok := m.tiers[newTier]
	if !ok {
		return store.UserAIBudget{}, fmt.Errorf("budget: unknown tier %q", newTier)
	}

	var result store.UserAIBudget
	var err error
	for attempt := 0; attempt < maxLockRetries; attempt++ {
		result, err = m.store.WithLock(ctx, uid, period, func(current store.UserAIBudget) (store.UserAIBudget, error) {
			current.Tier = newTier
			current.BudgetUsd = cfg.BudgetUsd
			current.MaxDegradedUsd = cfg.MaxDegradedUsd
			if cfg.AllowAI {
				current.Status = store.StatusPremium
				current.BlockedAt = nil
			} else {
				current.Status = store.StatusBlocked
			}
			return current, nil
		})
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	return result, err
}

// EnsureCurrentPeriod rolls uid's budget onto the current period if it
// isn't already there. Exposed for C11's monthly reset job, which proactively
// walks every budget at month start rather than waiting for each user's
// next request to trigger the lazy roll.
func (m *Manager) EnsureCurrentPeriod(ctx context.Context, uid string) (store.UserAIBudget, error) {
	return m.loadRolled(ctx, uid)
}

// loadRolled loads (or creates) the budget for uid's current period,
// performing the lazy period roll spec.md §4.7 describes when the stored
// period has gone stale.
func (m *Manager) loadRolled(ctx context.Context, uid string) (store.UserAIBudget, error) {
	now := m.clock()
	period := currentPeriod(now)

	tier, err := m.tierFor(ctx, uid)
	if err != nil {
		return store.UserAIBudget{}, err
	}
	cfg := m.tiers[tier]

	fresh := store.UserAIBudget{
		Tier:      tier,
		BudgetUsd: cfg.BudgetUsd, MaxDegradedUsd: cfg.MaxDegradedUsd,
		Status:  statusFor(cfg),
		ResetAt: resetAtFor(period),
	}

	existing, err := m.store.GetOrCreate(ctx, uid, period, fresh)
	if err != nil {
		return store.UserAIBudget{}, err
	}
	if existing.Period == period {
		return existing, nil
	}

	// Stale period: roll forward with a fresh document (should not
	// normally happen since GetOrCreate keys on the current period
	// already; defensive for store implementations that don't).
	rolled, err := m.store.WithLock(ctx, uid, existing.Period, func(_ store.UserAIBudget) (store.UserAIBudget, error) {
		return fresh, nil
	})
	if err != nil {
		return store.UserAIBudget{}, err
	}
	return rolled, nil
}

func statusFor(cfg TierConfig) store.BudgetStatus {
	if cfg.AllowAI {
		return store.StatusPremium
	}
	return store.StatusBlocked
}

func (m *Manager) tierFor(ctx context.Context, uid string) (store.Tier, error) {
	if m.tierRes == nil {
		return store.TierFree, nil
	}
	return m.tierRes.TierFor(ctx, uid)
}
