package budget

import "github.com/aegis-run/governor/internal/store"

// TierConfig is one tier's budget envelope, injected at startup rather
// than hardcoded so it can be overridden per deployment.
type TierConfig struct {
	BudgetUsd      float64
	MaxDegradedUsd float64
	AllowAI        bool
}

// DefaultTierConfigs mirrors spec.md §4.7's example defaults.
func DefaultTierConfigs() map[store.Tier]TierConfig {
	return map[store.Tier]TierConfig{
		store.TierFree:       {BudgetUsd: 0, MaxDegradedUsd: 0, AllowAI: false},
		store.TierPro:        {BudgetUsd: 3.00, MaxDegradedUsd: 5.00, AllowAI: true},
		store.TierProPlus:    {BudgetUsd: 10.00, MaxDegradedUsd: 5.00, AllowAI: true},
		store.TierEnterprise: {BudgetUsd: 100.00, MaxDegradedUsd: 50.00, AllowAI: true},
	}
}

// tierOrder is the upgrade ladder the budget API's "upgradeAvailable" hint
// walks; enterprise has no further upgrade target.
var tierOrder = []store.Tier{store.TierFree, store.TierPro, store.TierProPlus, store.TierEnterprise}

// TierConfigFor exposes one tier's envelope, for the budget status API's
// upgradePrice/upgradeTier hint.
func (m *Manager) TierConfigFor(tier store.Tier) (TierConfig, bool) {
	cfg, ok := m.tiers[tier]
	return cfg, ok
}

// NextTier returns the tier immediately above the given one on the upgrade
// ladder, if any.
func (m *Manager) NextTier(tier store.Tier) (store.Tier, bool) {
	for i, t := range tierOrder {
		if t == tier && i+1 < len(tierOrder) {
			return tierOrder[i+1], true
		}
	}
	return "", false
}
