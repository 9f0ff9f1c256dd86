package auth

import (
	"context"
	"fmt"
)

// StaticPlanResolver resolves a Tier to its Plan from a fixed, in-process
// table — the production stand-in for the plan catalog spec.md §1 treats
// as owned by the billing collaborator. Loaded once at boot; plan changes
// go through a deploy, not a hot reload, since pricing is commercial
// policy rather than operational config.
type StaticPlanResolver struct {
	plans map[Tier]Plan
}

// DefaultPlans mirrors spec.md §4.7's tier budgets and the app/feature
// grants each paid tier unlocks over FreePlan.
func DefaultPlans() map[Tier]Plan {
	return map[Tier]Plan{
		TierFree: FreePlan,
		TierPro: {
			ID: "pro", Tier: TierPro, PriceMonthly: 9.99, PriceYearly: 99.00,
			Apps: map[AppID]bool{AppFitness: true, AppNutrition: true, AppBudget: true, AppMeetings: true},
			Features: map[string]FeatureValue{
				"aiQueriesPerDay": NumberFeature(50),
				"storageGb":       NumberFeature(5),
			},
		},
		TierProPlus: {
			ID: "pro_plus", Tier: TierProPlus, PriceMonthly: 24.99, PriceYearly: 249.00,
			Apps: map[AppID]bool{AppFitness: true, AppNutrition: true, AppBudget: true, AppMeetings: true},
			Features: map[string]FeatureValue{
				"aiQueriesPerDay": BoolFeature(true), // unlimited
				"storageGb":       NumberFeature(50),
			},
		},
		TierEnterprise: {
			ID: "enterprise", Tier: TierEnterprise, PriceMonthly: 199.00, PriceYearly: 1990.00,
			Apps: map[AppID]bool{AppFitness: true, AppNutrition: true, AppBudget: true, AppMeetings: true},
			Features: map[string]FeatureValue{
				"aiQueriesPerDay": BoolFeature(true),
				"storageGb":       NumberFeature(500),
				"admin":           BoolFeature(true),
			},
		},
	}
}

func NewStaticPlanResolver(plans map[Tier]Plan) *StaticPlanResolver {
	return &StaticPlanResolver{plans: plans}
}

func (r *StaticPlanResolver) PlanFor(ctx context.Context, tier Tier) (Plan, error) {
	plan, ok := r.plans[tier]
	if !ok {
		return Plan{}, fmt.Errorf("auth: unknown plan tier %q", tier)
	}
	return plan, nil
}
