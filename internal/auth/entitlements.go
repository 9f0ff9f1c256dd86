package auth

// AllApps is the full AppID universe spec.md §3's Entitlements invariant
// regenerates against. Kept as a package-level slice (immutable, never
// mutated after init) rather than a config value: the app set is part of
// the glossary, not an injected document.
var AllApps = []AppID{AppFitness, AppNutrition, AppBudget, AppMeetings}

// DeriveEntitlements is spec.md §3's `deriveEntitlements(plan)`: a pure,
// deterministic function of plan alone, per spec.md §8's testable
// round-trip property. Every app in AllApps gets an entry; apps outside
// plan.Apps get hasAccess=true at the free tier (spec.md: "hasAccess=true
// even on free") rather than being omitted.
func DeriveEntitlements(plan Plan) Entitlements {
	apps := make(map[AppID]AppEntitlement, len(AllApps))
	for _, app := range AllApps {
		included := plan.Apps[app]
		apps[app] = AppEntitlement{
			HasAccess:       true,
			Tier:            appTierFor(included),
			AIQueriesPerDay: aiQuotaFor(plan, included),
			StorageGb:       storageGbFor(plan, included),
			Features:        plan.Features,
		}
	}
	return Entitlements{
		Apps:           apps,
		GlobalFeatures: plan.Features,
	}
}

func appTierFor(included bool) string {
	if included {
		return "pro"
	}
	return "free"
}

func aiQuotaFor(plan Plan, included bool) Quota {
	if !included {
		return Limit(0)
	}
	if fv, ok := plan.Features["aiQueriesPerDay"]; ok {
		if fv.IsBool {
			if fv.Bool {
				return Unlimited()
			}
			return Limit(0)
		}
		if fv.Number < 0 {
			return Unlimited()
		}
		return Limit(int(fv.Number))
	}
	return Unlimited()
}

func storageGbFor(plan Plan, included bool) float64 {
	if !included {
		return 0
	}
	if fv, ok := plan.Features["storageGb"]; ok && !fv.IsBool {
		return fv.Number
	}
	return 0
}

// FreePlan is the plan auto-provisioned users and free-tier accounts
// derive entitlements from. Free-tier AI quota is 0 regardless of any
// aiQueriesPerDay feature: spec.md §4.7's tier config sets free's budget
// and allowAI to false, and §3's Entitlements invariant must agree.
var FreePlan = Plan{
	ID:           "free",
	Tier:         TierFree,
	PriceMonthly: 0,
	PriceYearly:  0,
	Apps:         map[AppID]bool{},
	Features:     map[string]FeatureValue{"aiQueriesPerDay": NumberFeature(0)},
}
