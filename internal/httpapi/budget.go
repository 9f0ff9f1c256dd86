package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aegis-run/governor/internal/auth"
	"github.com/aegis-run/governor/internal/store"
)

// budgetStatusResponse is spec.md §6's GET /api/v1/budget shape.
type budgetStatusResponse struct {
	Status                 string  `json:"status"`
	SpentUsd               float64 `json:"spentUsd"`
	BudgetUsd              float64 `json:"budgetUsd"`
	PercentUsed            float64 `json:"percentUsed"`
	ResetAt                string  `json:"resetAt"`
	DaysUntilReset         int     `json:"daysUntilReset"`
	CallCount              int64   `json:"callCount"`
	Tier                   string  `json:"tier"`
	Message                string  `json:"message,omitempty"`
	UpgradeAvailable       bool    `json:"upgradeAvailable"`
	UpgradeTier            string  `json:"upgradeTier,omitempty"`
	UpgradePrice           float64 `json:"upgradePrice,omitempty"`
	RoutingPreference      string  `json:"routingPreference"`
	ProjectedMonthlySpend  float64 `json:"projectedMonthlySpend"`
}

func (d *Dependencies) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}

	b, err := d.Budgets.EnsureCurrentPeriod(r.Context(), uid)
	if err != nil {
		writeError(w, "budget_check_failed", err.Error())
		return
	}
	check := d.Budgets.Check(r.Context(), uid)

	resp := budgetStatusResponse{
		Status: string(b.Status), SpentUsd: round2(b.SpentUsd), BudgetUsd: b.BudgetUsd,
		ResetAt: b.ResetAt.UTC().Format(time.RFC3339), CallCount: b.CallCount, Tier: string(b.Tier),
		RoutingPreference: string(check.Routing),
	}
	if b.BudgetUsd > 0 {
		resp.PercentUsed = round2(100 * b.SpentUsd / b.BudgetUsd)
	}
	resp.DaysUntilReset = daysUntil(b.ResetAt)
	resp.ProjectedMonthlySpend = projectMonthlySpend(b)

	switch b.Status {
	case store.StatusDegraded:
		resp.Message = "Your account has moved to degraded routing for the rest of this period."
	case store.StatusBlocked:
		resp.Message = "AI requests are paused until your next billing period or an upgrade."
	}

	if next, ok := d.Budgets.NextTier(b.Tier); ok {
		resp.UpgradeAvailable = true
		resp.UpgradeTier = string(next)
		if d.Plans != nil {
			if plan, err := d.Plans.PlanFor(r.Context(), auth.Tier(next)); err == nil {
				resp.UpgradePrice = plan.PriceMonthly
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// budgetHistoryEntry is one item of spec.md §6's GET /api/v1/budget/history.
type budgetHistoryEntry struct {
	Period           string  `json:"period"`
	BudgetUsd        float64 `json:"budgetUsd"`
	SpentUsd         float64 `json:"spentUsd"`
	DegradedSpendUsd float64 `json:"degradedSpendUsd"`
	TotalSpend       float64 `json:"totalSpend"`
	CallCount        int64   `json:"callCount"`
	Status           string  `json:"status"`
	Tier             string  `json:"tier"`
}

func (d *Dependencies) handleBudgetHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}

	months := 6
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 12 {
			writeError(w, "invalid_request", "months must be an integer between 1 and 12")
			return
		}
		months = n
	}

	history, err := d.Store.HistoryForUser(r.Context(), uid, months)
	if err != nil {
		writeError(w, "budget_check_failed", err.Error())
		return
	}

	out := make([]budgetHistoryEntry, 0, len(history))
	for _, b := range history {
		out = append(out, budgetHistoryEntry{
			Period: b.Period, BudgetUsd: b.BudgetUsd, SpentUsd: round2(b.SpentUsd),
			DegradedSpendUsd: round2(b.DegradedSpendUsd), TotalSpend: round2(b.SpentUsd + b.DegradedSpendUsd),
			CallCount: b.CallCount + b.CallCountDegraded, Status: string(b.Status), Tier: string(b.Tier),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": out})
}

// budgetUsageResponse is spec.md §6's GET /api/v1/budget/usage breakdown.
type budgetUsageResponse struct {
	Period      string             `json:"period"`
	TotalCostUsd float64           `json:"totalCostUsd"`
	CallCount   int64              `json:"callCount"`
	ByRequestType map[string]float64 `json:"byRequestType"`
	ByModel     map[string]float64 `json:"byModel"`
	ByDay       map[string]float64 `json:"byDay"`
}

func (d *Dependencies) handleBudgetUsage(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = time.Now().UTC().Format("2006-01")
	} else if _, err := time.Parse("2006-01", period); err != nil {
		writeError(w, "invalid_request", "period must be formatted YYYY-MM")
		return
	}

	periodStart, _ := time.Parse("2006-01", period)
	since := periodStart
	// A large, explicit cap rather than 0: ListForUser's Postgres
	// implementation treats limit as a literal SQL LIMIT, where 0 returns no
	// rows instead of "unlimited".
	const maxCallsPerUsageQuery = 100000
	calls, err := d.Store.ListForUser(r.Context(), uid, since, maxCallsPerUsageQuery)
	if err != nil {
		writeError(w, "budget_check_failed", err.Error())
		return
	}

	resp := budgetUsageResponse{
		Period: period, ByRequestType: map[string]float64{}, ByModel: map[string]float64{}, ByDay: map[string]float64{},
	}
	for _, c := range calls {
		if c.Timestamp.Format("2006-01") != period {
			continue
		}
		resp.CallCount++
		resp.TotalCostUsd += c.Cost
		resp.ByRequestType[c.RequestType] += c.Cost
		resp.ByModel[c.Model] += c.Cost
		resp.ByDay[c.Timestamp.Format("2006-01-02")] += c.Cost
	}
	resp.TotalCostUsd = round2(resp.TotalCostUsd)
	writeJSON(w, http.StatusOK, resp)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func daysUntil(t time.Time) int {
	d := time.Until(t)
	if d < 0 {
		return 0
	}
	days := int(d.Hours() / 24)
	if d.Hours()-float64(days*24) > 0 {
		days++
	}
	return days
}

// projectMonthlySpend linearly extrapolates spend-so-far across the
// remaining days in the period — a simple, explainable estimate rather
// than a statistical model, consistent with spec.md's other pure,
// deterministic derivations.
func projectMonthlySpend(b store.UserAIBudget) float64 {
	periodStart, err := time.Parse("2006-01", b.Period)
	if err != nil {
		return 0
	}
	now := time.Now().UTC()
	elapsedDays := now.Sub(periodStart).Hours() / 24
	if elapsedDays < 1 {
		elapsedDays = 1
	}
	totalSpend := b.SpentUsd + b.DegradedSpendUsd
	daysInPeriod := b.ResetAt.Sub(periodStart).Hours() / 24
	if daysInPeriod <= 0 {
		daysInPeriod = 30
	}
	return round2(totalSpend / elapsedDays * daysInPeriod)
}
