package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/auth"
	"github.com/aegis-run/governor/internal/store"
)

// adminFeature is the GlobalFeatures key a plan must set truthy for its
// holder to reach /admin/budget/*, per spec.md §6's "role=admin|enterprise".
const adminFeature = "admin"

func isAdmin(ent auth.Entitlements) bool {
	fv, ok := ent.GlobalFeatures[adminFeature]
	return ok && fv.IsBool && fv.Bool
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	ent, ok := auth.EntitlementsFromContext(r.Context())
	if !ok || !isAdmin(ent) {
		writeError(w, "insufficient_privileges", "admin or enterprise role required")
		return false
	}
	return true
}

type alertEntry struct {
	UID       string  `json:"uid"`
	Tier      string  `json:"tier"`
	SpentUsd  float64 `json:"spentUsd"`
	BudgetUsd float64 `json:"budgetUsd"`
	Status    string  `json:"status"`
}

func (d *Dependencies) handleAdminBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	period := time.Now().UTC().Format("2006-01")
	candidates, err := d.Store.ApproachingLimit(r.Context(), period, 0.8)
	if err != nil {
		writeError(w, "budget_check_failed", err.Error())
		return
	}
	out := make([]alertEntry, 0, len(candidates))
	for _, b := range candidates {
		out = append(out, alertEntry{UID: b.UID, Tier: string(b.Tier), SpentUsd: round2(b.SpentUsd), BudgetUsd: b.BudgetUsd, Status: string(b.Status)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": out})
}

type overviewResponse struct {
	Period        string  `json:"period"`
	TotalUsers    int     `json:"totalUsers"`
	PremiumCount  int     `json:"premiumCount"`
	DegradedCount int     `json:"degradedCount"`
	BlockedCount  int     `json:"blockedCount"`
	TotalSpendUsd float64 `json:"totalSpendUsd"`
}

func (d *Dependencies) handleAdminBudgetOverview(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	period := time.Now().UTC().Format("2006-01")
	const maxUsersPerOverview = 100000
	budgets, err := d.Store.ListForPeriod(r.Context(), period, maxUsersPerOverview, 0)
	if err != nil {
		writeError(w, "budget_check_failed", err.Error())
		return
	}
	resp := overviewResponse{Period: period}
	for _, b := range budgets {
		resp.TotalUsers++
		resp.TotalSpendUsd += b.SpentUsd + b.DegradedSpendUsd
		switch b.Status {
		case store.StatusPremium:
			resp.PremiumCount++
		case store.StatusDegraded:
			resp.DegradedCount++
		case store.StatusBlocked:
			resp.BlockedCount++
		}
	}
	resp.TotalSpendUsd = round2(resp.TotalSpendUsd)
	writeJSON(w, http.StatusOK, resp)
}

// adjustAction is spec.md §6's `action` enum for POST /admin/budget/:uid/adjust.
type adjustAction string

const (
	actionAddBudget  adjustAction = "add_budget"
	actionResetSpend adjustAction = "reset_spend"
	actionUpgradeTier adjustAction = "upgrade_tier"
	actionUnblock    adjustAction = "unblock"
)

type adjustRequest struct {
	Action    adjustAction `json:"action"`
	AmountUsd float64      `json:"amountUsd,omitempty"`
	Tier      string       `json:"tier,omitempty"`
}

func (d *Dependencies) handleAdminBudgetAdjust(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	uid := mux.Vars(r)["uid"]
	if uid == "" {
		writeError(w, "invalid_request", "missing uid path parameter")
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid_request", "malformed JSON body")
		return
	}

	period := time.Now().UTC().Format("2006-01")
	switch req.Action {
	case actionAddBudget:
		if req.AmountUsd <= 0 {
			writeError(w, "invalid_request", "amountUsd must be positive")
			return
		}
		if _, err := d.Store.WithLock(r.Context(), uid, period, func(current store.UserAIBudget) (store.UserAIBudget, error) {
			current.BudgetUsd += req.AmountUsd
			if current.Status != store.StatusBlocked || current.SpentUsd < current.BudgetUsd {
				current.Status = store.StatusPremium
			}
			return current, nil
		}); err != nil {
			writeError(w, "budget_check_failed", err.Error())
			return
		}
	case actionResetSpend:
		if _, err := d.Store.WithLock(r.Context(), uid, period, func(current store.UserAIBudget) (store.UserAIBudget, error) {
			current.SpentUsd, current.DegradedSpendUsd = 0, 0
			current.Status = store.StatusPremium
			current.DegradedAt, current.BlockedAt = nil, nil
			return current, nil
		}); err != nil {
			writeError(w, "budget_check_failed", err.Error())
			return
		}
	case actionUpgradeTier:
		if req.Tier == "" {
			writeError(w, "invalid_request", "tier is required for upgrade_tier")
			return
		}
		if _, err := d.Budgets.UpgradeTier(r.Context(), uid, store.Tier(req.Tier)); err != nil {
			writeError(w, "invalid_request", err.Error())
			return
		}
		if err := d.Users.SetTier(r.Context(), uid, auth.Tier(req.Tier), auth.BillingActive); err != nil {
			d.logger().Warn("admin adjust: failed to persist tier on user record", zap.Error(err))
		}
		d.Gate.Invalidate(uid)
	case actionUnblock:
		if _, err := d.Store.WithLock(r.Context(), uid, period, func(current store.UserAIBudget) (store.UserAIBudget, error) {
			current.Status = store.StatusDegraded
			if current.DegradedSpendUsd >= current.MaxDegradedUsd {
				current.DegradedSpendUsd = current.MaxDegradedUsd - 0.01
			}
			return current, nil
		}); err != nil {
			writeError(w, "budget_check_failed", err.Error())
			return
		}
	default:
		writeError(w, "invalid_request", "unknown action")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}
