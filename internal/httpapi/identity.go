package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aegis-run/governor/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Plan     string `json:"plan,omitempty"`
}

// handleRegister creates the local identity record this module owns
// (auth.User): uid is derived from the email for the in-repo identity
// store since there is no separate provider signup step here.
// spec.md §1 treats the full identity/auth *provider* as an external
// collaborator; this handler only satisfies the contract this service
// itself needs to auto-provision and serve /auth/me.
func (d *Dependencies) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, "invalid_request", "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "internal_error", "failed to hash password")
		return
	}

	tier := auth.TierFree
	if req.Plan != "" {
		tier = auth.Tier(req.Plan)
	}
	user := auth.User{
		UID: req.Email, Email: req.Email, Tier: tier,
		Timezone: "UTC", Locale: "en-US", CreatedAt: time.Now().UTC(), BillingStatus: auth.BillingFree,
		PasswordHash: hash,
	}
	if err := d.Users.Create(r.Context(), user); err != nil {
		writeError(w, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (d *Dependencies) handleGetMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	user, err := d.Users.Get(r.Context(), uid)
	if err != nil {
		writeError(w, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// putMeRequest allow-lists exactly the fields spec.md §6 names for PUT /auth/me.
type putMeRequest struct {
	DisplayName         *string `json:"displayName,omitempty"`
	Timezone            *string `json:"timezone,omitempty"`
	Locale              *string `json:"locale,omitempty"`
	OnboardingCompleted *bool   `json:"onboardingCompleted,omitempty"`
}

func (d *Dependencies) handlePutMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	var req putMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid_request", "malformed JSON body")
		return
	}
	user, err := d.Users.Get(r.Context(), uid)
	if err != nil {
		writeError(w, "invalid_request", err.Error())
		return
	}
	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Timezone != nil {
		user.Timezone = *req.Timezone
	}
	if req.Locale != nil {
		user.Locale = *req.Locale
	}
	if req.OnboardingCompleted != nil {
		user.OnboardingCompleted = *req.OnboardingCompleted
	}
	if err := d.Users.Update(r.Context(), user); err != nil {
		writeError(w, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteMe satisfies spec.md §6's cascading-delete contract for the
// data this service itself owns (the user record is deleted here; the
// user's budget documents and call records in the store are not;
// shares/invitations live in stubCollaborators since sharing is an
// external-collaborator concern).
func (d *Dependencies) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	if err := d.Users.Delete(r.Context(), uid); err != nil {
		writeError(w, "invalid_request", err.Error())
		return
	}
	d.Gate.Invalidate(uid)
	d.stubs.deleteAllFor(uid)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	ent, ok := auth.EntitlementsFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

type planRequest struct {
	PlanID string `json:"planId"`
}

// handlePlanChange is spec.md §6's POST /auth/plan: a transactional plan
// change (persist the new tier, roll the budget onto it, invalidate the
// cached entitlements so the next request re-derives them).
func (d *Dependencies) handlePlanChange(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		writeError(w, "invalid_request", "planId is required")
		return
	}
	newTier := auth.Tier(req.PlanID)
	if d.Plans != nil {
		if _, err := d.Plans.PlanFor(r.Context(), newTier); err != nil {
			writeError(w, "invalid_request", "unknown plan")
			return
		}
	}

	if _, err := d.Budgets.UpgradeTier(r.Context(), uid, storeTier(newTier)); err != nil {
		writeError(w, "invalid_request", err.Error())
		return
	}
	if err := d.Users.SetTier(r.Context(), uid, newTier, auth.BillingActive); err != nil {
		writeError(w, "budget_check_failed", err.Error())
		return
	}
	d.Gate.Invalidate(uid)
	writeJSON(w, http.StatusOK, map[string]string{"status": "plan_changed", "planId": req.PlanID})
}
