package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aegis-run/governor/internal/auth"
)

// NewRouter registers spec.md §6's full HTTP surface. Core governance
// routes (budget, entitlements, admin, cross-app token, the AI invoke
// path) are backed by real components; identity CRUD, sharing, billing,
// and export are thin handlers over stubs.go's in-memory collaborators,
// per SPEC_FULL.md §6's resolution of spec.md §1's scope exclusion.
func NewRouter(deps *Dependencies) *mux.Router {
	if deps.stubs == nil {
		deps.stubs = newStubCollaborators()
	}
	r := mux.NewRouter()
	requireAuth := deps.Middleware.RequireAuth(auth.RequireAuthOptions{})

	// Identity.
	r.HandleFunc("/auth/register", deps.handleRegister).Methods("POST")
	r.Handle("/auth/me", requireAuth(http.HandlerFunc(deps.handleGetMe))).Methods("GET")
	r.Handle("/auth/me", requireAuth(http.HandlerFunc(deps.handlePutMe))).Methods("PUT")
	r.Handle("/auth/me", requireAuth(http.HandlerFunc(deps.handleDeleteMe))).Methods("DELETE")
	r.Handle("/auth/entitlements", requireAuth(http.HandlerFunc(deps.handleEntitlements))).Methods("GET")
	r.Handle("/auth/plan", requireAuth(http.HandlerFunc(deps.handlePlanChange))).Methods("POST")
	r.Handle("/auth/checkout", requireAuth(http.HandlerFunc(deps.handleCheckout))).Methods("POST")
	r.Handle("/auth/portal", requireAuth(http.HandlerFunc(deps.handlePortal))).Methods("POST")

	// Sharing.
	r.Handle("/auth/share", requireAuth(http.HandlerFunc(deps.handleListShares))).Methods("GET")
	r.Handle("/auth/share", requireAuth(http.HandlerFunc(deps.handleCreateShare))).Methods("POST")
	r.Handle("/auth/invitations/{id}/accept", requireAuth(http.HandlerFunc(deps.handleAcceptInvitation))).Methods("POST")
	r.Handle("/auth/invitations/{id}/decline", requireAuth(http.HandlerFunc(deps.handleDeclineInvitation))).Methods("POST")
	r.Handle("/auth/shared/{id}", requireAuth(http.HandlerFunc(deps.handleDeleteShared))).Methods("DELETE")

	// GDPR.
	r.Handle("/auth/export", requireAuth(http.HandlerFunc(deps.handleExport))).Methods("POST")

	// Cross-app SSO.
	r.Handle("/auth/cross-app-token", requireAuth(http.HandlerFunc(deps.handleCrossAppToken))).Methods("POST")

	// Billing webhook (unauthenticated — HMAC-verified by the real collaborator).
	r.HandleFunc("/webhooks/stripe", deps.handleStripeWebhook).Methods("POST")

	// Budget.
	r.Handle("/api/v1/budget", requireAuth(http.HandlerFunc(deps.handleBudgetStatus))).Methods("GET")
	r.Handle("/api/v1/budget/history", requireAuth(http.HandlerFunc(deps.handleBudgetHistory))).Methods("GET")
	r.Handle("/api/v1/budget/usage", requireAuth(http.HandlerFunc(deps.handleBudgetUsage))).Methods("GET")

	// Governed AI call path (C8-C10's documented control flow, not
	// separately enumerated in spec.md §6's route list but required to
	// reach the router at all).
	r.Handle("/api/v1/ai/invoke", requireAuth(http.HandlerFunc(deps.handleInvoke))).Methods("POST")

	// Admin.
	r.Handle("/admin/budget/alerts", requireAuth(http.HandlerFunc(deps.handleAdminBudgetAlerts))).Methods("GET")
	r.Handle("/admin/budget/overview", requireAuth(http.HandlerFunc(deps.handleAdminBudgetOverview))).Methods("GET")
	r.Handle("/admin/budget/{uid}/adjust", requireAuth(http.HandlerFunc(deps.handleAdminBudgetAdjust))).Methods("POST")

	return r
}
