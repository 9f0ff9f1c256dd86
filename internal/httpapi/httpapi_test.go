package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/governor/internal/auth"
	"github.com/aegis-run/governor/internal/budget"
	"github.com/aegis-run/governor/internal/costtracker"
	"github.com/aegis-run/governor/internal/crossapp"
	"github.com/aegis-run/governor/internal/pricing"
	"github.com/aegis-run/governor/internal/ratelimit"
	"github.com/aegis-run/governor/internal/store"
	"github.com/aegis-run/governor/internal/store/memstore"
)

type fixedTierResolver struct{ tier store.Tier }

func (f fixedTierResolver) TierFor(ctx context.Context, uid string) (store.Tier, error) {
	return f.tier, nil
}

type fixedPlanResolver struct{ plan auth.Plan }

func (f fixedPlanResolver) PlanFor(ctx context.Context, tier auth.Tier) (auth.Plan, error) {
	return f.plan, nil
}

// testHarness wires real components against memstore, mirroring the
// scheduler package's newTestScheduler helper.
type testHarness struct {
	deps     *Dependencies
	router   http.Handler
	verifier *auth.JWTVerifier
	users    *auth.MemUserStore
}

func newTestHarness(t *testing.T, plan auth.Plan) *testHarness {
	t.Helper()
	s := memstore.New()
	users := auth.NewMemUserStore()
	verifier := auth.NewJWTVerifier("test-secret-at-least-32-bytes-long!")
	plans := fixedPlanResolver{plan: plan}
	gate := auth.NewGate(auth.GateOptions{Verifier: verifier, Users: users, Plans: plans})
	quota := &memQuota{}
	mw := auth.NewMiddleware(gate, quota, nil)

	budgets := budget.NewManager(budget.Options{
		Store:        s,
		TierResolver: fixedTierResolver{tier: store.TierPro},
	})
	costs := costtracker.New(s, s, s, &pricing.Table{}, nil)
	caps, err := ratelimit.NewCapTable("")
	require.NoError(t, err)
	limiter := ratelimit.NewMapLimiter(caps, nil)
	signer := crossapp.NewSigner("test-cross-app-secret")

	deps := &Dependencies{
		Gate: gate, Middleware: mw, Users: users, Plans: plans,
		Budgets: budgets, Store: s, Costs: costs, Limiter: limiter, CrossApp: signer,
	}
	return &testHarness{deps: deps, router: NewRouter(deps), verifier: verifier, users: users}
}

type memQuota struct{ counts map[string]int }

func (m *memQuota) CountToday(ctx context.Context, uid string, app auth.AppID) (int, time.Time, error) {
	return 0, time.Now().Add(time.Hour), nil
}

func (m *memQuota) Increment(ctx context.Context, uid string, app auth.AppID) error { return nil }

func (h *testHarness) mint(t *testing.T, uid string) string {
	t.Helper()
	token, err := h.verifier.Mint(uid, true, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *testHarness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func plainPlan() auth.Plan {
	return auth.Plan{ID: "pro", Tier: auth.TierPro, Apps: map[auth.AppID]bool{auth.AppNutrition: true}}
}

func adminPlan() auth.Plan {
	return auth.Plan{
		ID: "enterprise", Tier: auth.TierEnterprise,
		Features: map[string]auth.FeatureValue{"admin": auth.BoolFeature(true)},
	}
}

func TestBudgetStatusRequiresAuth(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	rec := h.do(t, http.MethodGet, "/api/v1/budget", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBudgetStatusReturnsFreshPeriod(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	rec := h.do(t, http.MethodGet, "/api/v1/budget", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp budgetStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "premium", resp.Status)
	assert.Equal(t, "pro", resp.Tier)
	assert.True(t, resp.UpgradeAvailable)
	assert.Equal(t, "pro_plus", resp.UpgradeTier)
}

func TestBudgetHistoryValidatesMonths(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	rec := h.do(t, http.MethodGet, "/api/v1/budget/history?months=99", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/budget/history?months=3", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRejectNonAdmin(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	rec := h.do(t, http.MethodGet, "/admin/budget/overview", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAdjustAddBudget(t *testing.T) {
	h := newTestHarness(t, adminPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "admin1", Tier: auth.TierEnterprise}))
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "target1", Tier: auth.TierPro}))
	token := h.mint(t, "admin1")

	rec := h.do(t, http.MethodPost, "/admin/budget/target1/adjust", token, adjustRequest{
		Action: actionAddBudget, AmountUsd: 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	budgetRec := h.do(t, http.MethodGet, "/api/v1/budget", h.mint(t, "target1"), nil)
	var status budgetStatusResponse
	require.NoError(t, json.Unmarshal(budgetRec.Body.Bytes(), &status))
	assert.Greater(t, status.BudgetUsd, 3.0)
}

func TestEntitlementsReflectsPlan(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	rec := h.do(t, http.MethodGet, "/auth/entitlements", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ent auth.Entitlements
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ent))
	assert.True(t, ent.Apps[auth.AppNutrition].HasAccess)
}

func TestCrossAppTokenRoundTrips(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	rec := h.do(t, http.MethodPost, "/auth/cross-app-token", token, crossAppTokenRequest{TargetApp: "fitness"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	uid, app, err := h.deps.CrossApp.Verify(body["token"])
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
	assert.Equal(t, "fitness", app)
}

func TestInvokeDeniesWhenTierUnconfigured(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	rec := h.do(t, http.MethodPost, "/api/v1/ai/invoke", token, invokeRequest{RequestType: "chat", Prompt: "hi"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestInvokeRejectsMalformedBody(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/invoke", bytes.NewReader([]byte("{")))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMeRemovesUserRecord(t *testing.T) {
	h := newTestHarness(t, plainPlan())
	require.NoError(t, h.users.Create(context.Background(), auth.User{UID: "u1", Tier: auth.TierPro}))
	token := h.mint(t, "u1")

	rec := h.do(t, http.MethodDelete, "/auth/me", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := h.users.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
