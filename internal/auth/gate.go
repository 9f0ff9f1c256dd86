package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultEntitlementCacheTTL is spec.md §4.10's "~5 min" TTL.
const DefaultEntitlementCacheTTL = 5 * time.Minute

// VerifyResult is C10's Verify(bearerToken) outcome.
type VerifyResult struct {
	UID           string
	User          User
	Entitlements  Entitlements
	EmailVerified bool
}

// Gate implements C10: bearer verification, entitlement caching, and
// auto-provisioning of first-seen users.
type Gate struct {
	verifier TokenVerifier
	users    UserStore
	plans    PlanResolver
	cache    *entitlementCache
	clock    func() time.Time
	logger   *zap.Logger
}

type GateOptions struct {
	Verifier     TokenVerifier
	Users        UserStore
	Plans        PlanResolver
	CacheTTL     time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

func NewGate(opts GateOptions) *Gate {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultEntitlementCacheTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gate{
		verifier: opts.Verifier,
		users:    opts.Users,
		plans:    opts.Plans,
		cache:    newEntitlementCache(opts.CacheTTL, opts.Clock),
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// Verify implements spec.md §4.10's Verify(bearerToken):
//  1. delegate token verification to the identity provider
//  2. cache hit on uid returns cached entitlements; else load-or-provision
//  3. best-effort lastLoginAt bump, error swallowed (spec.md §9 open
//     question, preserved as-is)
func (g *Gate) Verify(ctx context.Context, bearerToken string) (VerifyResult, error) {
	uid, emailVerified, err := g.verifier.VerifyToken(ctx, bearerToken)
	if err != nil {
		return VerifyResult{}, err
	}

	if user, ent, ok := g.cache.get(uid); ok {
		g.touchLastLogin(ctx, uid)
		return VerifyResult{UID: uid, User: user, Entitlements: ent, EmailVerified: emailVerified}, nil
	}

	user, err := g.loadOrProvision(ctx, uid)
	if err != nil {
		return VerifyResult{}, err
	}
	plan, err := g.planFor(ctx, user.Tier)
	if err != nil {
		return VerifyResult{}, err
	}
	ent := DeriveEntitlements(plan)
	g.cache.put(uid, user, ent)

	g.touchLastLogin(ctx, uid)
	return VerifyResult{UID: uid, User: user, Entitlements: ent, EmailVerified: emailVerified}, nil
}

// Invalidate drops a user's cached entitlements, e.g. after a plan change
// (internal/httpapi's POST /auth/plan handler calls this so the next
// request re-derives entitlements instead of serving the stale plan for
// up to the TTL).
func (g *Gate) Invalidate(uid string) {
	g.cache.invalidate(uid)
}

func (g *Gate) loadOrProvision(ctx context.Context, uid string) (User, error) {
	user, err := g.users.Get(ctx, uid)
	if err == nil {
		return user, nil
	}
	if err != ErrUserNotFound {
		return User{}, err
	}

	now := g.clock()
	user = User{
		UID:                 uid,
		Tier:                TierFree,
		Timezone:            "UTC",
		Locale:              "en-US",
		OnboardingCompleted: false,
		CreatedAt:           now,
		BillingStatus:       BillingFree,
	}
	if err := g.users.Create(ctx, user); err != nil {
		return User{}, err
	}
	g.logger.Info("auto-provisioned user on first verified token", zap.String("uid", uid))
	return user, nil
}

func (g *Gate) planFor(ctx context.Context, tier Tier) (Plan, error) {
	if g.plans == nil || tier == TierFree {
		return FreePlan, nil
	}
	return g.plans.PlanFor(ctx, tier)
}

// touchLastLogin is best-effort: failures are logged, never surfaced,
// per spec.md §4.10 step 3 and §9's explicit preservation of that choice.
func (g *Gate) touchLastLogin(ctx context.Context, uid string) {
	if err := g.users.TouchLastLogin(ctx, uid); err != nil {
		g.logger.Warn("best-effort lastLoginAt update failed", zap.String("uid", uid), zap.Error(err))
	}
}
