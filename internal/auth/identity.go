package auth

import (
	"context"
	"errors"

	"github.com/aegis-run/governor/internal/store"
)

// ErrUserNotFound is returned by UserStore.Get when no user record exists
// for uid yet — the Gate treats this as "auto-provision", not an error.
var ErrUserNotFound = errors.New("auth: user not found")

// TokenVerifier delegates bearer-token verification to the identity
// provider. spec.md §1 treats the identity store as an opaque external
// collaborator; this interface is the narrow surface the Gate needs from
// it ("verify token -> uid, emailVerified").
type TokenVerifier interface {
	VerifyToken(ctx context.Context, bearerToken string) (uid string, emailVerified bool, err error)
}

// ErrInvalidToken is returned by a TokenVerifier when the token is
// malformed, expired, or fails signature verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// UserStore persists User records. Get returning ErrUserNotFound signals
// the Gate to auto-provision per spec.md §4.10 step 2.
type UserStore interface {
	Get(ctx context.Context, uid string) (User, error)
	Create(ctx context.Context, user User) error
	// TouchLastLogin is a best-effort write; spec.md §9 open question
	// preserves the source's choice to swallow its error.
	TouchLastLogin(ctx context.Context, uid string) error
}

// PlanResolver resolves a user's current Plan, used to derive
// Entitlements. Auto-provisioned and free-tier users resolve to FreePlan.
type PlanResolver interface {
	PlanFor(ctx context.Context, tier Tier) (Plan, error)
}

// TierAdapter bridges auth.Gate's UserStore to internal/budget's
// TierResolver interface. Housed here (not in internal/budget) so the
// budget package never has to know how identity re-reads tier — only the
// narrow Check/Deduct-adjacent TierFor surface, per spec.md §9's
// instruction to break the router/budget dynamic-import-cycle pattern by
// extracting a small capability interface.
type TierAdapter struct {
	Users UserStore
}

// TierFor satisfies budget.TierResolver.
func (a TierAdapter) TierFor(ctx context.Context, uid string) (store.Tier, error) {
	u, err := a.Users.Get(ctx, uid)
	if errors.Is(err, ErrUserNotFound) {
		return store.TierFree, nil
	}
	if err != nil {
		return "", err
	}
	return store.Tier(u.Tier), nil
}
