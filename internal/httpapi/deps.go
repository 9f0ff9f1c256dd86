package httpapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/auth"
	"github.com/aegis-run/governor/internal/budget"
	"github.com/aegis-run/governor/internal/costtracker"
	"github.com/aegis-run/governor/internal/crossapp"
	"github.com/aegis-run/governor/internal/ratelimit"
	"github.com/aegis-run/governor/internal/router"
	"github.com/aegis-run/governor/internal/store"
)

// userEditor is the narrow surface /auth/me, /auth/register, and /auth/plan
// need beyond auth.UserStore's Get/Create/TouchLastLogin — both
// auth.PostgresUserStore and auth.MemUserStore satisfy it.
type userEditor interface {
	auth.UserStore
	Update(ctx context.Context, user auth.User) error
	SetTier(ctx context.Context, uid string, tier auth.Tier, billing auth.BillingStatus) error
	Delete(ctx context.Context, uid string) error
}

// Dependencies bundles everything the HTTP surface needs. Every field is
// a concrete governance component (C1-C12); nothing here is the stub
// collaborators that back the identity/billing/sharing routes — those
// live in stubs.go's own dependency-free in-memory state.
type Dependencies struct {
	Gate       *auth.Gate
	Middleware *auth.Middleware
	Users      userEditor
	Plans      auth.PlanResolver
	Budgets    *budget.Manager
	Store      store.Store
	Costs      *costtracker.Tracker
	Limiter    *ratelimit.Limiter
	Router     *router.Router
	CrossApp   *crossapp.Signer
	Logger     *zap.Logger

	stubs *stubCollaborators
}

func (d *Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
