package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ctxKey is an unexported context-key type so values set by this package
// never collide with keys set elsewhere.
type ctxKey string

const (
	ctxUID          ctxKey = "governor.uid"
	ctxEntitlements ctxKey = "governor.entitlements"
)

// UIDFromContext returns the uid RequireAuth attached to the request
// context, if any.
func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(ctxUID).(string)
	return uid, ok
}

// EntitlementsFromContext returns the Entitlements RequireAuth attached.
func EntitlementsFromContext(ctx context.Context) (Entitlements, bool) {
	ent, ok := ctx.Value(ctxEntitlements).(Entitlements)
	return ent, ok
}

// ErrorEnvelope is spec.md §6's error-response shape.
type ErrorEnvelope struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	ResetAt    string `json:"resetAt,omitempty"`
	UpgradeURL string `json:"upgradeUrl,omitempty"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Error: kind, Message: message})
}

// AIQuotaCounter is the narrow surface AIQuota middleware needs: today's
// per-(uid,app) call count, and an increment. cmd/governor wires the
// in-process MapAIQuotaCounter; tests use their own map.
type AIQuotaCounter interface {
	CountToday(ctx context.Context, uid string, app AppID) (int, time.Time, error)
	Increment(ctx context.Context, uid string, app AppID) error
}

// RequireAuthOptions parametrizes one RequireAuth middleware instance.
type RequireAuthOptions struct {
	RequireApp     AppID  // empty: no app-access check
	RequireFeature string // empty: no feature check
}

// Middleware wires a Gate into HTTP middleware per spec.md §4.10.
type Middleware struct {
	gate   *Gate
	quota  AIQuotaCounter
	logger *zap.Logger
}

func NewMiddleware(gate *Gate, quota AIQuotaCounter, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{gate: gate, quota: quota, logger: logger}
}

// RequireAuth implements spec.md §4.10's middleware contract: missing
// bearer -> 401; verification failure -> 401; missing app access -> 403
// with upgrade hint; missing feature -> 403. On success, uid and
// entitlements are attached to the request context.
func (m *Middleware) RequireAuth(opts RequireAuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			token, err := ExtractBearerToken(authHeader)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header")
				return
			}

			result, err := m.gate.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "token verification failed")
				return
			}

			if opts.RequireApp != "" {
				app, ok := result.Entitlements.Apps[opts.RequireApp]
				if !ok || !app.HasAccess {
					writeError(w, http.StatusForbidden, "upgrade_required", "app requires a higher plan")
					return
				}
			}
			if opts.RequireFeature != "" {
				if fv, ok := result.Entitlements.GlobalFeatures[opts.RequireFeature]; !ok || (fv.IsBool && !fv.Bool) {
					writeError(w, http.StatusForbidden, "feature_not_available", "feature not included in plan")
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxUID, result.UID)
			ctx = context.WithValue(ctx, ctxEntitlements, result.Entitlements)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AIQuota implements spec.md §4.10's AI quota middleware: assumes uid is
// already in context (RequireAuth must run first). Queries today's
// (uid,app) counter against the tier's aiQueriesPerDay limit; over limit
// -> 429 with reset timestamp, else sets X-AI-Remaining and increments
// fire-and-forget.
func (m *Middleware) AIQuota(app AppID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := UIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
				return
			}
			ent, _ := EntitlementsFromContext(r.Context())
			quota := ent.Apps[app].AIQueriesPerDay

			count, resetAt, err := m.quota.CountToday(r.Context(), uid, app)
			if err != nil {
				m.logger.Warn("ai quota count failed, admitting", zap.Error(err))
			} else if quota.Exceeded(count) {
				w.Header().Set("X-AI-Reset", resetAt.UTC().Format(time.RFC3339))
				writeError(w, http.StatusTooManyRequests, "ai_quota_exceeded", "daily AI quota exceeded")
				return
			}

			if quota.IsUnlimited() {
				w.Header().Set("X-AI-Remaining", "unlimited")
			} else {
				remaining := quota.N() - count
				if remaining < 0 {
					remaining = 0
				}
				w.Header().Set("X-AI-Remaining", strconv.Itoa(remaining))
			}

			go func() {
				if err := m.quota.Increment(context.Background(), uid, app); err != nil {
					m.logger.Warn("ai quota increment failed", zap.Error(err))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
