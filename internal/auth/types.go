// Package auth implements C10: bearer-token verification against an
// external identity provider, a short-TTL entitlement cache, auto-
// provisioning of first-seen users, and the RequireAuth/AIQuota HTTP
// middleware spec.md §4.10 describes.
//
// Grounded on the teacher's internal/auth/jwt.go (HMAC signing, bearer
// extraction, constant-time hash compare) and internal/auth/middleware.go
// (HTTP middleware shape; no dev skip-auth path is kept) — adapted from the
// teacher's tenant/API-key/scope model to spec.md §3's User/Entitlements
// model. The gRPC interceptor is dropped: spec.md §6's external interface
// is HTTP/JSON only.
package auth

import "time"

// AppID is one of spec.md's GLOSSARY app identifiers.
type AppID string

const (
	AppFitness  AppID = "fitness"
	AppNutrition AppID = "nutrition"
	AppBudget   AppID = "budget"
	AppMeetings AppID = "meetings"
)

// BillingStatus mirrors spec.md §3's User.billingStatus enum.
type BillingStatus string

const (
	BillingFree     BillingStatus = "free"
	BillingTrial    BillingStatus = "trial"
	BillingActive   BillingStatus = "active"
	BillingPastDue  BillingStatus = "past_due"
	BillingCancelled BillingStatus = "cancelled"
)

// User is spec.md §3's identity entity. The core only reads Tier (via
// TierResolver) and publishes BillingStatus transitions; everything else
// here exists for the identity CRUD endpoints spec.md §1 treats as an
// external collaborator but that this module still has to serve over
// HTTP (register/me/share/export all read and write this struct).
type User struct {
	UID                 string
	Email                string
	Tier                 Tier
	DisplayName          string
	Timezone             string
	Locale               string
	OnboardingCompleted  bool
	CreatedAt            time.Time
	LastLoginAt          *time.Time
	BillingStatus        BillingStatus
	TrialEndsAt          *time.Time
	PasswordHash         []byte
}

// Tier mirrors store.Tier; duplicated here (not a type alias) so internal/auth
// never imports internal/store — the Auth gate is a pure identity/entitlement
// concern, independent of C7's budget engine. A thin adapter
// (internal/auth.TierAdapter) bridges the two for the Router's TierResolver.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierProPlus    Tier = "pro_plus"
	TierEnterprise Tier = "enterprise"
)

// Quota encodes spec.md §9's "Infinity for unlimited quotas" redesign flag:
// a tagged value instead of a floating sentinel. Zero value is Limit(0).
type Quota struct {
	unlimited bool
	limit     int
}

// Unlimited constructs an unbounded quota.
func Unlimited() Quota { return Quota{unlimited: true} }

// Limit constructs a bounded quota of n.
func Limit(n int) Quota { return Quota{limit: n} }

// IsUnlimited reports whether the quota has no ceiling.
func (q Quota) IsUnlimited() bool { return q.unlimited }

// N returns the numeric limit; meaningless (and 0) when IsUnlimited is true.
func (q Quota) N() int { return q.limit }

// Exceeded reports whether used has reached or passed the quota.
func (q Quota) Exceeded(used int) bool {
	if q.unlimited {
		return false
	}
	return used >= q.limit
}

// Plan is spec.md §3's static commercial-offering entity, loaded at boot.
type Plan struct {
	ID           string
	Tier         Tier
	PriceMonthly float64
	PriceYearly  float64
	Apps         map[AppID]bool
	Features     map[string]FeatureValue
}

// FeatureValue is a bool-or-number feature flag, per spec.md §3's
// `features: map<string, bool|number>`.
type FeatureValue struct {
	Bool   bool
	Number float64
	IsBool bool // true: Bool is the value; false: Number is the value
}

func BoolFeature(b bool) FeatureValue    { return FeatureValue{Bool: b, IsBool: true} }
func NumberFeature(n float64) FeatureValue { return FeatureValue{Number: n} }

// AppEntitlement is one app's derived per-app capability set.
type AppEntitlement struct {
	HasAccess      bool
	Tier           string // "free" | "pro", the *app-level* tier (distinct from the account Tier)
	AIQueriesPerDay Quota
	StorageGb      float64
	Features       map[string]FeatureValue
}

// Entitlements is spec.md §3's derived, always-regenerable capability
// object. Invariant: a pure function of (Plan, the full AppID set) — never
// the system of record beyond what Plan encodes.
type Entitlements struct {
	Apps           map[AppID]AppEntitlement
	GlobalFeatures map[string]FeatureValue
}
