package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// MemUserStore is an in-memory UserStore for local development without a
// database (mirrors memstore.Store's mutex-guarded-map idiom).
type MemUserStore struct {
	mu    sync.Mutex
	users map[string]User
}

func NewMemUserStore() *MemUserStore {
	return &MemUserStore{users: map[string]User{}}
}

func (s *MemUserStore) Get(ctx context.Context, uid string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemUserStore) Create(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.UID]; !exists {
		s.users[user.UID] = user
	}
	return nil
}

func (s *MemUserStore) TouchLastLogin(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	s.users[uid] = u
	return nil
}

func (s *MemUserStore) Update(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.UID]; !ok {
		return ErrUserNotFound
	}
	s.users[user.UID] = user
	return nil
}

func (s *MemUserStore) SetTier(ctx context.Context, uid string, tier Tier, billing BillingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.Tier, u.BillingStatus = tier, billing
	s.users[uid] = u
	return nil
}

func (s *MemUserStore) Delete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, uid)
	return nil
}

// PostgresUserStore is the production UserStore, grounded on pgstore's
// sqlx+lib/pq wiring. Identity is spec.md §1's external collaborator in
// a full deployment, but this module still owns a minimal users table to
// serve the auto-provisioning and /auth/me surface without depending on
// an outside service at gate-verification time.
type PostgresUserStore struct {
	db *sqlx.DB
}

func NewPostgresUserStore(db *sqlx.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

type userRow struct {
	UID                 string     `db:"uid"`
	Email                string     `db:"email"`
	Tier                 string     `db:"tier"`
	DisplayName          string     `db:"display_name"`
	Timezone             string     `db:"timezone"`
	Locale               string     `db:"locale"`
	OnboardingCompleted  bool       `db:"onboarding_completed"`
	CreatedAt            time.Time  `db:"created_at"`
	LastLoginAt          *time.Time `db:"last_login_at"`
	BillingStatus        string     `db:"billing_status"`
	TrialEndsAt          *time.Time `db:"trial_ends_at"`
	PasswordHash         []byte     `db:"password_hash"`
}

func (r userRow) toDomain() User {
	return User{
		UID: r.UID, Email: r.Email, Tier: Tier(r.Tier), DisplayName: r.DisplayName,
		Timezone: r.Timezone, Locale: r.Locale, OnboardingCompleted: r.OnboardingCompleted,
		CreatedAt: r.CreatedAt, LastLoginAt: r.LastLoginAt,
		BillingStatus: BillingStatus(r.BillingStatus), TrialEndsAt: r.TrialEndsAt,
		PasswordHash: r.PasswordHash,
	}
}

const userColumns = `uid, email, tier, display_name, timezone, locale, onboarding_completed,
	created_at, last_login_at, billing_status, trial_ends_at, password_hash`

func (s *PostgresUserStore) Get(ctx context.Context, uid string) (User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, `SELECT `+userColumns+` FROM users WHERE uid=$1`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: get user: %w", err)
	}
	return r.toDomain(), nil
}

func (s *PostgresUserStore) Create(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, tier, display_name, timezone, locale, onboarding_completed,
			created_at, billing_status, password_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (uid) DO NOTHING`,
		user.UID, user.Email, string(user.Tier), user.DisplayName, user.Timezone, user.Locale,
		user.OnboardingCompleted, user.CreatedAt, string(user.BillingStatus), user.PasswordHash)
	if err != nil {
		return fmt.Errorf("auth: create user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) TouchLastLogin(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at=$1 WHERE uid=$2`, time.Now().UTC(), uid)
	if err != nil {
		return fmt.Errorf("auth: touch last login: %w", err)
	}
	return nil
}

// Update persists the mutable /auth/me fields (displayName, timezone,
// locale). Tier and billingStatus change through UpgradeTier/the Stripe
// webhook handler, not this path.
func (s *PostgresUserStore) Update(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$1, timezone=$2, locale=$3, onboarding_completed=$4
		WHERE uid=$5`,
		user.DisplayName, user.Timezone, user.Locale, user.OnboardingCompleted, user.UID)
	if err != nil {
		return fmt.Errorf("auth: update user: %w", err)
	}
	return nil
}

// SetTier persists a tier change (e.g. from the Stripe webhook stub or an
// admin override) and the caller is responsible for invalidating the
// Gate's entitlement cache afterward.
func (s *PostgresUserStore) SetTier(ctx context.Context, uid string, tier Tier, billing BillingStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET tier=$1, billing_status=$2 WHERE uid=$3`,
		string(tier), string(billing), uid)
	if err != nil {
		return fmt.Errorf("auth: set tier: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) Delete(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE uid=$1`, uid)
	if err != nil {
		return fmt.Errorf("auth: delete user: %w", err)
	}
	return nil
}
