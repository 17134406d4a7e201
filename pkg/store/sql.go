package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guildboard/guildboard/pkg/rbac"
)

// SQLStore implements Store over database/sql. Production deployments use
// PostgreSQL via lib/pq; tests run the same queries against SQLite.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a SQL-backed store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the profile, tenant, and membership tables
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'member',
			onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL,
			branding TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tenant_members (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			joined_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, user_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// GetProfile retrieves a profile by id
func (s *SQLStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, avatar_url, role, onboarding_complete, created_at, updated_at
		FROM profiles WHERE id = $1
	`, id))
}

// GetProfileByEmail retrieves a profile by email
func (s *SQLStore) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, avatar_url, role, onboarding_complete, created_at, updated_at
		FROM profiles WHERE email = $1
	`, email))
}

// CreateProfile inserts a profile, assigning an id and timestamps if unset
func (s *SQLStore) CreateProfile(ctx context.Context, profile *Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.Role == "" {
		profile.Role = rbac.DefaultRole
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, avatar_url, role, onboarding_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, profile.ID, profile.Email, profile.FullName, profile.AvatarURL,
		string(profile.Role), profile.OnboardingComplete, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// UpdateProfile rewrites the mutable profile fields
func (s *SQLStore) UpdateProfile(ctx context.Context, profile *Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET email = $2, full_name = $3, avatar_url = $4, role = $5, onboarding_complete = $6, updated_at = $7
		WHERE id = $1
	`, profile.ID, profile.Email, profile.FullName, profile.AvatarURL,
		string(profile.Role), profile.OnboardingComplete, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// GetTenant retrieves a tenant by id
func (s *SQLStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, owner_id, branding, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id))
}

// GetTenantBySlug retrieves a tenant by its routing slug
func (s *SQLStore) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, owner_id, branding, created_at, updated_at
		FROM tenants WHERE slug = $1
	`, slug))
}

// GetTenantByOwner retrieves the tenant owned by a user
func (s *SQLStore) GetTenantByOwner(ctx context.Context, ownerID string) (*Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, owner_id, branding, created_at, updated_at
		FROM tenants WHERE owner_id = $1
	`, ownerID))
}

// GetMembership retrieves a user's membership row in a tenant
func (s *SQLStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	var m Membership
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, user_id, role, joined_at
		FROM tenant_members WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&m.TenantID, &m.UserID, &role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = rbac.ParseRole(role)
	return &m, nil
}

// CreateTenant inserts a tenant, assigning an id and timestamps if unset
func (s *SQLStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	branding, err := json.Marshal(tenant.Branding)
	if err != nil {
		return fmt.Errorf("failed to marshal branding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, slug, name, description, owner_id, branding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tenant.ID, tenant.Slug, tenant.Name, tenant.Description, tenant.OwnerID,
		string(branding), tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// AddMember inserts a membership row
func (s *SQLStore) AddMember(ctx context.Context, membership *Membership) error {
	if membership.Role == "" {
		membership.Role = rbac.DefaultRole
	}
	if membership.JoinedAt.IsZero() {
		membership.JoinedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_members (tenant_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`, membership.TenantID, membership.UserID, string(membership.Role), membership.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var role string
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &role,
		&p.OnboardingComplete, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Role = rbac.ParseRole(role)
	return &p, nil
}

func (s *SQLStore) scanTenant(row rowScanner) (*Tenant, error) {
	var t Tenant
	var branding string
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &t.OwnerID,
		&branding, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if branding != "" {
		if err := json.Unmarshal([]byte(branding), &t.Branding); err != nil {
			// Unreadable branding is cosmetic, not fatal
			t.Branding = nil
		}
	}
	return &t, nil
}
