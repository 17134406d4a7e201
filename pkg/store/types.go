package store

import (
	"errors"
	"time"

	"github.com/guildboard/guildboard/pkg/rbac"
)

// Profile is the platform's view of an authenticated user. It is created
// alongside the identity-service account and carries everything the
// access core needs: role, onboarding state, and display fields.
type Profile struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FullName           string    `json:"full_name,omitempty"`
	AvatarURL          string    `json:"avatar_url,omitempty"`
	Role               rbac.Role `json:"role"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Tenant is a community: a bounded namespace of jobs, members, and
// branding owned by one user.
type Tenant struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	OwnerID     string            `json:"owner_id"`
	Branding    map[string]string `json:"branding,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Membership is a non-owner relationship between a user and a tenant
type Membership struct {
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id"`
	Role     rbac.Role `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

var (
	// ErrProfileNotFound indicates no profile row for the id/email
	ErrProfileNotFound = errors.New("store: profile not found")
	// ErrTenantNotFound indicates no tenant row for the id/slug/owner
	ErrTenantNotFound = errors.New("store: tenant not found")
	// ErrMembershipNotFound indicates the user has no membership row in
	// the tenant
	ErrMembershipNotFound = errors.New("store: membership not found")
)
