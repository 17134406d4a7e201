package store

import "context"

// ProfileStore is row access to user profiles in the remote datastore
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	CreateProfile(ctx context.Context, profile *Profile) error
	UpdateProfile(ctx context.Context, profile *Profile) error
}

// TenantStore is row access to tenants and memberships
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	// GetTenantByOwner returns the tenant a user owns; a user owns at
	// most one
	GetTenantByOwner(ctx context.Context, ownerID string) (*Tenant, error)
	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
}

// Store combines profile and tenant access, the shape most consumers take
type Store interface {
	ProfileStore
	TenantStore
}
