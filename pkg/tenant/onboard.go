package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/rbac"
	"github.com/guildboard/guildboard/pkg/session"
	"github.com/guildboard/guildboard/pkg/store"
)

var (
	// ErrNotAuthenticated means tenant creation was attempted without a
	// signed-in user
	ErrNotAuthenticated = errors.New("tenant creation requires a signed-in user")
	// ErrInvalidSlug means the requested slug is malformed or reserved
	ErrInvalidSlug = errors.New("invalid tenant slug")
	// ErrSlugTaken means another tenant already routes on the slug
	ErrSlugTaken = errors.New("tenant slug already in use")
	// ErrAlreadyOwner means the user already owns a tenant; a user owns at
	// most one
	ErrAlreadyOwner = errors.New("user already owns a tenant")
)

// slugPattern constrains slugs to valid DNS labels, since the slug becomes
// the tenant's subdomain
var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// Directory is the tenant write surface the onboarder needs on top of the
// read-oriented store
type Directory interface {
	store.TenantStore
	CreateTenant(ctx context.Context, tenant *store.Tenant) error
	AddMember(ctx context.Context, membership *store.Membership) error
}

// Onboarder turns a signed-in user into a tenant owner: it claims the
// slug, creates the tenant with its owner membership, promotes the
// profile, and refreshes the session so the new tenant is visible
// immediately.
type Onboarder struct {
	sessions *session.Manager
	profiles store.ProfileStore
	tenants  Directory
	logger   *observability.Logger
}

// NewOnboarder creates an onboarder
func NewOnboarder(sessions *session.Manager, profiles store.ProfileStore, tenants Directory, logger *observability.Logger) *Onboarder {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &Onboarder{
		sessions: sessions,
		profiles: profiles,
		tenants:  tenants,
		logger:   logger,
	}
}

// CreateTenant creates a tenant owned by the current user. On success the
// user's profile is promoted to tenant owner with onboarding marked
// complete, and the session state reflects the new tenant.
func (o *Onboarder) CreateTenant(ctx context.Context, name, slug string) (*store.Tenant, error) {
	state := o.sessions.Snapshot()
	if !state.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	user := state.User

	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = slug
	}

	if _, err := o.tenants.GetTenantByOwner(ctx, user.ID); err == nil {
		return nil, ErrAlreadyOwner
	} else if !errors.Is(err, store.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check owned tenant: %w", err)
	}

	if _, err := o.tenants.GetTenantBySlug(ctx, slug); err == nil {
		return nil, ErrSlugTaken
	} else if !errors.Is(err, store.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}

	tenant := &store.Tenant{
		Name:    name,
		Slug:    slug,
		OwnerID: user.ID,
	}
	if err := o.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	if err := o.tenants.AddMember(ctx, &store.Membership{
		TenantID: tenant.ID,
		UserID:   user.ID,
		Role:     rbac.RoleTenantOwner,
	}); err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	// Promote the profile; platform operators keep their role
	updated := *user
	if updated.Role != rbac.RolePlatformOwner {
		updated.Role = rbac.RoleTenantOwner
	}
	updated.OnboardingComplete = true
	if err := o.profiles.UpdateProfile(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to promote profile: %w", err)
	}

	if err := o.sessions.ReloadProfile(ctx); err != nil {
		// The tenant exists; a stale snapshot only persists until the next
		// session transition
		o.logger.WithError(err).WithField("tenant", slug).Warn("failed to refresh session after tenant creation")
	}

	o.logger.WithFields(map[string]interface{}{
		"tenant":   slug,
		"owner_id": user.ID,
	}).Info("tenant created")
	return tenant, nil
}

func validateSlug(slug string) error {
	if slug == "" || slug == PlatformToken || slug == "www" {
		return ErrInvalidSlug
	}
	if !slugPattern.MatchString(slug) {
		return ErrInvalidSlug
	}
	return nil
}
