package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/rbac"
	"github.com/guildboard/guildboard/pkg/session"
	"github.com/guildboard/guildboard/pkg/store"
)

// ErrNotFound means no tenant claims the routing token. Distinct from
// ErrAccessDenied: the caller routes to a not-found page, not a forbidden
// page.
var ErrNotFound = errors.New("tenant not found")

// ErrAccessDenied means the tenant exists but the current user neither
// owns it nor holds a membership in it
var ErrAccessDenied = errors.New("tenant access denied")

const defaultCacheSize = 256

// Resolver maps routing tokens to tenants and verifies the current user's
// right to operate in them. Successful resolutions update the session
// manager's active-tenant slot so downstream reads observe one consistent
// tenant.
type Resolver struct {
	manager *session.Manager
	tenants store.TenantStore
	cache   *lru.Cache[string, *store.Tenant]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a resolver with an LRU slug cache
func NewResolver(manager *session.Manager, tenants store.TenantStore, logger *observability.Logger, metrics *observability.Metrics) (*Resolver, error) {
	cache, err := lru.New[string, *store.Tenant](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant cache: %w", err)
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &Resolver{
		manager: manager,
		tenants: tenants,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Resolve maps a routing token to a verified tenant. It is idempotent:
// when the active tenant already matches the token it returns immediately
// with no store calls, so route re-entry never compounds fetches.
func (r *Resolver) Resolve(ctx context.Context, token string) (*store.Tenant, error) {
	if token == "" || token == PlatformToken {
		return nil, ErrNotFound
	}

	snapshot := r.manager.Snapshot()

	// Short-circuit: already viewing this tenant
	if active := snapshot.ActiveTenant; active != nil && active.Slug == token {
		r.countCacheHit()
		r.countResolution("cached")
		return active, nil
	}

	// Fast path: the user's own tenant needs no fetch and no access check
	if owned := snapshot.OwnedTenant; owned != nil && owned.Slug == token {
		r.countCacheHit()
		r.countResolution("owned")
		r.manager.SetActiveTenant(owned)
		return owned, nil
	}

	tenant, err := r.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := r.verifyAccess(ctx, snapshot, tenant); err != nil {
		return nil, err
	}

	r.countResolution("resolved")
	r.manager.SetActiveTenant(tenant)
	return tenant, nil
}

// lookup fetches a tenant by its routing token, consulting the slug cache
// first
func (r *Resolver) lookup(ctx context.Context, token string) (*store.Tenant, error) {
	if cached, ok := r.cache.Get(token); ok {
		r.countCacheHit()
		return cached, nil
	}

	tenant, err := r.tenants.GetTenantBySlug(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			r.countResolution("not_found")
			return nil, ErrNotFound
		}
		r.countResolution("error")
		return nil, fmt.Errorf("failed to fetch tenant %q: %w", token, err)
	}

	r.cache.Add(token, tenant)
	return tenant, nil
}

// verifyAccess confirms ownership, platform-operator role, or membership.
// A routing token alone never grants access.
func (r *Resolver) verifyAccess(ctx context.Context, snapshot session.State, tenant *store.Tenant) error {
	user := snapshot.User
	if user == nil {
		r.countResolution("access_denied")
		return ErrAccessDenied
	}
	if tenant.OwnerID == user.ID || user.Role == rbac.RolePlatformOwner {
		return nil
	}

	_, err := r.tenants.GetMembership(ctx, tenant.ID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			r.countResolution("access_denied")
			r.logger.WithFields(map[string]interface{}{
				"user_id": user.ID,
				"tenant":  tenant.Slug,
			}).Warn("tenant access denied")
			return ErrAccessDenied
		}
		r.countResolution("error")
		return fmt.Errorf("failed to check membership: %w", err)
	}
	return nil
}

// Invalidate drops a token from the slug cache, e.g. after a tenant
// changes its routing key
func (r *Resolver) Invalidate(token string) {
	r.cache.Remove(token)
}

func (r *Resolver) countResolution(outcome string) {
	if r.metrics != nil {
		r.metrics.TenantResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (r *Resolver) countCacheHit() {
	if r.metrics != nil {
		r.metrics.TenantCacheHitsTotal.Inc()
	}
}
