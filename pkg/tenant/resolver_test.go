package tenant

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/rbac"
	"github.com/guildboard/guildboard/pkg/session"
	"github.com/guildboard/guildboard/pkg/store"
)

// countingStore records how many fetches the resolver performs
type countingStore struct {
	mu            sync.Mutex
	profiles      map[string]*store.Profile
	tenants       map[string]*store.Tenant
	byOwner       map[string]string
	memberships   map[string]rbac.Role
	slugFetches   int
	memberFetches int
}

func newCountingStore() *countingStore {
	return &countingStore{
		profiles:    map[string]*store.Profile{},
		tenants:     map[string]*store.Tenant{},
		byOwner:     map[string]string{},
		memberships: map[string]rbac.Role{},
	}
}

func (s *countingStore) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, store.ErrProfileNotFound
}

func (s *countingStore) GetProfileByEmail(ctx context.Context, email string) (*store.Profile, error) {
	return nil, store.ErrProfileNotFound
}

func (s *countingStore) CreateProfile(ctx context.Context, p *store.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.profiles[p.ID] = &copied
	return nil
}

func (s *countingStore) UpdateProfile(ctx context.Context, p *store.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.profiles[p.ID] = &copied
	return nil
}

func (s *countingStore) GetTenant(ctx context.Context, id string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, store.ErrTenantNotFound
}

func (s *countingStore) GetTenantBySlug(ctx context.Context, slug string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slugFetches++
	for _, t := range s.tenants {
		if t.Slug == slug {
			copied := *t
			return &copied, nil
		}
	}
	return nil, store.ErrTenantNotFound
}

func (s *countingStore) GetTenantByOwner(ctx context.Context, ownerID string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOwner[ownerID]; ok {
		copied := *s.tenants[id]
		return &copied, nil
	}
	return nil, store.ErrTenantNotFound
}

func (s *countingStore) GetMembership(ctx context.Context, tenantID, userID string) (*store.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberFetches++
	if role, ok := s.memberships[tenantID+"/"+userID]; ok {
		return &store.Membership{TenantID: tenantID, UserID: userID, Role: role}, nil
	}
	return nil, store.ErrMembershipNotFound
}

func (s *countingStore) CreateTenant(ctx context.Context, t *store.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = "t-" + t.Slug
	}
	copied := *t
	s.tenants[t.ID] = &copied
	if t.OwnerID != "" {
		s.byOwner[t.OwnerID] = t.ID
	}
	return nil
}

func (s *countingStore) AddMember(ctx context.Context, m *store.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[m.TenantID+"/"+m.UserID] = m.Role
	return nil
}

func (s *countingStore) addTenant(t *store.Tenant) {
	s.tenants[t.ID] = t
	if t.OwnerID != "" {
		s.byOwner[t.OwnerID] = t.ID
	}
}

// staticProvider issues the same session for every sign-in
type staticProvider struct {
	userID string
	email  string
	events chan identity.Event
}

func (p *staticProvider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	return &identity.Session{AccessToken: "at", RefreshToken: "rt", UserID: p.userID, Email: p.email}, nil
}

func (p *staticProvider) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.SignUpResult, error) {
	return nil, &identity.AuthError{Code: identity.CodeProviderError, Message: "not supported"}
}

func (p *staticProvider) SignOut(ctx context.Context) error { return nil }

func (p *staticProvider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	return nil, identity.ErrNoSession
}

func (p *staticProvider) Refresh(ctx context.Context) (*identity.Session, error) {
	return nil, identity.ErrNoSession
}

func (p *staticProvider) Validate(ctx context.Context) error { return nil }

func (p *staticProvider) SendPasswordReset(ctx context.Context, email string) error { return nil }

func (p *staticProvider) SendMagicLink(ctx context.Context, email string) error { return nil }

func (p *staticProvider) Events() <-chan identity.Event { return p.events }

func (p *staticProvider) Close() {}

func testResolver(t *testing.T, st *countingStore, userID, email string) (*Resolver, *session.Manager) {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)

	manager := session.NewManager(session.Config{
		Provider: &staticProvider{userID: userID, email: email, events: make(chan identity.Event)},
		Store:    st,
		Logger:   logger,
	})
	t.Cleanup(manager.Close)
	require.NoError(t, manager.Login(context.Background(), email, "pw"))

	resolver, err := NewResolver(manager, st, logger, nil)
	require.NoError(t, err)
	return resolver, manager
}

func TestResolveOwnedTenantSkipsFetch(t *testing.T) {
	st := newCountingStore()
	st.profiles["owner-1"] = &store.Profile{ID: "owner-1", Email: "o@example.com", Role: rbac.RoleTenantOwner}
	st.addTenant(&store.Tenant{ID: "t-1", Slug: "acme", OwnerID: "owner-1"})

	resolver, _ := testResolver(t, st, "owner-1", "o@example.com")
	st.mu.Lock()
	st.slugFetches = 0
	st.mu.Unlock()

	tenant, err := resolver.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "t-1", tenant.ID)
	assert.Zero(t, st.slugFetches, "the cached own tenant needs no store fetch")
}

func TestResolveShortCircuitsOnRepeat(t *testing.T) {
	st := newCountingStore()
	st.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "m@example.com", Role: rbac.RoleMember}
	st.addTenant(&store.Tenant{ID: "t-2", Slug: "orbit", OwnerID: "someone-else"})
	st.memberships["t-2/user-1"] = rbac.RoleMember

	resolver, manager := testResolver(t, st, "user-1", "m@example.com")

	_, err := resolver.Resolve(context.Background(), "orbit")
	require.NoError(t, err)
	fetchesAfterFirst := st.slugFetches
	membersAfterFirst := st.memberFetches

	tenant, err := resolver.Resolve(context.Background(), "orbit")
	require.NoError(t, err)
	assert.Equal(t, "t-2", tenant.ID)
	assert.Equal(t, fetchesAfterFirst, st.slugFetches, "re-resolving the active tenant must not fetch again")
	assert.Equal(t, membersAfterFirst, st.memberFetches)

	assert.Equal(t, "orbit", manager.Snapshot().ActiveTenant.Slug)
}

func TestResolveNotFound(t *testing.T) {
	st := newCountingStore()
	st.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "m@example.com"}

	resolver, _ := testResolver(t, st, "user-1", "m@example.com")

	_, err := resolver.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveAccessDenied(t *testing.T) {
	st := newCountingStore()
	st.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "m@example.com", Role: rbac.RoleMember}
	st.addTenant(&store.Tenant{ID: "t-own", Slug: "mine", OwnerID: "user-1"})
	st.addTenant(&store.Tenant{ID: "t-other", Slug: "theirs", OwnerID: "someone-else"})

	resolver, manager := testResolver(t, st, "user-1", "m@example.com")

	tenant, err := resolver.Resolve(context.Background(), "theirs")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Nil(t, tenant, "denial must never substitute the user's own tenant")
	active := manager.Snapshot().ActiveTenant
	if active != nil {
		assert.NotEqual(t, "theirs", active.Slug)
	}
}

func TestResolveMembershipGrantsAccess(t *testing.T) {
	st := newCountingStore()
	st.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "m@example.com", Role: rbac.RoleMember}
	st.addTenant(&store.Tenant{ID: "t-2", Slug: "orbit", OwnerID: "someone-else"})
	st.memberships["t-2/user-1"] = rbac.RoleEmployer

	resolver, _ := testResolver(t, st, "user-1", "m@example.com")

	tenant, err := resolver.Resolve(context.Background(), "orbit")
	require.NoError(t, err)
	assert.Equal(t, "orbit", tenant.Slug)
}

func TestResolvePlatformOwnerAccessesAnyTenant(t *testing.T) {
	st := newCountingStore()
	st.profiles["admin-1"] = &store.Profile{ID: "admin-1", Email: "root@example.com", Role: rbac.RolePlatformOwner}
	st.addTenant(&store.Tenant{ID: "t-2", Slug: "orbit", OwnerID: "someone-else"})

	resolver, _ := testResolver(t, st, "admin-1", "root@example.com")

	tenant, err := resolver.Resolve(context.Background(), "orbit")
	require.NoError(t, err)
	assert.Equal(t, "orbit", tenant.Slug)
	assert.Zero(t, st.memberFetches, "platform operators need no membership row")
}

func TestResolvePlatformTokenIsNotATenant(t *testing.T) {
	st := newCountingStore()
	st.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "m@example.com"}

	resolver, _ := testResolver(t, st, "user-1", "m@example.com")

	_, err := resolver.Resolve(context.Background(), PlatformToken)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = resolver.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}
