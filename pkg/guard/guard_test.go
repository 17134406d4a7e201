package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/rbac"
	"github.com/guildboard/guildboard/pkg/session"
	"github.com/guildboard/guildboard/pkg/store"
	"github.com/guildboard/guildboard/pkg/tenant"
)

const baseDomain = "guildboard.io"

type fakeProvider struct {
	userID string
	email  string
	events chan identity.Event
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	return &identity.Session{AccessToken: "at", RefreshToken: "rt", UserID: p.userID, Email: p.email}, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.SignUpResult, error) {
	return nil, &identity.AuthError{Code: identity.CodeProviderError, Message: "not supported"}
}

func (p *fakeProvider) SignOut(ctx context.Context) error { return nil }

func (p *fakeProvider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	return nil, identity.ErrNoSession
}

func (p *fakeProvider) Refresh(ctx context.Context) (*identity.Session, error) {
	return nil, identity.ErrNoSession
}

func (p *fakeProvider) Validate(ctx context.Context) error { return nil }

func (p *fakeProvider) SendPasswordReset(ctx context.Context, email string) error { return nil }

func (p *fakeProvider) SendMagicLink(ctx context.Context, email string) error { return nil }

func (p *fakeProvider) Events() <-chan identity.Event { return p.events }

func (p *fakeProvider) Close() {}

type fakeStore struct {
	mu          sync.Mutex
	profiles    map[string]*store.Profile
	tenants     map[string]*store.Tenant
	byOwner     map[string]string
	memberships map[string]rbac.Role
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:    map[string]*store.Profile{},
		tenants:     map[string]*store.Tenant{},
		byOwner:     map[string]string{},
		memberships: map[string]rbac.Role{},
	}
}

func (s *fakeStore) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, store.ErrProfileNotFound
}

func (s *fakeStore) GetProfileByEmail(ctx context.Context, email string) (*store.Profile, error) {
	return nil, store.ErrProfileNotFound
}

func (s *fakeStore) CreateProfile(ctx context.Context, p *store.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Role == "" {
		p.Role = rbac.DefaultRole
	}
	copied := *p
	s.profiles[p.ID] = &copied
	return nil
}

func (s *fakeStore) UpdateProfile(ctx context.Context, p *store.Profile) error { return nil }

func (s *fakeStore) GetTenant(ctx context.Context, id string) (*store.Tenant, error) {
	return nil, store.ErrTenantNotFound
}

func (s *fakeStore) GetTenantBySlug(ctx context.Context, slug string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			copied := *t
			return &copied, nil
		}
	}
	return nil, store.ErrTenantNotFound
}

func (s *fakeStore) GetTenantByOwner(ctx context.Context, ownerID string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOwner[ownerID]; ok {
		copied := *s.tenants[id]
		return &copied, nil
	}
	return nil, store.ErrTenantNotFound
}

func (s *fakeStore) GetMembership(ctx context.Context, tenantID, userID string) (*store.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role, ok := s.memberships[tenantID+"/"+userID]; ok {
		return &store.Membership{TenantID: tenantID, UserID: userID, Role: role}, nil
	}
	return nil, store.ErrMembershipNotFound
}

type fixture struct {
	guard   *Guard
	manager *session.Manager
	store   *fakeStore
}

func newFixture(t *testing.T, userID, email string) *fixture {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)

	st := newFakeStore()
	manager := session.NewManager(session.Config{
		Provider: &fakeProvider{userID: userID, email: email, events: make(chan identity.Event)},
		Store:    st,
		Logger:   logger,
	})
	t.Cleanup(manager.Close)

	resolver, err := tenant.NewResolver(manager, st, logger, nil)
	require.NoError(t, err)

	g := New(Config{
		Sessions:   manager,
		Tenants:    resolver,
		Engine:     rbac.NewEngine(),
		BaseDomain: baseDomain,
		Logger:     logger,
	})
	return &fixture{guard: g, manager: manager, store: st}
}

func (f *fixture) login(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, f.manager.Login(context.Background(), email, "pw"))
}

func okHandler() (http.Handler, *bool) {
	served := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
		w.WriteHeader(http.StatusOK)
	}), &served
}

func get(handler http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// Scenario: a signed-in member with no owned tenant passes plain protected
// routes
func TestMemberPassesPlainProtectedRoute(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")
	f.store.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "member@example.com", Role: rbac.RoleMember, OnboardingComplete: true}
	f.login(t, "member@example.com")

	assert.Nil(t, f.manager.Snapshot().OwnedTenant)

	inner, served := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{})

	rec := get(handler, "https://guildboard.io/dashboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *served)
}

func TestAnonymousRedirectsToLoginWithReturnPath(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")
	f.manager.Initialize(context.Background())

	inner, served := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{})

	rec := get(handler, "https://guildboard.io/jobs/new?draft=1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fjobs%2Fnew%3Fdraft%3D1", rec.Header().Get("Location"))
	assert.False(t, *served)
}

// Scenario: permission gating distinguishes roles on the same route
func TestPermissionGateByRole(t *testing.T) {
	opts := RouteOptions{RequiredPermissions: []rbac.Permission{
		{Action: rbac.ActionUpdate, Resource: rbac.ResourceSettings},
	}}

	t.Run("tenant owner allowed", func(t *testing.T) {
		f := newFixture(t, "owner-1", "owner@example.com")
		f.store.profiles["owner-1"] = &store.Profile{ID: "owner-1", Email: "owner@example.com", Role: rbac.RoleTenantOwner, OnboardingComplete: true}
		f.login(t, "owner@example.com")

		inner, served := okHandler()
		rec := get(f.guard.Handler(inner, opts), "https://guildboard.io/settings")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, *served)
	})

	t.Run("member redirected to unauthorized", func(t *testing.T) {
		f := newFixture(t, "user-1", "member@example.com")
		f.store.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "member@example.com", Role: rbac.RoleMember, OnboardingComplete: true}
		f.login(t, "member@example.com")

		inner, served := okHandler()
		rec := get(f.guard.Handler(inner, opts), "https://guildboard.io/settings")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/unauthorized", rec.Header().Get("Location"))
		assert.False(t, *served)
	})
}

// Scenario: an unknown tenant token routes to not-found, never an error
func TestTenantNotFoundRedirect(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")
	f.store.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "member@example.com", Role: rbac.RoleMember, OnboardingComplete: true}
	f.login(t, "member@example.com")

	inner, served := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{TenantScoped: true})

	rec := get(handler, "https://acme.guildboard.io/jobs")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/not-found", rec.Header().Get("Location"))
	assert.False(t, *served)
}

func TestTenantAccessDeniedRedirect(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")
	f.store.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "member@example.com", Role: rbac.RoleMember, OnboardingComplete: true}
	f.store.tenants["t-1"] = &store.Tenant{ID: "t-1", Slug: "acme", OwnerID: "someone-else"}
	f.login(t, "member@example.com")

	inner, served := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{TenantScoped: true})

	rec := get(handler, "https://acme.guildboard.io/jobs")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/access-denied", rec.Header().Get("Location"))
	assert.False(t, *served)
}

func TestTenantScopedAllowsMember(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")
	f.store.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "member@example.com", Role: rbac.RoleMember, OnboardingComplete: true}
	f.store.tenants["t-1"] = &store.Tenant{ID: "t-1", Slug: "acme", OwnerID: "someone-else"}
	f.store.memberships["t-1/user-1"] = rbac.RoleMember
	f.login(t, "member@example.com")

	inner, served := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{TenantScoped: true})

	rec := get(handler, "https://acme.guildboard.io/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *served)
	assert.Equal(t, "acme", f.manager.Snapshot().ActiveTenant.Slug)
}

func TestOnboardingRedirect(t *testing.T) {
	f := newFixture(t, "user-1", "new@example.com")
	f.login(t, "new@example.com") // profile auto-created, onboarding incomplete

	inner, served := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{RequireOnboarding: true})

	rec := get(handler, "https://guildboard.io/dashboard")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/onboarding", rec.Header().Get("Location"))
	assert.False(t, *served)
}

func TestOnboardingPathItselfIsExempt(t *testing.T) {
	f := newFixture(t, "user-1", "new@example.com")
	f.login(t, "new@example.com")

	inner, served := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{RequireOnboarding: true})

	rec := get(handler, "https://guildboard.io/onboarding")
	assert.Equal(t, http.StatusOK, rec.Code, "the onboarding page must not redirect to itself")
	assert.True(t, *served)
}

func TestGuardWaitsForLoadingState(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")
	f.store.profiles["user-1"] = &store.Profile{ID: "user-1", Email: "member@example.com", Role: rbac.RoleMember, OnboardingComplete: true}

	// Leave the manager uninitialized so the guard must wait, then settle
	// it from another goroutine as initialization would
	go func() {
		time.Sleep(50 * time.Millisecond)
		f.manager.Initialize(context.Background())
	}()

	inner, _ := okHandler()
	handler := f.guard.Handler(inner, RouteOptions{})

	rec := get(handler, "https://guildboard.io/dashboard")
	// Initialize found no provider session, so the settled state is
	// anonymous and the request redirects rather than hanging or guessing
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestGuardFailsFastWhenManagerCloses(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")

	// Leave the manager uninitialized so the guard blocks, then close it
	// mid-wait. The request must fail promptly, well inside the settle
	// timeout, instead of spinning on the closed subscription.
	go func() {
		time.Sleep(50 * time.Millisecond)
		f.manager.Close()
	}()

	inner, served := okHandler()
	start := time.Now()
	rec := get(f.guard.Handler(inner, RouteOptions{}), "https://guildboard.io/dashboard")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, *served)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGuardTimesOutWhenStateNeverSettles(t *testing.T) {
	f := newFixture(t, "user-1", "member@example.com")

	g := New(Config{
		Sessions:      f.manager,
		Tenants:       f.guard.tenants,
		Engine:        rbac.NewEngine(),
		BaseDomain:    baseDomain,
		SettleTimeout: 50 * time.Millisecond,
		Logger:        observability.NewLogger(observability.ErrorLevel, os.Stderr),
	})

	inner, served := okHandler()
	rec := get(g.Handler(inner, RouteOptions{}), "https://guildboard.io/dashboard")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, *served)
}
