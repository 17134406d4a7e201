package guard

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/guildboard/guildboard/pkg/httputil"
	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/rbac"
	"github.com/guildboard/guildboard/pkg/session"
	"github.com/guildboard/guildboard/pkg/tenant"
)

// RouteOptions declares what a protected route requires
type RouteOptions struct {
	// RequiredPermissions must all be held by the user's role
	RequiredPermissions []rbac.Permission
	// TenantScoped routes resolve and verify the request's tenant first
	TenantScoped bool
	// RequireOnboarding redirects users with incomplete onboarding to the
	// onboarding flow
	RequireOnboarding bool
}

// Config wires a Guard's collaborators and destinations
type Config struct {
	Sessions *session.Manager
	Tenants  *tenant.Resolver
	Engine   *rbac.Engine

	// BaseDomain anchors subdomain parsing for tenant-scoped routes
	BaseDomain string

	// Redirect destinations, defaulted when empty
	LoginPath        string
	OnboardingPath   string
	UnauthorizedPath string
	NotFoundPath     string
	ForbiddenPath    string

	// SettleTimeout bounds how long a request waits for the session state
	// to finish loading
	SettleTimeout time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Guard composes the session manager, tenant resolver, and permission
// engine into one declarative wrapper for protected routes
type Guard struct {
	sessions *session.Manager
	tenants  *tenant.Resolver
	engine   *rbac.Engine

	baseDomain       string
	loginPath        string
	onboardingPath   string
	unauthorizedPath string
	notFoundPath     string
	forbiddenPath    string
	settleTimeout    time.Duration

	logger  *observability.Logger
	metrics *observability.Metrics
}

// New creates a guard
func New(cfg Config) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}

	g := &Guard{
		sessions:         cfg.Sessions,
		tenants:          cfg.Tenants,
		engine:           cfg.Engine,
		baseDomain:       cfg.BaseDomain,
		loginPath:        cfg.LoginPath,
		onboardingPath:   cfg.OnboardingPath,
		unauthorizedPath: cfg.UnauthorizedPath,
		notFoundPath:     cfg.NotFoundPath,
		forbiddenPath:    cfg.ForbiddenPath,
		settleTimeout:    cfg.SettleTimeout,
		logger:           logger,
		metrics:          cfg.Metrics,
	}
	if g.loginPath == "" {
		g.loginPath = "/login"
	}
	if g.onboardingPath == "" {
		g.onboardingPath = "/onboarding"
	}
	if g.unauthorizedPath == "" {
		g.unauthorizedPath = "/unauthorized"
	}
	if g.notFoundPath == "" {
		g.notFoundPath = "/not-found"
	}
	if g.forbiddenPath == "" {
		g.forbiddenPath = "/access-denied"
	}
	if g.settleTimeout == 0 {
		g.settleTimeout = 5 * time.Second
	}
	return g
}

// Protect wraps a handler with the access checks declared in opts. Checks
// run in a fixed order: settle wait, authentication, tenant resolution,
// onboarding, permissions.
func (g *Guard) Protect(opts RouteOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, ok := g.awaitSettled(r)
			if !ok {
				g.decide("timeout")
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "session state unavailable")
				return
			}

			if !state.Authenticated() {
				g.decide("login_redirect")
				g.redirectToLogin(w, r)
				return
			}

			if opts.TenantScoped {
				if !g.resolveTenant(w, r) {
					return
				}
			}

			if opts.RequireOnboarding && !state.User.OnboardingComplete && r.URL.Path != g.onboardingPath {
				g.decide("onboarding_redirect")
				http.Redirect(w, r, g.onboardingPath, http.StatusFound)
				return
			}

			if len(opts.RequiredPermissions) > 0 {
				if !g.engine.CanAccessRoute(state.User.Role, opts.RequiredPermissions) {
					g.decide("permission_denied")
					// The redirect stays generic: which permission was
					// missing is not the client's business
					http.Redirect(w, r, g.unauthorizedPath, http.StatusFound)
					return
				}
			}

			g.decide("allowed")
			ctx := observability.WithUserID(r.Context(), state.User.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Handler is a convenience for wrapping a single handler
func (g *Guard) Handler(h http.Handler, opts RouteOptions) http.Handler {
	return g.Protect(opts)(h)
}

// awaitSettled blocks until the session state is no longer loading, bounded
// by the settle timeout and the request context. A premature allow or deny
// against a still-loading state would be a guess; waiting is the only
// correct option.
func (g *Guard) awaitSettled(r *http.Request) (session.State, bool) {
	state := g.sessions.Snapshot()
	if !state.Loading() {
		return state, true
	}

	ch := g.sessions.Subscribe()
	defer g.sessions.Unsubscribe(ch)

	timeout := time.NewTimer(g.settleTimeout)
	defer timeout.Stop()

	for {
		// Re-check: the state may have settled between Snapshot and Subscribe
		state = g.sessions.Snapshot()
		if !state.Loading() {
			return state, true
		}
		select {
		case _, ok := <-ch:
			if !ok {
				// Manager closed while waiting; the state will never settle
				return session.State{}, false
			}
		case <-r.Context().Done():
			return session.State{}, false
		case <-timeout.C:
			return session.State{}, false
		}
	}
}

func (g *Guard) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	next := r.URL.RequestURI()
	target := g.loginPath + "?next=" + url.QueryEscape(next)
	http.Redirect(w, r, target, http.StatusFound)
}

// resolveTenant derives the routing token and verifies access, redirecting
// on the not-found and access-denied outcomes. Returns false when the
// response has been written.
func (g *Guard) resolveTenant(w http.ResponseWriter, r *http.Request) bool {
	rc := tenant.ParseRoutingContext(r.Host, r.URL.Query(), g.baseDomain)
	if !rc.Tenant() {
		g.decide("tenant_not_found")
		http.Redirect(w, r, g.notFoundPath, http.StatusFound)
		return false
	}

	_, err := g.tenants.Resolve(r.Context(), rc.Token)
	switch {
	case err == nil:
		return true
	case errors.Is(err, tenant.ErrNotFound):
		g.decide("tenant_not_found")
		http.Redirect(w, r, g.notFoundPath, http.StatusFound)
	case errors.Is(err, tenant.ErrAccessDenied):
		g.decide("tenant_denied")
		http.Redirect(w, r, g.forbiddenPath, http.StatusFound)
	default:
		g.decide("error")
		g.logger.WithError(err).WithField("token", rc.Token).Error("tenant resolution failed")
		httputil.WriteInternalError(w)
	}
	return false
}

func (g *Guard) decide(decision string) {
	if g.metrics != nil {
		g.metrics.GuardDecisionsTotal.WithLabelValues(decision).Inc()
	}
}
