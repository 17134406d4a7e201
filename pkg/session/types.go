package session

import (
	"errors"

	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/ratelimit"
	"github.com/guildboard/guildboard/pkg/store"
)

// Status is the manager's position in its lifecycle
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
	StatusError         Status = "error"
)

// State is a consistent snapshot of the authentication state. User and the
// tenant slots are never visible mid-transition: every mutation swaps the
// whole snapshot under one lock.
type State struct {
	// User is the authenticated profile, nil when anonymous
	User *store.Profile
	// OwnedTenant is the tenant the user owns, nil when they own none
	OwnedTenant *store.Tenant
	// ActiveTenant is the tenant currently being viewed. It usually equals
	// OwnedTenant but may diverge, e.g. an owner browsing another
	// community's public board.
	ActiveTenant *store.Tenant
	Status       Status
	// Err holds a non-fatal failure from the last operation, e.g. a tenant
	// fetch error on an otherwise valid session
	Err error
}

// Loading reports whether the manager has not yet settled into an
// authenticated or anonymous state
func (s State) Loading() bool {
	return s.Status == StatusUninitialized || s.Status == StatusLoading
}

// Authenticated reports whether a user is signed in
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// ErrPartialRegistration marks a registration where the identity account
// was created but the profile write failed. The account is real; callers
// should direct the user to sign in, which repairs the missing profile.
var ErrPartialRegistration = errors.New("account created but profile setup failed")

// RegisterResult reports the outcome of a registration
type RegisterResult struct {
	UserID string
	Email  string
	// VerificationPending is true when the identity service requires email
	// confirmation before issuing a session; no session is stored in that
	// case.
	VerificationPending bool
}

// Config wires a Manager's collaborators
type Config struct {
	Provider identity.Provider
	Store    store.Store

	LoginLimiter         *ratelimit.Limiter
	RegisterLimiter      *ratelimit.Limiter
	PasswordResetLimiter *ratelimit.Limiter
	MagicLinkLimiter     *ratelimit.Limiter

	// StateDir is where user/tenant snapshots persist across restarts.
	// Empty disables persistence.
	StateDir string
	// ProbeSchedule is the liveness probe cron spec, default "@every 5m"
	ProbeSchedule string

	Logger  *observability.Logger
	Metrics *observability.Metrics
}
