package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/ratelimit"
	"github.com/guildboard/guildboard/pkg/store"
)

const defaultProbeSchedule = "@every 5m"

// Manager owns the authoritative authentication state: who is signed in,
// which tenant they own, which tenant they are viewing, and whether the
// state is still loading. All mutation goes through its operations; readers
// take consistent snapshots via Snapshot or Subscribe.
type Manager struct {
	provider identity.Provider
	store    store.Store

	loginLimiter     *ratelimit.Limiter
	registerLimiter  *ratelimit.Limiter
	resetLimiter     *ratelimit.Limiter
	magicLinkLimiter *ratelimit.Limiter

	stateDir      string
	probeSchedule string

	logger  *observability.Logger
	metrics *observability.Metrics

	mu          sync.Mutex
	state       State
	session     *identity.Session
	subscribers []chan State
	cron        *cron.Cron
	closed      bool

	eventsOnce sync.Once
}

// NewManager creates a session manager. Call Initialize before serving.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	schedule := cfg.ProbeSchedule
	if schedule == "" {
		schedule = defaultProbeSchedule
	}

	return &Manager{
		provider:         cfg.Provider,
		store:            cfg.Store,
		loginLimiter:     cfg.LoginLimiter,
		registerLimiter:  cfg.RegisterLimiter,
		resetLimiter:     cfg.PasswordResetLimiter,
		magicLinkLimiter: cfg.MagicLinkLimiter,
		stateDir:         cfg.StateDir,
		probeSchedule:    schedule,
		logger:           logger,
		metrics:          cfg.Metrics,
		state:            State{Status: StatusUninitialized},
	}
}

// Snapshot returns the current state. The snapshot is consistent: user and
// tenant slots were written together under one transition.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the current provider session, or nil when anonymous
func (m *Manager) Session() *identity.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	copied := *m.session
	return &copied
}

// Subscribe returns a channel that receives a state snapshot on every
// transition. Slow subscribers miss intermediate snapshots, never the
// latest: delivery is non-blocking and state is re-readable via Snapshot.
func (m *Manager) Subscribe() <-chan State {
	ch := make(chan State, 8)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a channel obtained from Subscribe
func (m *Manager) Unsubscribe(ch <-chan State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Initialize restores any existing provider session and settles the state
// to authenticated or anonymous. It never leaves the state loading: every
// path, including failures, ends with a settled status. Initialization
// failures are absorbed and logged; there is no caller positioned to
// recover from them, so the result is anonymous rather than an error.
func (m *Manager) Initialize(ctx context.Context) {
	m.transition(func(s *State) {
		s.Status = StatusLoading
	})
	m.eventsOnce.Do(func() {
		go m.consumeEvents()
	})

	defer m.settleIfLoading()

	session, err := m.provider.CurrentSession(ctx)
	if err != nil {
		if !errors.Is(err, identity.ErrNoSession) {
			m.logger.WithError(err).Warn("failed to restore session")
		}
		m.clearLocal(nil)
		return
	}

	m.establish(ctx, session)
}

// Login authenticates with a credential pair. The rate limiter runs first
// and its denial propagates unmodified, so callers can render the retry
// countdown. Identity failures surface as *identity.AuthError.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if m.loginLimiter != nil {
		if err := m.loginLimiter.Check(ctx, email); err != nil {
			m.countLogin("rate_limited")
			return err
		}
	}

	session, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		m.countLogin("failure")
		return err
	}
	m.countLogin("success")

	m.establish(ctx, session)
	return nil
}

// Register creates an account and its profile as one logical operation. An
// account must never exist without a profile: when the profile write fails
// after the account was created, the error wraps ErrPartialRegistration so
// callers can direct the user to sign in, which repairs the profile.
func (m *Manager) Register(ctx context.Context, params identity.SignUpParams) (*RegisterResult, error) {
	if m.registerLimiter != nil {
		if err := m.registerLimiter.Check(ctx, params.Email); err != nil {
			m.countRegistration("rate_limited")
			return nil, err
		}
	}

	signUp, err := m.provider.SignUp(ctx, params)
	if err != nil {
		m.countRegistration("failure")
		return nil, err
	}

	result := &RegisterResult{
		UserID:              signUp.UserID,
		Email:               signUp.Email,
		VerificationPending: signUp.VerificationPending,
	}

	if _, err := m.ensureProfile(ctx, signUp.UserID, signUp.Email, params.FullName); err != nil {
		m.countRegistration("partial")
		return result, fmt.Errorf("%w: %v", ErrPartialRegistration, err)
	}

	if signUp.VerificationPending {
		// No session yet: the user confirms their email and signs in
		m.countRegistration("verification_pending")
		return result, nil
	}

	m.countRegistration("success")
	m.establish(ctx, signUp.Session)
	return result, nil
}

// Logout revokes the remote session and clears all local state: memory,
// persisted snapshots, and the liveness probe. Local state clears even if
// revocation fails.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.provider.SignOut(ctx)
	m.clearLocal(nil)
	return err
}

// Refresh renews the access credential. A single failed refresh is
// terminal: the session clears and the user must sign in again.
func (m *Manager) Refresh(ctx context.Context) error {
	session, err := m.provider.Refresh(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.SessionRefreshesTotal.WithLabelValues("failure").Inc()
		}
		m.clearLocal(nil)
		return err
	}
	if m.metrics != nil {
		m.metrics.SessionRefreshesTotal.WithLabelValues("success").Inc()
	}

	m.mu.Lock()
	if !m.closed {
		m.session = session
	}
	m.mu.Unlock()
	return nil
}

// SendPasswordReset asks the identity service to start a password reset,
// rate limited per email
func (m *Manager) SendPasswordReset(ctx context.Context, email string) error {
	if m.resetLimiter != nil {
		if err := m.resetLimiter.Check(ctx, email); err != nil {
			return err
		}
	}
	return m.provider.SendPasswordReset(ctx, email)
}

// SendMagicLink asks the identity service to email a passwordless sign-in
// link, rate limited per email. The session itself arrives later, when the
// link completes and the provider reports it through CurrentSession or the
// event feed.
func (m *Manager) SendMagicLink(ctx context.Context, email string) error {
	if m.magicLinkLimiter != nil {
		if err := m.magicLinkLimiter.Check(ctx, email); err != nil {
			return err
		}
	}
	return m.provider.SendMagicLink(ctx, email)
}

// ReloadProfile re-derives the authenticated state from the profile and
// tenant stores without touching the provider session. Callers use it after
// writes that change what the session should see, e.g. completing
// onboarding or creating a tenant.
func (m *Manager) ReloadProfile(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return identity.ErrNoSession
	}
	m.establish(ctx, session)
	return nil
}

// SetActiveTenant records the tenant currently being viewed. The tenant
// resolver calls this after verifying access; it may differ from the
// user's owned tenant.
func (m *Manager) SetActiveTenant(tenant *store.Tenant) {
	m.transition(func(s *State) {
		s.ActiveTenant = tenant
	})
}

// Close stops the probe and subscriber delivery. Late async completions
// after Close are no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stopProbeLocked()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
}

// establish loads the profile and owned tenant for a session and settles
// the state to authenticated. Profile and tenant fetch failures keep the
// session: a storage hiccup must not force a logout.
func (m *Manager) establish(ctx context.Context, session *identity.Session) {
	profile, err := m.ensureProfile(ctx, session.UserID, session.Email, "")
	if err != nil {
		m.logger.WithError(err).WithField("user_id", session.UserID).Error("failed to load profile")
		// Fall back to the persisted snapshots so the UI has something to
		// show; the error slot records that state may be stale.
		profile = m.loadUserSnapshot()
		var cachedTenant *store.Tenant
		if profile != nil {
			cachedTenant = m.loadTenantSnapshot()
		}
		m.applySession(session, profile, cachedTenant, fmt.Errorf("failed to load profile: %w", err))
		return
	}

	var loadErr error
	ownedTenant, err := m.store.GetTenantByOwner(ctx, profile.ID)
	if err != nil {
		if !errors.Is(err, store.ErrTenantNotFound) {
			m.logger.WithError(err).WithField("user_id", profile.ID).Warn("failed to load owned tenant")
			loadErr = fmt.Errorf("failed to load tenant: %w", err)
		}
		ownedTenant = nil
	}

	m.applySession(session, profile, ownedTenant, loadErr)
}

// ensureProfile fetches a profile, creating a least-privilege one when the
// identity account exists but the profile row does not yet
func (m *Manager) ensureProfile(ctx context.Context, userID, email, fullName string) (*store.Profile, error) {
	profile, err := m.store.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrProfileNotFound) {
		return nil, err
	}

	profile = &store.Profile{
		ID:       userID,
		Email:    email,
		FullName: fullName,
	}
	if err := m.store.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	m.logger.WithField("user_id", userID).Info("created default profile for new account")
	return profile, nil
}

// applySession swaps in an authenticated state and starts the background
// probe. No-op after Close.
func (m *Manager) applySession(session *identity.Session, profile *store.Profile, ownedTenant *store.Tenant, loadErr error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.session = session
	if profile != nil {
		m.state = State{
			User:         profile,
			OwnedTenant:  ownedTenant,
			ActiveTenant: ownedTenant,
			Status:       StatusAuthenticated,
			Err:          loadErr,
		}
	} else {
		// Session is valid but the profile layer is unreachable
		m.state = State{Status: StatusError, Err: loadErr}
	}
	m.notifyLocked()
	m.startProbeLocked()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(1)
	}
	m.persistSnapshots(profile, ownedTenant)
}

// clearLocal drops the session and all derived state: memory, persisted
// snapshots, probe. No-op after Close.
func (m *Manager) clearLocal(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.state = State{Status: StatusAnonymous, Err: err}
	m.stopProbeLocked()
	m.notifyLocked()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(0)
	}
	m.removeSnapshots()
}

// transition applies a state mutation and notifies subscribers
func (m *Manager) transition(mutate func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	mutate(&m.state)
	m.notifyLocked()
}

// settleIfLoading forces a still-loading state to anonymous so no failure
// path can leave the manager loading forever
func (m *Manager) settleIfLoading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.state.Loading() {
		return
	}
	m.state.Status = StatusAnonymous
	m.notifyLocked()
}

func (m *Manager) notifyLocked() {
	for _, ch := range m.subscribers {
		select {
		case ch <- m.state:
		default:
		}
	}
}

// consumeEvents reconciles local state with provider session-change
// notifications
func (m *Manager) consumeEvents() {
	for event := range m.provider.Events() {
		if m.isClosed() {
			return
		}
		switch event.Kind {
		case identity.EventSignedOut:
			m.clearLocal(nil)
		case identity.EventSignedIn, identity.EventTokenRefreshed,
			identity.EventUserUpdated, identity.EventInitialSession:
			if event.Session == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			m.establish(ctx, event.Session)
			cancel()
		}
	}
}

func (m *Manager) startProbeLocked() {
	if m.cron != nil {
		return
	}
	c := cron.New()
	if _, err := c.AddFunc(m.probeSchedule, m.probe); err != nil {
		m.logger.WithError(err).Error("failed to schedule liveness probe")
		return
	}
	c.Start()
	m.cron = c
}

func (m *Manager) stopProbeLocked() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

// probe confirms the cached session is still accepted server-side. A
// remote rejection force-clears local state; an unreachable identity
// service only logs, since "cannot reach" is not "revoked".
func (m *Manager) probe() {
	if m.isClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.provider.Validate(ctx)
	if err == nil {
		m.countProbe("ok")
		return
	}

	var authErr *identity.AuthError
	if errors.As(err, &authErr) && authErr.Code == identity.CodeProviderUnreachable {
		m.countProbe("unreachable")
		m.logger.WithError(err).Warn("liveness probe could not reach identity service")
		return
	}

	m.countProbe("revoked")
	m.logger.WithError(err).Warn("session no longer valid, clearing local state")
	m.clearLocal(nil)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) countLogin(outcome string) {
	if m.metrics != nil {
		m.metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) countRegistration(outcome string) {
	if m.metrics != nil {
		m.metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) countProbe(result string) {
	if m.metrics != nil {
		m.metrics.LivenessProbesTotal.WithLabelValues(result).Inc()
	}
}
