package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guildboard/guildboard/pkg/observability"
)

// Provider is the remote identity service consumed by the session manager.
// Implementations own the provider-side session lifecycle: credential
// sign-in/sign-up/sign-out, session restore across restarts, refresh, and
// a feed of session-change events.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	// CurrentSession returns the provider's session for this client,
	// restoring a persisted one if needed. Returns ErrNoSession when none.
	CurrentSession(ctx context.Context) (*Session, error)
	Refresh(ctx context.Context) (*Session, error)
	// Validate confirms the current session is still accepted server-side
	Validate(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	// SendMagicLink emails a passwordless sign-in link. Completing the link
	// lands the user back with a session the provider reports through
	// CurrentSession and Events.
	SendMagicLink(ctx context.Context, email string) error
	Events() <-chan Event
	Close()
}

// Config configures the HTTP identity client
type Config struct {
	// BaseURL is the identity service root, e.g. https://id.example.com/auth/v1
	BaseURL string
	// APIKey is the public API key sent with every request
	APIKey string
	// SessionFile is where the session blob is persisted across restarts.
	// Empty disables persistence.
	SessionFile string
	// Verifier optionally validates access tokens against the issuer's JWKS
	Verifier *TokenVerifier

	HTTPClient *http.Client
	Logger     *observability.Logger
}

// HTTPClient talks to a GoTrue-style identity REST API. It keeps the
// authoritative provider-side session in memory, mirrors it to
// Config.SessionFile, and emits Events on every session change.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	logger   *observability.Logger
	verifier *TokenVerifier
	file     string

	mu       sync.Mutex
	current  *Session
	restored bool
	closed   bool
	events   chan Event

	now func() time.Time
}

var _ Provider = (*HTTPClient)(nil)

// NewHTTPClient creates an identity client for the given service
func NewHTTPClient(cfg Config) *HTTPClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}

	return &HTTPClient{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   httpClient,
		logger:   logger,
		verifier: cfg.Verifier,
		file:     cfg.SessionFile,
		events:   make(chan Event, 16),
		now:      time.Now,
	}
}

// tokenResponse is the provider's token grant payload
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         RemoteUser `json:"user"`
}

// signUpResponse covers both provider variants: a bare user when email
// confirmation is pending, or a full token grant when sign-up activates
// immediately
type signUpResponse struct {
	tokenResponse
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

// SignIn performs a password credential grant
func (c *HTTPClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", body, "", &resp); err != nil {
		return nil, err
	}

	session, err := c.sessionFromGrant(resp)
	if err != nil {
		return nil, err
	}

	c.setSession(session, EventSignedIn)
	return session, nil
}

// SignUp creates an account. When the provider requires email
// verification no session is issued and VerificationPending is set.
func (c *HTTPClient) SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	body := map[string]interface{}{
		"email":    params.Email,
		"password": params.Password,
	}
	if params.FullName != "" {
		body["data"] = map[string]string{"full_name": params.FullName}
	}

	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", body, "", &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		// Verification-pending branch: an account exists but no session
		userID := resp.ID
		if userID == "" {
			userID = resp.User.ID
		}
		email := resp.Email
		if email == "" {
			email = resp.User.Email
		}
		return &SignUpResult{
			UserID:              userID,
			Email:               email,
			VerificationPending: true,
		}, nil
	}

	session, err := c.sessionFromGrant(resp.tokenResponse)
	if err != nil {
		return nil, err
	}
	c.setSession(session, EventSignedIn)

	return &SignUpResult{
		UserID:  session.UserID,
		Email:   session.Email,
		Session: session,
	}, nil
}

// SignOut revokes the session server-side and clears the local copy. The
// local copy is cleared even if revocation fails: a client that asked to
// sign out must not stay signed in because the network flaked.
func (c *HTTPClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	var revokeErr error
	if session != nil {
		revokeErr = c.do(ctx, http.MethodPost, "/logout", nil, session.AccessToken, nil)
	}

	c.clearSession(EventSignedOut)
	return revokeErr
}

// CurrentSession returns the provider session, restoring the persisted
// blob on first call and refreshing an expired credential.
func (c *HTTPClient) CurrentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if !c.restored {
		c.restored = true
		if restored := c.loadPersisted(); restored != nil {
			c.current = restored
		}
	}
	session := c.current
	c.mu.Unlock()

	if session == nil {
		return nil, ErrNoSession
	}

	if session.Expired(c.now()) {
		refreshed, err := c.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return refreshed, nil
	}

	c.emit(Event{Kind: EventInitialSession, Session: session, At: c.now()})
	copied := *session
	return &copied, nil
}

// Refresh renews the access credential using the refresh credential. A
// failed refresh clears the session: one failure is terminal, callers
// must sign in again.
func (c *HTTPClient) Refresh(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	if session == nil {
		return nil, ErrNoSession
	}

	body := map[string]string{"refresh_token": session.RefreshToken}
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", body, "", &resp); err != nil {
		c.clearSession(EventSignedOut)
		return nil, err
	}

	refreshed, err := c.sessionFromGrant(resp)
	if err != nil {
		c.clearSession(EventSignedOut)
		return nil, err
	}

	c.setSession(refreshed, EventTokenRefreshed)
	return refreshed, nil
}

// Validate asks the provider whether the current session is still live
func (c *HTTPClient) Validate(ctx context.Context) error {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	if session == nil {
		return ErrNoSession
	}

	var user RemoteUser
	return c.do(ctx, http.MethodGet, "/user", nil, session.AccessToken, &user)
}

// SendPasswordReset asks the provider to email a reset link
func (c *HTTPClient) SendPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/recover", map[string]string{"email": email}, "", nil)
}

// SendMagicLink asks the provider to email a passwordless sign-in link.
// create_user makes the same link serve first-time sign-ups: the account
// is created when the link is followed.
func (c *HTTPClient) SendMagicLink(ctx context.Context, email string) error {
	body := map[string]interface{}{
		"email":       email,
		"create_user": true,
	}
	return c.do(ctx, http.MethodPost, "/otp", body, "", nil)
}

// Events returns the session-change feed
func (c *HTTPClient) Events() <-chan Event {
	return c.events
}

// Close stops the event feed
func (c *HTTPClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// sessionFromGrant builds a Session from a token grant, deriving expiry
// from expires_in or, failing that, the access token's exp claim
func (c *HTTPClient) sessionFromGrant(resp tokenResponse) (*Session, error) {
	if resp.AccessToken == "" {
		return nil, &AuthError{Code: CodeProviderError, Message: "token grant missing access token"}
	}

	if c.verifier != nil {
		if err := c.verifier.Verify(context.Background(), resp.AccessToken); err != nil {
			return nil, &AuthError{Code: CodeInvalidToken, Message: err.Error()}
		}
	}

	expiresAt := time.Time{}
	if resp.ExpiresIn > 0 {
		expiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else if exp, err := tokenExpiry(resp.AccessToken); err == nil {
		expiresAt = exp
	}

	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
	}, nil
}

// tokenExpiry reads the exp claim without verifying the signature; expiry
// here only schedules refresh, it is not a trust decision
func tokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return exp.Time, nil
}

func (c *HTTPClient) setSession(session *Session, kind EventKind) {
	c.mu.Lock()
	c.current = session
	c.restored = true
	c.mu.Unlock()

	c.persist(session)
	c.emit(Event{Kind: kind, Session: session, At: c.now()})
}

func (c *HTTPClient) clearSession(kind EventKind) {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	if c.file != "" {
		if err := os.Remove(c.file); err != nil && !os.IsNotExist(err) {
			c.logger.WithError(err).Warn("failed to remove persisted session")
		}
	}
	c.emit(Event{Kind: kind, At: c.now()})
}

// persist mirrors the session blob to disk; the blob is a cache, never
// the source of truth, so persistence failures only log
func (c *HTTPClient) persist(session *Session) {
	if c.file == "" {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		c.logger.WithError(err).Warn("failed to serialize session")
		return
	}
	if err := os.WriteFile(c.file, data, 0o600); err != nil {
		c.logger.WithError(err).Warn("failed to persist session")
	}
}

// loadPersisted reads the persisted session blob; corrupt or unreadable
// blobs are treated as absent
func (c *HTTPClient) loadPersisted() *Session {
	if c.file == "" {
		return nil
	}
	data, err := os.ReadFile(c.file)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.WithError(err).Warn("failed to read persisted session")
		}
		return nil
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		c.logger.WithError(err).Warn("persisted session is corrupt, ignoring")
		return nil
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		return nil
	}
	return &session
}

// emit delivers an event without blocking; consumers re-derive state from
// the provider, so a dropped event is recoverable
func (c *HTTPClient) emit(event Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.events <- event:
	default:
		c.logger.WithField("kind", string(event.Kind)).Warn("dropping identity event, consumer too slow")
	}
}

// do executes one API call, normalizing any provider failure
func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, bearer string, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &AuthError{Code: CodeProviderUnreachable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var pe providerError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&pe); decodeErr != nil {
			return &AuthError{
				Code:    CodeProviderError,
				Message: fmt.Sprintf("identity service returned status %d", resp.StatusCode),
			}
		}
		return pe.normalize(resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &AuthError{Code: CodeProviderError, Message: "malformed provider response"}
		}
	}
	return nil
}
