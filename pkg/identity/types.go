package identity

import "time"

// Session is the proof-of-authentication artifact for one user: an access
// credential with a finite lifetime plus the refresh credential used to
// renew it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
}

// Expired reports whether the access credential is past its lifetime,
// with a small skew margin so callers refresh slightly early.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(30 * time.Second).Before(s.ExpiresAt)
}

// SignUpParams carries the fields for account creation
type SignUpParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// SignUpResult distinguishes registration that produced an immediate
// session from registration that is pending email verification. The two
// branches drive different downstream navigation and must stay distinct.
type SignUpResult struct {
	UserID string
	Email  string
	// Session is nil when verification is pending
	Session *Session
	// VerificationPending is true when the provider requires email
	// confirmation before issuing credentials
	VerificationPending bool
}

// EventKind enumerates session-change notifications from the provider
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is a session-change notification
type Event struct {
	Kind    EventKind
	Session *Session
	At      time.Time
}

// RemoteUser is the provider's view of an account
type RemoteUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
