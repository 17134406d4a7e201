package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Stable AuthError codes. Provider-specific error shapes are normalized
// into these at the client boundary and never leak past it.
const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeEmailNotConfirmed   = "email_not_confirmed"
	CodeUserExists          = "user_exists"
	CodeWeakPassword        = "weak_password"
	CodeSessionExpired      = "session_expired"
	CodeInvalidToken        = "invalid_token"
	CodeProviderUnreachable = "provider_unreachable"
	CodeProviderError       = "provider_error"
)

// ErrNoSession indicates the provider holds no session for this client
var ErrNoSession = errors.New("identity: no session")

// AuthError is a normalized identity-service failure with a stable code
// and a human-readable message. The provider's native message is preserved
// in Message when available.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("identity: %s: %s", e.Code, e.Message)
}

// IsAuthError extracts an AuthError from an error chain
func IsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// providerError is the wire shape of a provider error payload. The
// provider emits several variants; all fields are optional.
type providerError struct {
	Code             string `json:"error_code,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Msg              string `json:"msg,omitempty"`
	Message          string `json:"message,omitempty"`
}

// normalize maps a provider error payload onto a stable AuthError
func (p providerError) normalize(status int) *AuthError {
	message := p.ErrorDescription
	if message == "" {
		message = p.Msg
	}
	if message == "" {
		message = p.Message
	}
	if message == "" {
		message = p.Error
	}
	if message == "" {
		message = fmt.Sprintf("identity service returned status %d", status)
	}

	code := p.Code
	if code == "" {
		code = classifyMessage(message, status)
	}

	return &AuthError{Code: code, Message: message}
}

// classifyMessage maps known provider message text onto stable codes when
// no explicit error code was sent
func classifyMessage(message string, status int) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "invalid login credentials"),
		strings.Contains(lower, "invalid grant"):
		return CodeInvalidCredentials
	case strings.Contains(lower, "email not confirmed"):
		return CodeEmailNotConfirmed
	case strings.Contains(lower, "already registered"),
		strings.Contains(lower, "already exists"):
		return CodeUserExists
	case strings.Contains(lower, "password"):
		return CodeWeakPassword
	case status == 401:
		return CodeSessionExpired
	default:
		return CodeProviderError
	}
}
