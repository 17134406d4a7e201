// Package identity is the client for the remote identity service.
//
// The service owns credentials and sessions; this package owns the
// boundary. It performs credential sign-in/sign-up/sign-out, session
// restore across process restarts (via a persisted session blob that is a
// cache, never the source of truth), refresh, liveness validation,
// password-reset initiation, and passwordless magic-link requests, and it
// emits session-change events
// (SIGNED_IN, SIGNED_OUT, TOKEN_REFRESHED, USER_UPDATED, INITIAL_SESSION)
// that pkg/session reconciles against.
//
// Every provider failure is normalized into an AuthError with a stable
// code at this boundary. Provider-specific error shapes never leak to
// callers:
//
//	session, err := client.SignIn(ctx, email, password)
//	if ae, ok := identity.IsAuthError(err); ok && ae.Code == identity.CodeInvalidCredentials {
//		// show "wrong email or password"
//	}
package identity
