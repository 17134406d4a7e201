// Package session owns the authoritative authentication state for the
// process: the signed-in user, their owned tenant, the tenant currently
// being viewed, and the loading/error status.
//
// Manager is the single mutation surface. It performs login, registration,
// logout, refresh, and passwordless link requests against the remote
// identity service, rate limits credential operations, ensures every account has a profile row, mirrors
// user/tenant snapshots to local files so restarts feel instant, runs a
// periodic liveness probe that force-clears a remotely revoked session,
// and notifies subscribers on every state transition.
package session
