// Package httputil provides the shared HTTP plumbing: JSON request and
// response helpers, error payload mapping for identity and rate limit
// failures, and request-id/logging/recovery middleware.
package httputil
