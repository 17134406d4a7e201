package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/guildboard/guildboard/pkg/observability"
)

// Config defines the limits for one sensitive action
type Config struct {
	// Action names the guarded operation, used as the key prefix and metric label
	Action string
	// MaxAttempts is the number of attempts allowed inside Window
	MaxAttempts int
	// Window is the sliding window attempts are counted in
	Window time.Duration
	// BlockDuration is the cooldown after the limit is hit, measured from
	// the most recent attempt
	BlockDuration time.Duration
}

// LoginConfig returns limits for credential sign-in attempts
func LoginConfig() Config {
	return Config{
		Action:        "login",
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 30 * time.Minute,
	}
}

// RegisterConfig returns limits for account registration attempts
func RegisterConfig() Config {
	return Config{
		Action:        "register",
		MaxAttempts:   3,
		Window:        time.Hour,
		BlockDuration: 24 * time.Hour,
	}
}

// PasswordResetConfig returns limits for password reset requests
func PasswordResetConfig() Config {
	return Config{
		Action:        "password_reset",
		MaxAttempts:   3,
		Window:        time.Hour,
		BlockDuration: 24 * time.Hour,
	}
}

// MagicLinkConfig returns limits for passwordless sign-in link requests.
// Like password resets, each attempt sends an email, so the limits match.
func MagicLinkConfig() Config {
	return Config{
		Action:        "magic_link",
		MaxAttempts:   3,
		Window:        time.Hour,
		BlockDuration: 24 * time.Hour,
	}
}

// LimitError is returned when an attempt is rejected. RetryAfter is the
// remaining cooldown, suitable for a user-facing countdown.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

// IsLimitExceeded reports whether err is a rate limit rejection
func IsLimitExceeded(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// Store is the shared attempt log backing a limiter. Implementations hold
// an append-only list of attempt timestamps per key in a datastore shared
// across processes.
type Store interface {
	// Count returns the number of attempts for key at or after since
	Count(ctx context.Context, key string, since time.Time) (int, error)
	// Latest returns the most recent attempt time, or the zero time if none
	Latest(ctx context.Context, key string) (time.Time, error)
	// Record appends an attempt at the given time
	Record(ctx context.Context, key string, at time.Time) error
	// PruneBefore deletes attempts strictly before cutoff
	PruneBefore(ctx context.Context, key string, cutoff time.Time) error
}

// Limiter bounds the attempt rate of one action per identity key using a
// sliding window over a shared store.
type Limiter struct {
	config  Config
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLimiter creates a limiter for the given action config
func NewLimiter(config Config, store Store, logger *observability.Logger, metrics *observability.Metrics) *Limiter {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &Limiter{
		config:  config,
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// NormalizeKey builds the store key for an identity, lowercasing and
// trimming so "User@Example.com " and "user@example.com" share a window.
func (l *Limiter) NormalizeKey(identity string) string {
	return l.config.Action + ":" + strings.ToLower(strings.TrimSpace(identity))
}

// Check records an attempt for the identity if it is within limits. It
// returns a *LimitError when the identity is blocked. A store read failure
// fails open: limiting is best-effort and login availability wins over
// strict enforcement during infrastructure faults.
func (l *Limiter) Check(ctx context.Context, identity string) error {
	key := l.NormalizeKey(identity)
	now := l.now()
	windowStart := now.Add(-l.config.Window)

	if l.metrics != nil {
		l.metrics.RateLimitChecksTotal.WithLabelValues(l.config.Action).Inc()
	}

	count, err := l.store.Count(ctx, key, windowStart)
	if err != nil {
		l.failOpen(err, "count")
		return nil
	}

	if count >= l.config.MaxAttempts {
		latest, err := l.store.Latest(ctx, key)
		if err != nil {
			l.failOpen(err, "latest")
			return nil
		}

		if !latest.IsZero() {
			blockEnd := latest.Add(l.config.BlockDuration)
			if now.Before(blockEnd) {
				if l.metrics != nil {
					l.metrics.RateLimitDenialsTotal.WithLabelValues(l.config.Action).Inc()
				}
				return &LimitError{RetryAfter: blockEnd.Sub(now)}
			}
		}

		// Block expired: a new window begins
		if err := l.store.PruneBefore(ctx, key, windowStart); err != nil {
			l.logger.WithError(err).WithField("key", key).Warn("rate limit prune failed")
		}
	}

	if err := l.store.Record(ctx, key, now); err != nil {
		l.failOpen(err, "record")
	}

	return nil
}

func (l *Limiter) failOpen(err error, op string) {
	if l.metrics != nil {
		l.metrics.RateLimitStoreFailures.Inc()
	}
	l.logger.WithError(err).WithFields(map[string]interface{}{
		"action": l.config.Action,
		"op":     op,
	}).Warn("rate limit store unavailable, allowing attempt")
}
