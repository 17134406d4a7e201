// Package ratelimit bounds the attempt rate of credential-sensitive
// operations (login, registration, password reset) per identity key.
//
// Attempts are an append-only log of timestamps in a shared store, counted
// over a sliding window. Once the limit is reached, further attempts are
// rejected until a cooldown measured from the most recent attempt expires:
//
//	limiter := ratelimit.NewLimiter(ratelimit.LoginConfig(), store, logger, metrics)
//	if err := limiter.Check(ctx, email); err != nil {
//		var le *ratelimit.LimitError
//		if errors.As(err, &le) {
//			// tell the user to retry after le.RetryAfter
//		}
//	}
//
// Two stores are provided: RedisStore (sorted sets, one entry per attempt)
// and SQLStore (a rate_limits table). Both share limits across processes;
// correctness of count-then-insert under concurrency relies on the
// datastore and the limiter tolerates the soft race where two concurrent
// attempts both pass.
//
// The limiter fails open: when the store itself is unreachable the attempt
// is allowed and the failure is logged and counted. Availability of login
// is worth more than strict limiting during an infrastructure fault.
package ratelimit
