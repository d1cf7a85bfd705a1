package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// CallPolicy bounds one inference call.
type CallPolicy struct {
	// Timeout applies to each attempt separately. Zero means no deadline
	// beyond the caller's context.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries int
	// Backoff is the pause before a retry.
	Backoff time.Duration
}

// DefaultCallPolicy returns a policy with the given per-attempt timeout and
// a single retry.
func DefaultCallPolicy(timeout time.Duration) CallPolicy {
	return CallPolicy{Timeout: timeout, Retries: 1, Backoff: time.Second}
}

// Invoke runs fn under policy. Only transient transport failures are
// retried; a Result carrying a service rejection is returned as-is, and a
// cancelled parent context stops immediately.
func Invoke(ctx context.Context, policy CallPolicy, op string, fn func(context.Context) (Result, error)) (Result, error) {
	attempts := 1 + max(0, policy.Retries)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		start := time.Now()
		res, err := fn(callCtx)
		cancel()
		if err == nil {
			log.Debug().
				Str("op", op).
				Int("attempt", attempt).
				Dur("duration", time.Since(start)).
				Msg("Inference call complete")
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == attempts || !IsTransient(err) {
			break
		}
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", policy.Backoff).
			Msg("Transient inference failure, retrying")

		timer := time.NewTimer(policy.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Result{}, lastErr
}
