// Package retry implements the exponential backoff shared by the Embedder
// and Rewriter capability adapters.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy configures the backoff schedule. Zero-value Policy is invalid;
// use Default.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Default matches the engine's Embedder/Rewriter contract: base 100ms,
// max 10s, 3 attempts.
func Default() Policy {
	return Policy{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		MaxAttempts: 3,
	}
}

// Transient errors are retried by Do; any other error returned by fn aborts
// the retry loop immediately.
type Transient struct {
	Err error
}

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// MarkTransient wraps err so Do treats it as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a Transient.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// Do calls fn until it succeeds, returns a non-transient error, exhausts
// MaxAttempts, or ctx is cancelled. Delay between attempts grows
// exponentially from BaseDelay, capped at MaxDelay, with full jitter.
//
// The returned attempts count is always >= 1.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (attempts int, err error) {
	delay := p.BaseDelay
	for attempts = 1; ; attempts++ {
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if !IsTransient(err) {
			return attempts, err
		}
		if attempts >= p.MaxAttempts {
			return attempts, err
		}

		jittered := time.Duration(rand.Int63n(int64(delay) + 1))
		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
