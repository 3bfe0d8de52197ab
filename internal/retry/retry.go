package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts before giving up.
	DefaultMaxAttempts = 3

	// baseDelay is the initial backoff delay.
	baseDelay = 1 * time.Second

	// maxDelay caps the backoff delay.
	maxDelay = 10 * time.Second

	// jitterFraction is the maximum fraction of the delay added as jitter.
	jitterFraction = 0.25
)

// Policy describes how an operation is retried. The zero value uses the
// package defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy backs off 1s, 2s, 4s (plus up to 25% jitter) over three
// attempts.
var DefaultPolicy = Policy{
	MaxAttempts: DefaultMaxAttempts,
	BaseDelay:   baseDelay,
	MaxDelay:    maxDelay,
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it immediately without further
// attempts. The wrapper is removed from the returned error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// OnRetry is called after a failed attempt that will be retried. attempt is
// 1-indexed.
type OnRetry func(attempt int, err error, wait time.Duration)

// Do runs fn until it succeeds, returns a Permanent error or the policy's
// attempts are used up, sleeping with exponential backoff and jitter between
// attempts. It returns the last error, or ctx.Err() if ctx ends first.
// onRetry may be nil.
func (p Policy) Do(ctx context.Context, fn func() error, onRetry OnRetry) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		// Don't sleep after the last attempt.
		if attempt < p.MaxAttempts-1 {
			delay := p.backoff(attempt)
			if onRetry != nil {
				onRetry(attempt+1, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return lastErr
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = baseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = maxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// backoff calculates the delay for the given attempt (0-indexed) with jitter.
func (p Policy) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.BaseDelay
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	// Add jitter: up to jitterFraction of the delay.
	jitter := time.Duration(float64(delay) * jitterFraction * rand.Float64())
	return delay + jitter
}
