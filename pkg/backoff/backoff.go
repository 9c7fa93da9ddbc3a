// Package backoff implements bounded exponential-backoff retries for
// outbound calls. Retries happen inside a single circuit-breaker guarded
// attempt, so a retried call counts against the breaker only once.
package backoff

import (
	"context"
	"errors"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 10 * time.Second
	defaultMultiplier = 2.0
)

// Policy describes how a failed call is retried.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxRetries sets how many times a failed call is retried after the
// first attempt.
func WithMaxRetries(n int) Option {
	return func(p *Policy) { p.maxRetries = n }
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.baseDelay = d }
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(p *Policy) { p.multiplier = m }
}

// New returns a Policy with defaults overridden by opts.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		multiplier: defaultMultiplier,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Permanent marks err as not worth retrying; Retry returns the wrapped
// error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Retry runs fn until it succeeds or the retry budget is exhausted.
// Delay before retry attempt n is min(baseDelay*multiplier^(n-1), maxDelay).
// A cancelled context aborts the wait and returns ctx.Err().
func (p *Policy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	delay := p.baseDelay

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * p.multiplier)
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
	}

	return err
}

// RetryWithData runs fn with retries and returns its value.
func RetryWithData[T any](p *Policy, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Retry(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
