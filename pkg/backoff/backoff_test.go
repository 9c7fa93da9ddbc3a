package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Retry(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		p := New()
		attempts := 0
		err := p.Retry(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		p := New(WithMaxRetries(3), WithBaseDelay(1*time.Millisecond))
		attempts := 0
		err := p.Retry(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fail after retry budget exhausted", func(t *testing.T) {
		p := New(WithMaxRetries(2), WithBaseDelay(1*time.Millisecond))
		attempts := 0
		err := p.Retry(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts) // 1 initial + 2 retries
	})

	t.Run("delay grows and is capped", func(t *testing.T) {
		p := New(
			WithMaxRetries(3),
			WithBaseDelay(2*time.Millisecond),
			WithMultiplier(10),
			WithMaxDelay(5*time.Millisecond),
		)
		start := time.Now()
		_ = p.Retry(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
		// delays: 2ms, then capped at 5ms twice
		assert.GreaterOrEqual(t, time.Since(start), 12*time.Millisecond)
	})

	t.Run("permanent error stops retrying", func(t *testing.T) {
		p := New(WithMaxRetries(5), WithBaseDelay(1*time.Millisecond))
		cause := errors.New("quota exhausted")
		attempts := 0
		err := p.Retry(context.Background(), func(ctx context.Context) error {
			attempts++
			return Permanent(cause)
		})
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 1, attempts)
	})

	t.Run("context cancellation aborts wait", func(t *testing.T) {
		p := New(WithMaxRetries(5), WithBaseDelay(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := p.Retry(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})
}

func TestRetryWithData(t *testing.T) {
	t.Run("success returns data", func(t *testing.T) {
		p := New()
		val, err := RetryWithData(p, context.Background(), func(ctx context.Context) (string, error) {
			return "ok", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "ok", val)
	})

	t.Run("fail returns last error", func(t *testing.T) {
		p := New(WithMaxRetries(1), WithBaseDelay(1*time.Millisecond))
		val, err := RetryWithData(p, context.Background(), func(ctx context.Context) (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Empty(t, val)
	})
}
