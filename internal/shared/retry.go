package shared

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"friendly_eats/internal/domain"
)

const (
	DefaultMaxAttempts  = 8
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
	maxDelay            = 500 * time.Millisecond
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	onConflict   func(attempt int, err error)
}

// RetryOption configures RetryOnConflict.
type RetryOption func(*retryConfig) error

// RetryOnConflict runs fn until it stops failing with domain.ErrConflict.
// Delays grow as baseDelay * 2^(attempt-1), capped at maxDelay, plus
// jitter. Any other error is returned unchanged. When every attempt
// conflicted the returned error wraps both domain.ErrTransaction and the
// last conflict.
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error, options ...RetryOption) error {
	cfg := &retryConfig{
		maxAttempts:  DefaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, o := range options {
		if err := o(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := maxDelay
			if attempt < 16 {
				delay = min(cfg.baseDelay*time.Duration(1<<(attempt-1)), maxDelay)
			}
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only
			t := time.NewTimer(delay + time.Duration(jitter))
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, domain.ErrConflict) {
			return lastErr
		}
		if cfg.onConflict != nil {
			cfg.onConflict(attempt+1, lastErr)
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %w", domain.ErrTransaction, cfg.maxAttempts, lastErr)
}

func WithMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = n
		return nil
	}
}

// WithBaseDelay sets the first backoff; later ones double it.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) error {
		if d < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = d
		return nil
	}
}

func WithJitterFactor(f float64) RetryOption {
	return func(c *retryConfig) error {
		if f < 0 || f > 1 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = f
		return nil
	}
}

// OnConflict registers a hook called after each conflicting attempt.
func OnConflict(fn func(attempt int, err error)) RetryOption {
	return func(c *retryConfig) error {
		c.onConflict = fn
		return nil
	}
}
