// Package retry provides a generic exponential-backoff executor used by the
// delivery layer. Backoff for attempt i (0-indexed) is
// min(MaxDelay, BaseDelay * 2^i) plus up to 100ms of random jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config controls retry behavior. The zero value is invalid; use Default()
// or set the fields explicitly.
type Config struct {
	// MaxAttempts is the total number of invocations (first try included).
	MaxAttempts int
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// ShouldRetry decides whether err at attempt (0-indexed) is worth
	// another try. Nil means retry every failure.
	ShouldRetry func(err error, attempt int) bool
	// Label names the operation in the final error for correlation.
	Label string
}

// Default returns the delivery-path defaults: 3 attempts, 1s base, 30s cap.
func Default() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

const maxJitter = 100 * time.Millisecond

// Validate checks the configuration contract. Violations surface before any
// attempt is made.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("retry: MaxAttempts must be >= 1")
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return errors.New("retry: delays must be non-negative")
	}
	if c.MaxDelay < c.BaseDelay {
		return errors.New("retry: MaxDelay must be >= BaseDelay")
	}
	return nil
}

// Delay returns the backoff before the next try after attempt (0-indexed),
// jitter excluded. Exposed for tests and for callers reporting wait bounds.
func (c Config) Delay(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Do runs fn up to cfg.MaxAttempts times, sleeping between tries with
// exponential backoff and jitter. It stops early when fn succeeds, when
// ShouldRetry declines, or when ctx is done during a backoff sleep. The
// final failure wraps the last error, annotated with the attempts made.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	name := cfg.Label
	if name == "" {
		name = "retry"
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr, attempt) {
			return fmt.Errorf("%s: %w (after %d attempts)", name, lastErr, attempt+1)
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.Delay(attempt) + time.Duration(rand.Int63n(int64(maxJitter)))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (after %d attempts)", name, ctx.Err(), attempt+1)
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s: %w (after %d attempts)", name, lastErr, cfg.MaxAttempts)
}
