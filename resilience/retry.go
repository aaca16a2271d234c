package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry executes a function with exponential backoff. Non-retryable
// errors (see core.IsRetryable) abort immediately.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted: %w", core.ErrCancelled)
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		// Jitter prevents synchronized retries across clients
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			delay += jitter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted: %w", core.ErrCancelled)
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// RetryWithBreaker combines retry logic with a provider's circuit
// breaker. Breaker-open short-circuits without consuming an attempt
// against the provider; only counted failures are recorded.
func RetryWithBreaker(ctx context.Context, config *RetryConfig, group *Group, p registry.Provider, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !group.IsAvailable(p) {
			return fmt.Errorf("provider %s: %w", p, core.ErrBreakerOpen)
		}

		err := fn()
		if err != nil {
			if core.IsBreakerFailure(err) {
				group.RecordFailure(p)
			}
			return err
		}

		group.RecordSuccess(p)
		return nil
	})
}
