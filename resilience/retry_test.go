package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	}

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		if attempts < 3 {
			return core.ErrProviderTransport
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	config := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		return fmt.Errorf("key rejected: %w", core.ErrProviderAuth)
	})

	if !errors.Is(err, core.ErrProviderAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on auth failure)", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	config := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		return core.ErrProviderServer
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, core.ErrProviderServer) {
		t.Errorf("expected wrapped server error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return core.ErrProviderServer
	})
	if !errors.Is(err, core.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestRetryWithBreakerRecordsOutcomes(t *testing.T) {
	g := testGroup(time.Hour)
	p := registry.ProviderGroq
	config := &RetryConfig{MaxAttempts: 6, InitialDelay: time.Millisecond}

	err := RetryWithBreaker(context.Background(), config, g, p, func() error {
		return core.ErrProviderServer
	})
	if err == nil {
		t.Fatal("expected failure")
	}

	// Five counted failures within the retry loop open the breaker; the
	// sixth attempt is rejected by the breaker itself.
	if g.State(p) != StateOpen {
		t.Errorf("state = %s, want open", g.State(p))
	}

	err = RetryWithBreaker(context.Background(), &RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond}, g, p, func() error {
		t.Fatal("call should not reach provider while breaker is open")
		return nil
	})
	if !errors.Is(err, core.ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestRetryWithBreakerSkipsAuthFailures(t *testing.T) {
	g := testGroup(time.Hour)
	p := registry.ProviderOpenAI
	config := &RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond}

	for i := 0; i < 10; i++ {
		RetryWithBreaker(context.Background(), config, g, p, func() error {
			return core.ErrProviderAuth
		})
	}

	// Auth failures never count against the breaker
	if g.State(p) != StateClosed {
		t.Errorf("state = %s, want closed", g.State(p))
	}
	if stats := g.GetStats(p); stats.TotalFailures != 0 {
		t.Errorf("counted failures = %d, want 0", stats.TotalFailures)
	}
}
