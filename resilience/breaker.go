// Package resilience protects upstream providers from being hammered
// while they are failing. Each provider gets an independent three-state
// circuit breaker; the group also picks healthy fallback providers when
// a primary is unavailable.
package resilience

import (
	"sync"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// State represents the current state of a provider's circuit breaker
type State int

const (
	// StateClosed allows all requests through (normal operation)
	StateClosed State = iota
	// StateOpen blocks all requests (failing fast)
	StateOpen
	// StateHalfOpen allows a single probe request to test recovery
	StateHalfOpen
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// GroupConfig configures every breaker in a group
type GroupConfig struct {
	// FailureThreshold is the number of consecutive counted failures
	// that opens a breaker
	FailureThreshold int

	// RecoveryTimeout is how long an opened breaker waits before
	// admitting a probe
	RecoveryTimeout time.Duration

	// MaxRecoveryTimeout caps the doubling applied after failed probes
	MaxRecoveryTimeout time.Duration

	Logger    core.Logger
	Telemetry core.Telemetry
}

// DefaultGroupConfig returns the production defaults
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		FailureThreshold:   5,
		RecoveryTimeout:    60 * time.Second,
		MaxRecoveryTimeout: 10 * time.Minute,
	}
}

// Stats is a snapshot of one breaker's counters
type Stats struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalSuccesses      int64     `json:"total_successes"`
	TotalFailures       int64     `json:"total_failures"`
	TimesOpened         int64     `json:"times_opened"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	CurrentTimeout      string    `json:"current_timeout"`
}

type breaker struct {
	state               State
	consecutiveFailures int
	totalSuccesses      int64
	totalFailures       int64
	timesOpened         int64
	openedAt            time.Time
	currentTimeout      time.Duration
	probeInFlight       bool
}

// Group holds one circuit breaker per provider. All methods are safe for
// concurrent use; each provider's record is guarded by the group mutex,
// which is never held across provider calls.
type Group struct {
	mu       sync.Mutex
	breakers map[registry.Provider]*breaker
	config   GroupConfig
	logger   core.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewGroup creates a breaker group with the given configuration
func NewGroup(config GroupConfig) *Group {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.MaxRecoveryTimeout <= 0 {
		config.MaxRecoveryTimeout = 10 * time.Minute
	}
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Group{
		breakers: make(map[registry.Provider]*breaker),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// SetLogger configures the logger for this group
func (g *Group) SetLogger(logger core.Logger) {
	if logger != nil {
		g.mu.Lock()
		g.logger = logger
		g.mu.Unlock()
	}
}

func (g *Group) get(p registry.Provider) *breaker {
	b, ok := g.breakers[p]
	if !ok {
		b = &breaker{
			state:          StateClosed,
			currentTimeout: g.config.RecoveryTimeout,
		}
		g.breakers[p] = b
	}
	return b
}

// IsAvailable reports whether a request may be sent to the provider.
// In the open state it transitions to half-open once the recovery timeout
// has elapsed; in the half-open state it admits exactly one probe, so a
// true return claims the probe slot and the caller must follow up with
// RecordSuccess or RecordFailure.
func (g *Group) IsAvailable(p registry.Provider) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(p)
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if g.now().Sub(b.openedAt) >= b.currentTimeout {
			b.state = StateHalfOpen
			b.probeInFlight = true
			g.logger.Info("Circuit breaker transitioned to half-open", map[string]interface{}{
				"operation": "breaker_transition",
				"provider":  string(p),
				"from":      StateOpen.String(),
				"to":        StateHalfOpen.String(),
			})
			return true
		}
		return false
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful provider call
func (g *Group) RecordSuccess(p registry.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(p)
	b.totalSuccesses++
	b.consecutiveFailures = 0

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probeInFlight = false
		b.currentTimeout = g.config.RecoveryTimeout
		g.logger.Info("Circuit breaker closed after successful probe", map[string]interface{}{
			"operation": "breaker_transition",
			"provider":  string(p),
			"from":      StateHalfOpen.String(),
			"to":        StateClosed.String(),
		})
	}
}

// RecordFailure records a counted provider failure. Callers are expected
// to filter with core.IsBreakerFailure first; auth and bad-request errors
// must not reach here.
func (g *Group) RecordFailure(p registry.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(p)
	b.totalFailures++
	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= g.config.FailureThreshold {
			g.open(p, b)
		}
	case StateHalfOpen:
		// Failed probe: reopen with a doubled timeout, capped
		b.probeInFlight = false
		b.currentTimeout *= 2
		if b.currentTimeout > g.config.MaxRecoveryTimeout {
			b.currentTimeout = g.config.MaxRecoveryTimeout
		}
		g.open(p, b)
	}
}

func (g *Group) open(p registry.Provider, b *breaker) {
	from := b.state
	b.state = StateOpen
	b.openedAt = g.now()
	b.timesOpened++
	g.logger.Warn("Circuit breaker opened", map[string]interface{}{
		"operation":            "breaker_transition",
		"provider":             string(p),
		"from":                 from.String(),
		"to":                   StateOpen.String(),
		"consecutive_failures": b.consecutiveFailures,
		"recovery_timeout":     b.currentTimeout.String(),
	})
}

// ReleaseProbe returns an unused half-open probe slot without recording
// an outcome. Callers use it when a claimed probe ended in a failure
// that does not count against the breaker, such as an auth error.
func (g *Group) ReleaseProbe(p registry.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(p)
	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}
}

// State returns the provider's current breaker state without side effects
func (g *Group) State(p registry.Provider) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.get(p).state
}

// GetStats returns a snapshot of the provider's breaker counters
func (g *Group) GetStats(p registry.Provider) Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(p)
	return Stats{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		TotalSuccesses:      b.totalSuccesses,
		TotalFailures:       b.totalFailures,
		TimesOpened:         b.timesOpened,
		OpenedAt:            b.openedAt,
		CurrentTimeout:      b.currentTimeout.String(),
	}
}

// Reset returns the provider's breaker to a pristine closed state
func (g *Group) Reset(p registry.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.breakers[p] = &breaker{
		state:          StateClosed,
		currentTimeout: g.config.RecoveryTimeout,
	}
	g.logger.Info("Circuit breaker reset", map[string]interface{}{
		"operation": "breaker_reset",
		"provider":  string(p),
	})
}

// FallbackCandidate returns the first alternative provider whose breaker
// admits a request, preserving the order of alternatives. The returned
// bool is false when no alternative is available.
func (g *Group) FallbackCandidate(primary registry.Provider, alternatives []registry.Provider) (registry.Provider, bool) {
	for _, alt := range alternatives {
		if alt == primary {
			continue
		}
		if g.IsAvailable(alt) {
			return alt, true
		}
	}
	return "", false
}
