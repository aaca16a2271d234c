package providers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
	"github.com/aicouncil/council/resilience"
)

// HealthStatus is one provider's cached health verdict.
type HealthStatus struct {
	Provider     registry.Provider `json:"provider"`
	Status       core.HealthState  `json:"status"`
	LastCheck    time.Time         `json:"last_check"`
	ResponseTime time.Duration     `json:"response_time"`
	Error        string            `json:"error,omitempty"`
}

// HealthChecker probes provider endpoints and caches the results. The
// breaker's view overrides probe results: an open breaker means down
// regardless of what a probe would say, and a half-open breaker means
// degraded.
type HealthChecker struct {
	invokers     *InvokerSet
	breakers     *resilience.Group
	cache        core.Memory
	ttl          time.Duration
	probeTimeout time.Duration
	logger       core.Logger
}

// NewHealthChecker creates a checker over the given invokers and cache
func NewHealthChecker(invokers *InvokerSet, breakers *resilience.Group, cache core.Memory, logger core.Logger) *HealthChecker {
	if cache == nil {
		cache = core.NewMemoryStore()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &HealthChecker{
		invokers:     invokers,
		breakers:     breakers,
		cache:        cache,
		ttl:          core.HealthCacheTTL,
		probeTimeout: core.HealthProbeTimeout,
		logger:       logger,
	}
}

func healthCacheKey(p registry.Provider) string {
	return "health:" + string(p)
}

// Check returns the provider's health, serving from cache while fresh.
// forceRefresh bypasses the cache.
func (h *HealthChecker) Check(ctx context.Context, p registry.Provider, forceRefresh bool) HealthStatus {
	// Breaker state overrides everything else
	if h.breakers != nil {
		switch h.breakers.State(p) {
		case resilience.StateOpen:
			return HealthStatus{
				Provider:  p,
				Status:    core.HealthDown,
				LastCheck: time.Now(),
				Error:     "circuit breaker open",
			}
		case resilience.StateHalfOpen:
			return HealthStatus{
				Provider:  p,
				Status:    core.HealthDegraded,
				LastCheck: time.Now(),
				Error:     "circuit breaker testing recovery",
			}
		}
	}

	if !forceRefresh {
		if cached, ok := h.fromCache(ctx, p); ok {
			return cached
		}
	}

	status := h.probe(ctx, p)
	h.toCache(ctx, status)
	return status
}

func (h *HealthChecker) fromCache(ctx context.Context, p registry.Provider) (HealthStatus, bool) {
	raw, err := h.cache.Get(ctx, healthCacheKey(p))
	if err != nil || raw == "" {
		return HealthStatus{}, false
	}
	var status HealthStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return HealthStatus{}, false
	}
	return status, true
}

func (h *HealthChecker) toCache(ctx context.Context, status HealthStatus) {
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, healthCacheKey(status.Provider), string(raw), h.ttl); err != nil {
		h.logger.Warn("Failed to cache health status", map[string]interface{}{
			"operation": "health_cache",
			"provider":  string(status.Provider),
			"error":     err.Error(),
		})
	}
}

func (h *HealthChecker) probe(ctx context.Context, p registry.Provider) HealthStatus {
	inv, ok := h.invokers.Get(p)
	if !ok {
		return HealthStatus{
			Provider:  p,
			Status:    core.HealthUnknown,
			LastCheck: time.Now(),
			Error:     "provider not configured",
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	startTime := time.Now()
	err := inv.HealthProbe(probeCtx)
	elapsed := time.Since(startTime)

	status := HealthStatus{
		Provider:     p,
		Status:       core.HealthHealthy,
		LastCheck:    time.Now(),
		ResponseTime: elapsed,
	}
	if err != nil {
		status.Status = core.HealthDown
		status.Error = err.Error()
		h.logger.Warn("Provider health probe failed", map[string]interface{}{
			"operation": "health_probe",
			"provider":  string(p),
			"error":     err.Error(),
			"elapsed":   elapsed.String(),
		})
	} else {
		h.logger.Debug("Provider health probe succeeded", map[string]interface{}{
			"operation": "health_probe",
			"provider":  string(p),
			"elapsed":   elapsed.String(),
		})
	}
	return status
}

// CheckAll probes every configured provider concurrently
func (h *HealthChecker) CheckAll(ctx context.Context, forceRefresh bool) map[registry.Provider]HealthStatus {
	providers := h.invokers.Providers()
	results := make(map[registry.Provider]HealthStatus, len(providers))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p registry.Provider) {
			defer wg.Done()
			status := h.Check(ctx, p, forceRefresh)
			mu.Lock()
			results[p] = status
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results
}

// MarkDegraded records a degraded verdict for a provider whose
// credentials or requests are being rejected. The verdict lives in the
// cache for the usual TTL; breaker state still overrides it.
func (h *HealthChecker) MarkDegraded(ctx context.Context, p registry.Provider, reason string) {
	h.toCache(ctx, HealthStatus{
		Provider:  p,
		Status:    core.HealthDegraded,
		LastCheck: time.Now(),
		Error:     reason,
	})
	h.logger.Warn("Provider marked degraded", map[string]interface{}{
		"operation": "health_degrade",
		"provider":  string(p),
		"reason":    reason,
	})
}

// IsUsable reports whether routing should consider the provider at all:
// configured, breaker not open, and health not down.
func (h *HealthChecker) IsUsable(ctx context.Context, p registry.Provider) bool {
	if _, ok := h.invokers.Get(p); !ok {
		return false
	}
	status := h.Check(ctx, p, false)
	return status.Status != core.HealthDown
}
