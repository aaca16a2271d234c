package providers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
	"github.com/aicouncil/council/resilience"
)

// probeInvoker is a ProviderInvoker whose health probe is scripted.
type probeInvoker struct {
	provider registry.Provider
	probeErr error
	probes   atomic.Int64
}

func (m *probeInvoker) Provider() registry.Provider { return m.provider }

func (m *probeInvoker) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	return &InvokeResponse{Content: "ok"}, nil
}

func (m *probeInvoker) HealthProbe(ctx context.Context) error {
	m.probes.Add(1)
	return m.probeErr
}

func newTestChecker(t *testing.T, invs ...ProviderInvoker) (*HealthChecker, *resilience.Group) {
	t.Helper()
	set := &InvokerSet{invokers: make(map[registry.Provider]ProviderInvoker), logger: &core.NoOpLogger{}}
	for _, inv := range invs {
		set.Register(inv)
	}
	breakers := resilience.NewGroup(resilience.DefaultGroupConfig())
	return NewHealthChecker(set, breakers, core.NewMemoryStore(), nil), breakers
}

func TestHealthCheckHealthy(t *testing.T) {
	inv := &probeInvoker{provider: registry.ProviderGroq}
	checker, _ := newTestChecker(t, inv)

	status := checker.Check(context.Background(), registry.ProviderGroq, false)
	if status.Status != core.HealthHealthy {
		t.Errorf("status = %s, want healthy", status.Status)
	}
	if status.LastCheck.IsZero() {
		t.Error("last check not recorded")
	}
}

func TestHealthCheckCachesWithinTTL(t *testing.T) {
	inv := &probeInvoker{provider: registry.ProviderGroq}
	checker, _ := newTestChecker(t, inv)
	ctx := context.Background()

	checker.Check(ctx, registry.ProviderGroq, false)
	checker.Check(ctx, registry.ProviderGroq, false)
	checker.Check(ctx, registry.ProviderGroq, false)

	if got := inv.probes.Load(); got != 1 {
		t.Errorf("probes = %d, want 1 (cached)", got)
	}

	checker.Check(ctx, registry.ProviderGroq, true)
	if got := inv.probes.Load(); got != 2 {
		t.Errorf("probes = %d, want 2 after force refresh", got)
	}
}

func TestHealthCheckProbeFailure(t *testing.T) {
	inv := &probeInvoker{
		provider: registry.ProviderGemini,
		probeErr: NewInvokeError(registry.ProviderGemini, CategoryServer, 500, "upstream down"),
	}
	checker, _ := newTestChecker(t, inv)

	status := checker.Check(context.Background(), registry.ProviderGemini, false)
	if status.Status != core.HealthDown {
		t.Errorf("status = %s, want down", status.Status)
	}
	if status.Error == "" {
		t.Error("expected error detail")
	}
}

func TestHealthBreakerOverride(t *testing.T) {
	inv := &probeInvoker{provider: registry.ProviderGroq}
	checker, breakers := newTestChecker(t, inv)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		breakers.RecordFailure(registry.ProviderGroq)
	}

	status := checker.Check(ctx, registry.ProviderGroq, false)
	if status.Status != core.HealthDown {
		t.Errorf("status = %s, want down while breaker open", status.Status)
	}
	if status.Error != "circuit breaker open" {
		t.Errorf("error = %q", status.Error)
	}
	if inv.probes.Load() != 0 {
		t.Error("breaker-open providers must not be probed")
	}
	if checker.IsUsable(ctx, registry.ProviderGroq) {
		t.Error("breaker-open provider should not be usable")
	}
}

func TestHealthBreakerHalfOpenDegraded(t *testing.T) {
	inv := &probeInvoker{provider: registry.ProviderQwen}
	set := &InvokerSet{invokers: map[registry.Provider]ProviderInvoker{registry.ProviderQwen: inv}, logger: &core.NoOpLogger{}}
	breakers := resilience.NewGroup(resilience.GroupConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Millisecond,
	})
	checker := NewHealthChecker(set, breakers, core.NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		breakers.RecordFailure(registry.ProviderQwen)
	}
	time.Sleep(50 * time.Millisecond)
	if !breakers.IsAvailable(registry.ProviderQwen) {
		t.Fatal("expected probe admission")
	}

	status := checker.Check(ctx, registry.ProviderQwen, false)
	if status.Status != core.HealthDegraded {
		t.Errorf("status = %s, want degraded while half-open", status.Status)
	}
	// Degraded providers remain usable for routing
	if !checker.IsUsable(ctx, registry.ProviderQwen) {
		t.Error("half-open provider should remain usable")
	}
}

func TestHealthMarkDegraded(t *testing.T) {
	inv := &probeInvoker{provider: registry.ProviderGroq}
	checker, _ := newTestChecker(t, inv)
	ctx := context.Background()

	checker.MarkDegraded(ctx, registry.ProviderGroq, core.CodeProviderAuth)

	status := checker.Check(ctx, registry.ProviderGroq, false)
	if status.Status != core.HealthDegraded {
		t.Errorf("status = %s, want degraded", status.Status)
	}
	if status.Error != core.CodeProviderAuth {
		t.Errorf("error = %q, want %s", status.Error, core.CodeProviderAuth)
	}
	if inv.probes.Load() != 0 {
		t.Error("cached degraded verdict must be served without probing")
	}
	// Degraded providers remain routable
	if !checker.IsUsable(ctx, registry.ProviderGroq) {
		t.Error("degraded provider should remain usable")
	}

	// A forced refresh reprobes and can recover
	status = checker.Check(ctx, registry.ProviderGroq, true)
	if status.Status != core.HealthHealthy {
		t.Errorf("status after refresh = %s, want healthy", status.Status)
	}
}

func TestHealthCheckAll(t *testing.T) {
	groq := &probeInvoker{provider: registry.ProviderGroq}
	gemini := &probeInvoker{
		provider: registry.ProviderGemini,
		probeErr: NewInvokeError(registry.ProviderGemini, CategoryTransport, 0, "unreachable"),
	}
	checker, _ := newTestChecker(t, groq, gemini)

	results := checker.CheckAll(context.Background(), false)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[registry.ProviderGroq].Status != core.HealthHealthy {
		t.Error("groq should be healthy")
	}
	if results[registry.ProviderGemini].Status != core.HealthDown {
		t.Error("gemini should be down")
	}
}

func TestHealthUnknownProvider(t *testing.T) {
	checker, _ := newTestChecker(t)

	status := checker.Check(context.Background(), registry.ProviderOpenAI, false)
	if status.Status != core.HealthUnknown {
		t.Errorf("status = %s, want unknown for unconfigured provider", status.Status)
	}
	if checker.IsUsable(context.Background(), registry.ProviderOpenAI) {
		t.Error("unconfigured provider should not be usable")
	}
}
