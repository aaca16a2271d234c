// Package orchestration implements the council pipeline: a request is
// analyzed into subtasks, each subtask is routed to a model by weighted
// scoring, executed with bounded parallelism behind per-provider circuit
// breakers, conflicting answers are arbitrated, and the survivors are
// synthesized into one response. Progress streams through a per-request
// bounded event bus.
package orchestration

import (
	"context"
	"time"

	"github.com/aicouncil/council/registry"
)

// ExecutionMode selects the latency/quality tradeoff for a request.
type ExecutionMode string

const (
	// ModeFast favors latency: low parallelism, tight deadlines, the
	// fastest capable models
	ModeFast ExecutionMode = "fast"
	// ModeBalanced is the default tradeoff
	ModeBalanced ExecutionMode = "balanced"
	// ModeBestQuality favors answer quality: wide fan-out, generous
	// deadlines, the most reliable models, and cross-model arbitration
	ModeBestQuality ExecutionMode = "best_quality"
)

// Valid reports whether the mode is one of the three known modes
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeFast, ModeBalanced, ModeBestQuality:
		return true
	}
	return false
}

// ModeProfile bundles the per-mode execution limits.
type ModeProfile struct {
	// Parallelism bounds concurrent provider calls for one request
	Parallelism int
	// CallTimeout bounds a single provider invocation
	CallTimeout time.Duration
	// RequestDeadline bounds the whole request
	RequestDeadline time.Duration
	// FanOut is how many models answer each subtask (arbitration input)
	FanOut int
	// AccuracyRequirement is the default accuracy target for analysis
	AccuracyRequirement float64
}

// Profiles returns the per-mode limits table
func Profiles() map[ExecutionMode]ModeProfile {
	return map[ExecutionMode]ModeProfile{
		ModeFast: {
			Parallelism:         3,
			CallTimeout:         15 * time.Second,
			RequestDeadline:     30 * time.Second,
			FanOut:              1,
			AccuracyRequirement: 0.7,
		},
		ModeBalanced: {
			Parallelism:         5,
			CallTimeout:         30 * time.Second,
			RequestDeadline:     120 * time.Second,
			FanOut:              1,
			AccuracyRequirement: 0.8,
		},
		ModeBestQuality: {
			Parallelism:         7,
			CallTimeout:         60 * time.Second,
			RequestDeadline:     300 * time.Second,
			FanOut:              3,
			AccuracyRequirement: 0.95,
		},
	}
}

// ProfileFor returns the limits for a mode, falling back to balanced
func ProfileFor(mode ExecutionMode) ModeProfile {
	profiles := Profiles()
	if p, ok := profiles[mode]; ok {
		return p
	}
	return profiles[ModeBalanced]
}

// Analyzer decomposes a natural-language request into routable subtasks.
type Analyzer interface {
	Analyze(ctx context.Context, req *Request) (*Analysis, error)
}

// Router ranks capable models for each subtask.
type Router interface {
	Route(ctx context.Context, analysis *Analysis, mode ExecutionMode) (*RoutingPlan, error)
}

// Executor runs routed subtasks against providers with bounded
// parallelism, streaming lifecycle events to the sink.
type Executor interface {
	Execute(ctx context.Context, plan *RoutingPlan, mode ExecutionMode, sink ProgressSink) (*ExecutionReport, error)
}

// Arbiter resolves conflicting results for the same subtask.
type Arbiter interface {
	Arbitrate(ctx context.Context, report *ExecutionReport) (*ArbitrationOutcome, error)
}

// Synthesizer merges arbitrated subtask results into the final response.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *Request, outcome *ArbitrationOutcome) (*FinalResponse, error)
}

// ProgressSink receives ordered progress events for a request. Publish
// must not block the pipeline; implementations buffer and drop per the
// bus policy.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Publish(event ProgressEvent) {}

// CostRecorder persists per-provider cost aggregates for a finished
// request. Recording is fire-and-forget: failures are logged, never
// surfaced to the caller.
type CostRecorder interface {
	Record(ctx context.Context, requestID string, costs []ProviderCost) error
}

// Hooks observe pipeline milestones. All methods are optional; a nil
// hook field is skipped. Hooks run synchronously on the pipeline
// goroutine and must return quickly.
type Hooks struct {
	OnRoutingDecided   func(plan *RoutingPlan)
	OnSubtaskCompleted func(result *SubtaskResult)
	OnArbitrated       func(outcome *ArbitrationOutcome)
	OnSynthesized      func(resp *FinalResponse)
}

// OrchestratorConfig tunes the pipeline.
type OrchestratorConfig struct {
	// ParallelismOverride forces the worker bound for all modes when > 0
	ParallelismOverride int

	// AnalysisTimeout bounds the analysis phase
	AnalysisTimeout time.Duration

	// SynthesisTimeout bounds the synthesis phase
	SynthesisTimeout time.Duration

	// MaxFallbacks caps the fallback list per subtask
	MaxFallbacks int

	// EnableArbitration toggles conflict arbitration
	EnableArbitration bool

	// EnableSynthesis toggles final synthesis
	EnableSynthesis bool

	// EnableCostRecording toggles the fire-and-forget cost recorder
	EnableCostRecording bool

	// BusRetention keeps a finished request's progress bus subscribable
	// so consumers that attach after completion can replay the stream
	BusRetention time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		AnalysisTimeout:     10 * time.Second,
		SynthesisTimeout:    30 * time.Second,
		MaxFallbacks:        5,
		EnableArbitration:   true,
		EnableSynthesis:     true,
		EnableCostRecording: true,
		BusRetention:        30 * time.Second,
	}
}

// ProviderView is what routing needs to know about provider state. The
// health checker provides the production implementation.
type ProviderView interface {
	IsUsable(ctx context.Context, p registry.Provider) bool
}

// ProviderDegrader flags a provider whose credentials or requests are
// being rejected, so health reporting reflects it without opening the
// breaker. The health checker provides the production implementation.
type ProviderDegrader interface {
	MarkDegraded(ctx context.Context, p registry.Provider, reason string)
}

// usableFunc adapts a function to ProviderView
type usableFunc func(ctx context.Context, p registry.Provider) bool

func (f usableFunc) IsUsable(ctx context.Context, p registry.Provider) bool { return f(ctx, p) }

// AllUsable is a ProviderView that reports every provider usable,
// for tests and single-provider deployments.
var AllUsable ProviderView = usableFunc(func(context.Context, registry.Provider) bool { return true })
