// Package registry maintains the catalog of known models and their
// routing characteristics. The catalog is the single source of truth for
// model capabilities, per-token costs, expected latency, and reliability,
// and feeds the router's scoring.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aicouncil/council/core"
)

// Provider identifies an upstream model provider.
type Provider string

const (
	ProviderGroq        Provider = "groq"
	ProviderTogether    Provider = "together"
	ProviderOpenRouter  Provider = "openrouter"
	ProviderHuggingFace Provider = "huggingface"
	ProviderGemini      Provider = "gemini"
	ProviderOpenAI      Provider = "openai"
	ProviderQwen        Provider = "qwen"
	ProviderOllama      Provider = "ollama"
)

// AllProviders lists every provider the catalog may reference.
var AllProviders = []Provider{
	ProviderGroq,
	ProviderTogether,
	ProviderOpenRouter,
	ProviderHuggingFace,
	ProviderGemini,
	ProviderOpenAI,
	ProviderQwen,
	ProviderOllama,
}

// TaskKind classifies the work a subtask asks of a model.
type TaskKind string

const (
	KindReasoning      TaskKind = "reasoning"
	KindResearch       TaskKind = "research"
	KindCodeGeneration TaskKind = "code_generation"
	KindCreativeOutput TaskKind = "creative_output"
	KindFactChecking   TaskKind = "fact_checking"
	KindDebugging      TaskKind = "debugging"
)

// ModelDescriptor describes a single model's routing characteristics.
type ModelDescriptor struct {
	ID                 string        `json:"id"`
	Provider           Provider      `json:"provider"`
	ModelName          string        `json:"model_name"`
	Kinds              []TaskKind    `json:"kinds"`
	CostPerInputToken  float64       `json:"cost_per_input_token"`
	CostPerOutputToken float64       `json:"cost_per_output_token"`
	AverageLatency     time.Duration `json:"average_latency"`
	MaxContext         int           `json:"max_context"`
	Reliability        float64       `json:"reliability"`
	LocalOnly          bool          `json:"local_only"`
}

// Supports reports whether the model can serve the given task kind.
func (d *ModelDescriptor) Supports(kind TaskKind) bool {
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// AverageCost returns the mean of input and output per-token cost, the
// figure the router's cost score is computed from.
func (d *ModelDescriptor) AverageCost() float64 {
	return (d.CostPerInputToken + d.CostPerOutputToken) / 2
}

// Registry is a thread-safe catalog of model descriptors.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*ModelDescriptor
	logger core.Logger
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		models: make(map[string]*ModelDescriptor),
		logger: &core.NoOpLogger{},
	}
}

// NewWithCatalog creates a registry preloaded with the built-in catalog
func NewWithCatalog() *Registry {
	r := New()
	for i := range builtinCatalog {
		// Register validates each entry; the built-in catalog must pass.
		if err := r.Register(&builtinCatalog[i]); err != nil {
			panic(fmt.Sprintf("builtin catalog entry %s: %v", builtinCatalog[i].ID, err))
		}
	}
	return r
}

// SetLogger configures the logger for this registry
func (r *Registry) SetLogger(logger core.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register adds or replaces a model descriptor after validation
func (r *Registry) Register(d *ModelDescriptor) error {
	if d.ID == "" {
		return fmt.Errorf("model id is required: %w", core.ErrInvalidConfiguration)
	}
	if d.Provider == "" {
		return fmt.Errorf("model %s: provider is required: %w", d.ID, core.ErrInvalidConfiguration)
	}
	if len(d.Kinds) == 0 {
		return fmt.Errorf("model %s: at least one task kind is required: %w", d.ID, core.ErrInvalidConfiguration)
	}
	if d.CostPerInputToken < 0 || d.CostPerOutputToken < 0 {
		return fmt.Errorf("model %s: costs must be non-negative: %w", d.ID, core.ErrInvalidConfiguration)
	}
	if d.Reliability < 0 || d.Reliability > 1 {
		return fmt.Errorf("model %s: reliability must be in [0,1]: %w", d.ID, core.ErrInvalidConfiguration)
	}
	if d.AverageLatency < 0 {
		return fmt.Errorf("model %s: latency must be non-negative: %w", d.ID, core.ErrInvalidConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[d.ID] = d

	r.logger.Debug("Model registered", map[string]interface{}{
		"operation": "registry_register",
		"model_id":  d.ID,
		"provider":  string(d.Provider),
		"kinds":     len(d.Kinds),
	})
	return nil
}

// Get returns the descriptor for a model id
func (r *Registry) Get(id string) (*ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[id]
	return d, ok
}

// ProviderOf returns the provider owning a model id
func (r *Registry) ProviderOf(id string) (Provider, bool) {
	d, ok := r.Get(id)
	if !ok {
		return "", false
	}
	return d.Provider, true
}

// All returns every descriptor sorted by model id
func (r *Registry) All() []*ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ModelDescriptor, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ModelsFor returns descriptors supporting a task kind, sorted by model id
func (r *Registry) ModelsFor(kind TaskKind) []*ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ModelDescriptor
	for _, d := range r.models {
		if d.Supports(kind) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ModelsByProvider returns descriptors owned by a provider, sorted by id
func (r *Registry) ModelsByProvider(p Provider) []*ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ModelDescriptor
	for _, d := range r.models {
		if d.Provider == p {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CheapestFor returns the cheapest model supporting a task kind, comparing
// input+output per-token cost. Ties break on the lexicographically
// smaller model id.
func (r *Registry) CheapestFor(kind TaskKind) (*ModelDescriptor, error) {
	return r.pick(kind, func(a, b *ModelDescriptor) bool {
		ca := a.CostPerInputToken + a.CostPerOutputToken
		cb := b.CostPerInputToken + b.CostPerOutputToken
		if ca != cb {
			return ca < cb
		}
		return a.ID < b.ID
	})
}

// FastestFor returns the lowest-latency model supporting a task kind
func (r *Registry) FastestFor(kind TaskKind) (*ModelDescriptor, error) {
	return r.pick(kind, func(a, b *ModelDescriptor) bool {
		if a.AverageLatency != b.AverageLatency {
			return a.AverageLatency < b.AverageLatency
		}
		return a.ID < b.ID
	})
}

// BestQualityFor returns the most reliable model supporting a task kind
func (r *Registry) BestQualityFor(kind TaskKind) (*ModelDescriptor, error) {
	return r.pick(kind, func(a, b *ModelDescriptor) bool {
		if a.Reliability != b.Reliability {
			return a.Reliability > b.Reliability
		}
		return a.ID < b.ID
	})
}

func (r *Registry) pick(kind TaskKind, less func(a, b *ModelDescriptor) bool) (*ModelDescriptor, error) {
	candidates := r.ModelsFor(kind)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("task kind %s: %w", kind, core.ErrNoCapableModel)
	}

	best := candidates[0]
	for _, d := range candidates[1:] {
		if less(d, best) {
			best = d
		}
	}
	return best, nil
}

// LocalModels returns descriptors that only run against a local endpoint
func (r *Registry) LocalModels() []*ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ModelDescriptor
	for _, d := range r.models {
		if d.LocalOnly {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsLocal reports whether a model id refers to a local-only model
func (r *Registry) IsLocal(id string) bool {
	d, ok := r.Get(id)
	return ok && d.LocalOnly
}
