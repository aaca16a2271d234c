package providers

import (
	"sync"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// InvokerSet holds one invoker per configured provider.
type InvokerSet struct {
	mu       sync.RWMutex
	invokers map[registry.Provider]ProviderInvoker
	logger   core.Logger
}

// NewInvokerSet builds invokers for every provider the oracle reports as
// configured. Providers without credentials get no invoker and are
// invisible to routing.
func NewInvokerSet(oracle *Oracle, logger core.Logger) *InvokerSet {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	s := &InvokerSet{
		invokers: make(map[registry.Provider]ProviderInvoker),
		logger:   logger,
	}

	for _, p := range oracle.Configured() {
		inv, err := buildInvoker(p, oracle, logger)
		if err != nil {
			logger.Warn("Skipping provider", map[string]interface{}{
				"operation": "invoker_build",
				"provider":  string(p),
				"error":     err.Error(),
			})
			continue
		}
		s.invokers[p] = inv
	}

	logger.Info("Provider invokers initialized", map[string]interface{}{
		"operation": "invoker_build",
		"count":     len(s.invokers),
	})
	return s
}

func buildInvoker(p registry.Provider, oracle *Oracle, logger core.Logger) (ProviderInvoker, error) {
	switch p {
	case registry.ProviderOllama:
		return NewOllamaInvoker(oracle.Endpoint(p), logger), nil
	case registry.ProviderGemini:
		return NewGeminiInvoker(oracle.Credential(p), "", logger), nil
	case registry.ProviderHuggingFace:
		return NewHuggingFaceInvoker(oracle.Credential(p), "", logger), nil
	default:
		return NewOpenAICompatInvoker(p, oracle.Credential(p), "", logger)
	}
}

// Register adds or replaces an invoker (tests substitute mocks here)
func (s *InvokerSet) Register(inv ProviderInvoker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invokers[inv.Provider()] = inv
}

// Get returns the invoker for a provider
func (s *InvokerSet) Get(p registry.Provider) (ProviderInvoker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invokers[p]
	return inv, ok
}

// Providers returns the configured providers in registry order
func (s *InvokerSet) Providers() []registry.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []registry.Provider
	for _, p := range registry.AllProviders {
		if _, ok := s.invokers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
