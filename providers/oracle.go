package providers

import (
	"os"
	"sync"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// DefaultOllamaEndpoint is the fallback for invokers constructed
// without an explicit endpoint.
const DefaultOllamaEndpoint = "http://localhost:11434"

// credentialEnvVars maps each provider to its credential environment
// variable. Ollama is local and keyed by endpoint instead.
var credentialEnvVars = map[registry.Provider]string{
	registry.ProviderGroq:        "GROQ_API_KEY",
	registry.ProviderTogether:    "TOGETHER_API_KEY",
	registry.ProviderOpenRouter:  "OPENROUTER_API_KEY",
	registry.ProviderHuggingFace: "HUGGINGFACE_TOKEN",
	registry.ProviderGemini:      "GEMINI_API_KEY",
	registry.ProviderOpenAI:      "OPENAI_API_KEY",
	registry.ProviderQwen:        "QWEN_API_KEY",
}

// Oracle answers which providers are configured in this environment.
// Configuration is read once; ForceRefresh rereads the environment.
type Oracle struct {
	mu          sync.RWMutex
	credentials map[registry.Provider]string
	endpoint    string
	logger      core.Logger
}

// NewOracle reads provider configuration from the environment
func NewOracle(logger core.Logger) *Oracle {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	o := &Oracle{logger: logger}
	o.refresh()
	return o
}

func (o *Oracle) refresh() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.credentials = make(map[registry.Provider]string)
	for p, envVar := range credentialEnvVars {
		if v := os.Getenv(envVar); v != "" {
			o.credentials[p] = v
		}
	}

	o.endpoint = os.Getenv("OLLAMA_ENDPOINT")

	o.logger.Info("Provider environment detected", map[string]interface{}{
		"operation":            "oracle_refresh",
		"configured_providers": len(o.credentials),
		"ollama_endpoint":      o.endpoint,
	})
}

// ForceRefresh rereads the environment
func (o *Oracle) ForceRefresh() {
	o.refresh()
}

// IsConfigured reports whether a provider has its credential set.
// Ollama carries no credential and is configured only when
// OLLAMA_ENDPOINT names the local daemon; reachability is the health
// checker's concern.
func (o *Oracle) IsConfigured(p registry.Provider) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if p == registry.ProviderOllama {
		return o.endpoint != ""
	}
	_, ok := o.credentials[p]
	return ok
}

// Credential returns the provider's API key, or empty if unset
func (o *Oracle) Credential(p registry.Provider) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.credentials[p]
}

// Endpoint returns the local provider's base URL
func (o *Oracle) Endpoint(p registry.Provider) string {
	if p != registry.ProviderOllama {
		return ""
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.endpoint
}

// Configured returns every configured provider in registry order
func (o *Oracle) Configured() []registry.Provider {
	var out []registry.Provider
	for _, p := range registry.AllProviders {
		if o.IsConfigured(p) {
			out = append(out, p)
		}
	}
	return out
}
