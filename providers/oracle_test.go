package providers

import (
	"testing"

	"github.com/aicouncil/council/registry"
)

func TestOracleReadsCredentials(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("GEMINI_API_KEY", "gem-test")
	t.Setenv("OPENAI_API_KEY", "")

	oracle := NewOracle(nil)

	if !oracle.IsConfigured(registry.ProviderGroq) {
		t.Error("groq should be configured")
	}
	if oracle.Credential(registry.ProviderGroq) != "gsk-test" {
		t.Errorf("groq credential = %q", oracle.Credential(registry.ProviderGroq))
	}
	if !oracle.IsConfigured(registry.ProviderGemini) {
		t.Error("gemini should be configured")
	}
	if oracle.IsConfigured(registry.ProviderOpenAI) {
		t.Error("openai should not be configured")
	}
}

func TestOracleOllamaRequiresEndpoint(t *testing.T) {
	t.Setenv("OLLAMA_ENDPOINT", "")

	oracle := NewOracle(nil)
	if oracle.IsConfigured(registry.ProviderOllama) {
		t.Error("ollama should not be configured without OLLAMA_ENDPOINT")
	}
	if oracle.Endpoint(registry.ProviderOllama) != "" {
		t.Errorf("endpoint = %q, want empty", oracle.Endpoint(registry.ProviderOllama))
	}
}

func TestOracleOllamaEndpoint(t *testing.T) {
	t.Setenv("OLLAMA_ENDPOINT", "http://gpu-box:11434")

	oracle := NewOracle(nil)
	if !oracle.IsConfigured(registry.ProviderOllama) {
		t.Error("ollama should be configured when the endpoint is set")
	}
	if got := oracle.Endpoint(registry.ProviderOllama); got != "http://gpu-box:11434" {
		t.Errorf("endpoint = %q", got)
	}
	if oracle.Endpoint(registry.ProviderGroq) != "" {
		t.Error("only ollama has an endpoint")
	}
}

func TestOracleForceRefresh(t *testing.T) {
	t.Setenv("QWEN_API_KEY", "")
	oracle := NewOracle(nil)
	if oracle.IsConfigured(registry.ProviderQwen) {
		t.Fatal("qwen should start unconfigured")
	}

	t.Setenv("QWEN_API_KEY", "qw-test")
	oracle.ForceRefresh()
	if !oracle.IsConfigured(registry.ProviderQwen) {
		t.Error("qwen should be configured after refresh")
	}
}

func TestOracleConfiguredOrder(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "a")
	t.Setenv("OPENAI_API_KEY", "b")
	t.Setenv("OLLAMA_ENDPOINT", "http://localhost:11434")

	oracle := NewOracle(nil)
	configured := oracle.Configured()

	// Deterministic registry order
	foundOllama := false
	for _, p := range configured {
		if p == registry.ProviderOllama {
			foundOllama = true
		}
	}
	if !foundOllama {
		t.Error("configured list should include ollama when its endpoint is set")
	}
	if len(configured) < 3 {
		t.Errorf("configured = %v, want at least groq, openai, ollama", configured)
	}
}
