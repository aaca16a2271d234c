package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

var testModel = &registry.ModelDescriptor{
	ID:                 "groq-llama3-70b",
	Provider:           registry.ProviderGroq,
	ModelName:          "llama3-70b-8192",
	Kinds:              []registry.TaskKind{registry.KindReasoning},
	CostPerInputToken:  0.00000059,
	CostPerOutputToken: 0.00000079,
	Reliability:        0.95,
}

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCategory
	}{
		{401, CategoryAuth},
		{403, CategoryAuth},
		{429, CategoryRateLimited},
		{400, CategoryBadRequest},
		{404, CategoryBadRequest},
		{422, CategoryBadRequest},
		{500, CategoryServer},
		{502, CategoryServer},
		{503, CategoryServer},
		{418, CategoryUnknown},
	}

	for _, tt := range tests {
		if got := CategorizeStatus(tt.status); got != tt.want {
			t.Errorf("CategorizeStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestInvokeErrorSentinels(t *testing.T) {
	tests := []struct {
		cat      ErrorCategory
		sentinel error
		counts   bool
	}{
		{CategoryAuth, core.ErrProviderAuth, false},
		{CategoryRateLimited, core.ErrProviderRateLimited, true},
		{CategoryTransport, core.ErrProviderTransport, true},
		{CategoryServer, core.ErrProviderServer, true},
		{CategoryTimeout, core.ErrTimeout, true},
		{CategoryBadRequest, core.ErrProviderBadRequest, false},
	}

	for _, tt := range tests {
		err := NewInvokeError(registry.ProviderGroq, tt.cat, 0, "test")
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("category %s: expected errors.Is(%v)", tt.cat, tt.sentinel)
		}
		if err.CountsAsBreakerFailure() != tt.counts {
			t.Errorf("category %s: CountsAsBreakerFailure = %v, want %v", tt.cat, err.CountsAsBreakerFailure(), tt.counts)
		}
		if core.IsBreakerFailure(err) != tt.counts {
			t.Errorf("category %s: core.IsBreakerFailure disagrees with category", tt.cat)
		}
	}
}

func TestOpenAICompatInvokeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "llama3-70b-8192",
			"choices": [{"message": {"content": "The answer is 42."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18}
		}`))
	}))
	defer server.Close()

	inv, err := NewOpenAICompatInvoker(registry.ProviderGroq, "test-key", server.URL, nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatInvoker: %v", err)
	}

	resp, err := inv.Invoke(context.Background(), &InvokeRequest{
		Model:  testModel,
		Prompt: "What is the answer?",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != "The answer is 42." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 6 {
		t.Errorf("tokens = %d/%d, want 12/6", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Latency <= 0 {
		t.Error("latency not recorded")
	}
}

func TestOpenAICompatInvokeErrorCategories(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category ErrorCategory
	}{
		{"rate limited", 429, CategoryRateLimited},
		{"auth", 401, CategoryAuth},
		{"server", 500, CategoryServer},
		{"bad request", 400, CategoryBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			inv, _ := NewOpenAICompatInvoker(registry.ProviderGroq, "test-key", server.URL, nil)
			_, err := inv.Invoke(context.Background(), &InvokeRequest{Model: testModel, Prompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}

			var ie *InvokeError
			if !errors.As(err, &ie) {
				t.Fatalf("expected InvokeError, got %T", err)
			}
			if ie.Category != tt.category {
				t.Errorf("category = %s, want %s", ie.Category, tt.category)
			}
			if ie.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", ie.StatusCode, tt.status)
			}
		})
	}
}

func TestOpenAICompatInvokeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	inv, _ := NewOpenAICompatInvoker(registry.ProviderGroq, "test-key", server.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, &InvokeRequest{Model: testModel, Prompt: "hi"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var ie *InvokeError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvokeError, got %T", err)
	}
	if ie.Category != CategoryTimeout {
		t.Errorf("category = %s, want timeout", ie.Category)
	}
	if !errors.Is(err, core.ErrTimeout) {
		t.Error("expected wrapped ErrTimeout")
	}
}

func TestOpenAICompatMissingKey(t *testing.T) {
	inv, _ := NewOpenAICompatInvoker(registry.ProviderGroq, "", "http://unused", nil)
	_, err := inv.Invoke(context.Background(), &InvokeRequest{Model: testModel, Prompt: "hi"})
	if !errors.Is(err, core.ErrProviderAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestOpenAICompatEstimatesTokensWhenUsageMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": "a response of some length"}}]}`))
	}))
	defer server.Close()

	inv, _ := NewOpenAICompatInvoker(registry.ProviderOpenRouter, "test-key", server.URL, nil)
	resp, err := inv.Invoke(context.Background(), &InvokeRequest{Model: testModel, Prompt: "a prompt of some length"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.InputTokens == 0 || resp.OutputTokens == 0 {
		t.Errorf("expected estimated tokens, got %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"model": "mistral", "response": "local answer", "prompt_eval_count": 10, "eval_count": 4}`))
	}))
	defer server.Close()

	inv := NewOllamaInvoker(server.URL, nil)
	model := &registry.ModelDescriptor{
		ID: "ollama-mistral-7b", Provider: registry.ProviderOllama, ModelName: "mistral",
		Kinds: []registry.TaskKind{registry.KindReasoning}, Reliability: 0.87, LocalOnly: true,
	}

	resp, err := inv.Invoke(context.Background(), &InvokeRequest{Model: model, Prompt: "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != "local answer" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 10/4", resp.InputTokens, resp.OutputTokens)
	}
}

func TestGeminiInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "gem-key" {
			t.Errorf("missing key query param")
		}
		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "gemini answer"}]}}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 3}
		}`))
	}))
	defer server.Close()

	inv := NewGeminiInvoker("gem-key", server.URL, nil)
	model := &registry.ModelDescriptor{
		ID: "gemini-pro", Provider: registry.ProviderGemini, ModelName: "gemini-pro",
		Kinds: []registry.TaskKind{registry.KindReasoning}, Reliability: 0.92,
	}

	resp, err := inv.Invoke(context.Background(), &InvokeRequest{Model: model, Prompt: "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != "gemini answer" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.InputTokens != 8 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 8/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestHuggingFaceColdModelIsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	inv := NewHuggingFaceInvoker("hf-token", server.URL, nil)
	model := &registry.ModelDescriptor{
		ID: "huggingface-mistral-7b", Provider: registry.ProviderHuggingFace,
		ModelName: "mistralai/Mistral-7B-Instruct-v0.2",
		Kinds:     []registry.TaskKind{registry.KindReasoning}, Reliability: 0.85,
	}

	_, err := inv.Invoke(context.Background(), &InvokeRequest{Model: model, Prompt: "hi"})
	var ie *InvokeError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvokeError, got %T", err)
	}
	if ie.Category != CategoryRateLimited {
		t.Errorf("category = %s, want rate_limited", ie.Category)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d, want 0", got)
	}
	if got := EstimateTokens("ab"); got != 1 {
		t.Errorf("EstimateTokens(short) = %d, want 1", got)
	}
	if got := EstimateTokens("12345678"); got != 2 {
		t.Errorf("EstimateTokens(8 chars) = %d, want 2", got)
	}
}
