package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// OllamaInvoker talks to a local Ollama daemon. It carries no credential;
// availability is purely a reachability question.
type OllamaInvoker struct {
	endpoint   string
	httpClient *http.Client
	logger     core.Logger
}

// NewOllamaInvoker creates an invoker for the local endpoint
func NewOllamaInvoker(endpoint string, logger core.Logger) *OllamaInvoker {
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &OllamaInvoker{
		endpoint:   endpoint,
		httpClient: newHTTPClient(),
		logger:     logger,
	}
}

// Provider identifies the upstream
func (c *OllamaInvoker) Provider() registry.Provider {
	return registry.ProviderOllama
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Invoke sends the prompt through /api/generate
func (c *OllamaInvoker) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	body := ollamaGenerateRequest{
		Model:  req.Model.ModelName,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderOllama, CategoryUnknown, 0, fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, NewInvokeError(registry.ProviderOllama, CategoryUnknown, 0, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderOllama, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderOllama, CategoryTransport, 0, fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewInvokeError(registry.ProviderOllama, CategorizeStatus(resp.StatusCode), resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewInvokeError(registry.ProviderOllama, CategoryServer, resp.StatusCode, fmt.Sprintf("parse response: %v", err))
	}

	inputTokens := parsed.PromptEvalCount
	outputTokens := parsed.EvalCount
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = EstimateTokens(req.Prompt)
		outputTokens = EstimateTokens(parsed.Response)
	}

	return &InvokeResponse{
		Content:      parsed.Response,
		ModelName:    parsed.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      time.Since(startTime),
	}, nil
}

// HealthProbe lists installed models via /api/tags
func (c *OllamaInvoker) HealthProbe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return NewInvokeError(registry.ProviderOllama, CategoryUnknown, 0, err.Error())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return NewInvokeError(registry.ProviderOllama, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return NewInvokeError(registry.ProviderOllama, CategorizeStatus(resp.StatusCode), resp.StatusCode, "health probe failed")
	}
	return nil
}
