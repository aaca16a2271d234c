package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// compatBaseURLs maps each OpenAI-compatible provider to its chat
// completions base URL.
var compatBaseURLs = map[registry.Provider]string{
	registry.ProviderGroq:       "https://api.groq.com/openai/v1",
	registry.ProviderTogether:   "https://api.together.xyz/v1",
	registry.ProviderOpenRouter: "https://openrouter.ai/api/v1",
	registry.ProviderOpenAI:     "https://api.openai.com/v1",
	registry.ProviderQwen:       "https://dashscope.aliyuncs.com/compatible-mode/v1",
}

// newHTTPClient builds a traced HTTP client. Per-call deadlines come from
// the request context, so the client itself carries no timeout.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// OpenAICompatInvoker talks to any provider exposing the OpenAI chat
// completions wire format: groq, together, openrouter, openai and qwen.
type OpenAICompatInvoker struct {
	provider   registry.Provider
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewOpenAICompatInvoker creates an invoker for one compatible provider.
// baseURL overrides the default endpoint when non-empty (used in tests).
func NewOpenAICompatInvoker(p registry.Provider, apiKey, baseURL string, logger core.Logger) (*OpenAICompatInvoker, error) {
	if baseURL == "" {
		var ok bool
		baseURL, ok = compatBaseURLs[p]
		if !ok {
			return nil, fmt.Errorf("provider %s is not OpenAI-compatible: %w", p, core.ErrInvalidConfiguration)
		}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &OpenAICompatInvoker{
		provider:   p,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		logger:     logger,
	}, nil
}

// Provider identifies the upstream
func (c *OpenAICompatInvoker) Provider() registry.Provider {
	return c.provider
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Invoke sends the prompt through the chat completions endpoint
func (c *OpenAICompatInvoker) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	if c.apiKey == "" {
		return nil, NewInvokeError(c.provider, CategoryAuth, 0, "API key not configured")
	}

	messages := []chatMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       req.Model.ModelName,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, NewInvokeError(c.provider, CategoryUnknown, 0, fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, NewInvokeError(c.provider, CategoryUnknown, 0, fmt.Sprintf("create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("Invoking provider", map[string]interface{}{
		"operation":     "provider_invoke",
		"provider":      string(c.provider),
		"model":         req.Model.ModelName,
		"prompt_length": len(req.Prompt),
	})

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewInvokeError(c.provider, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewInvokeError(c.provider, CategoryTransport, 0, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewInvokeError(c.provider, CategorizeStatus(resp.StatusCode), resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewInvokeError(c.provider, CategoryServer, resp.StatusCode, fmt.Sprintf("parse response: %v", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, NewInvokeError(c.provider, CategoryServer, resp.StatusCode, "no choices returned")
	}

	content := parsed.Choices[0].Message.Content
	inputTokens := parsed.Usage.PromptTokens
	outputTokens := parsed.Usage.CompletionTokens
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = EstimateTokens(req.Prompt)
		outputTokens = EstimateTokens(content)
	}

	modelName := parsed.Model
	if modelName == "" {
		modelName = req.Model.ModelName
	}

	result := &InvokeResponse{
		Content:      content,
		ModelName:    modelName,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      time.Since(startTime),
	}

	c.logger.Debug("Provider responded", map[string]interface{}{
		"operation":     "provider_invoke",
		"provider":      string(c.provider),
		"model":         modelName,
		"latency":       result.Latency.String(),
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
	})
	return result, nil
}

// HealthProbe lists models, the cheapest authenticated call these
// providers offer.
func (c *OpenAICompatInvoker) HealthProbe(ctx context.Context) error {
	if c.apiKey == "" {
		return NewInvokeError(c.provider, CategoryAuth, 0, "API key not configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return NewInvokeError(c.provider, CategoryUnknown, 0, err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return NewInvokeError(c.provider, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return NewInvokeError(c.provider, CategorizeStatus(resp.StatusCode), resp.StatusCode, "health probe failed")
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
