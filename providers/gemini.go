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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiInvoker talks to the Google AI generateContent API, which does
// not follow the OpenAI wire format.
type GeminiInvoker struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewGeminiInvoker creates an invoker for Google AI. baseURL overrides
// the default endpoint when non-empty (used in tests).
func NewGeminiInvoker(apiKey, baseURL string, logger core.Logger) *GeminiInvoker {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &GeminiInvoker{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		logger:     logger,
	}
}

// Provider identifies the upstream
func (c *GeminiInvoker) Provider() registry.Provider {
	return registry.ProviderGemini
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig *struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float32 `json:"temperature,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Invoke sends the prompt through models/<name>:generateContent
func (c *GeminiInvoker) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	if c.apiKey == "" {
		return nil, NewInvokeError(registry.ProviderGemini, CategoryAuth, 0, "API key not configured")
	}

	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}

	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		body.GenerationConfig = &struct {
			MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
			Temperature     float32 `json:"temperature,omitempty"`
		}{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderGemini, CategoryUnknown, 0, fmt.Sprintf("marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, req.Model.ModelName, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, NewInvokeError(registry.ProviderGemini, CategoryUnknown, 0, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderGemini, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderGemini, CategoryTransport, 0, fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewInvokeError(registry.ProviderGemini, CategorizeStatus(resp.StatusCode), resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewInvokeError(registry.ProviderGemini, CategoryServer, resp.StatusCode, fmt.Sprintf("parse response: %v", err))
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, NewInvokeError(registry.ProviderGemini, CategoryServer, resp.StatusCode, "no candidates returned")
	}

	content := parsed.Candidates[0].Content.Parts[0].Text
	inputTokens := parsed.UsageMetadata.PromptTokenCount
	outputTokens := parsed.UsageMetadata.CandidatesTokenCount
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = EstimateTokens(prompt)
		outputTokens = EstimateTokens(content)
	}

	return &InvokeResponse{
		Content:      content,
		ModelName:    req.Model.ModelName,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      time.Since(startTime),
	}, nil
}

// HealthProbe lists models with the configured key
func (c *GeminiInvoker) HealthProbe(ctx context.Context) error {
	if c.apiKey == "" {
		return NewInvokeError(registry.ProviderGemini, CategoryAuth, 0, "API key not configured")
	}

	url := fmt.Sprintf("%s/models?key=%s", c.baseURL, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewInvokeError(registry.ProviderGemini, CategoryUnknown, 0, err.Error())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return NewInvokeError(registry.ProviderGemini, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return NewInvokeError(registry.ProviderGemini, CategorizeStatus(resp.StatusCode), resp.StatusCode, "health probe failed")
	}
	return nil
}
