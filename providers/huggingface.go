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

const defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"

// HuggingFaceInvoker talks to the serverless Inference API. The API does
// not report token usage, so counts are always estimated.
type HuggingFaceInvoker struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewHuggingFaceInvoker creates an invoker for the Inference API
func NewHuggingFaceInvoker(token, baseURL string, logger core.Logger) *HuggingFaceInvoker {
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &HuggingFaceInvoker{
		token:      token,
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		logger:     logger,
	}
}

// Provider identifies the upstream
func (c *HuggingFaceInvoker) Provider() registry.Provider {
	return registry.ProviderHuggingFace
}

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
		Temperature    float32 `json:"temperature,omitempty"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

type hfResponse []struct {
	GeneratedText string `json:"generated_text"`
}

// Invoke sends the prompt through the model's inference endpoint
func (c *HuggingFaceInvoker) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	if c.token == "" {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategoryAuth, 0, "token not configured")
	}

	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}

	var body hfRequest
	body.Inputs = prompt
	body.Parameters.MaxNewTokens = req.MaxTokens
	body.Parameters.Temperature = req.Temperature

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategoryUnknown, 0, fmt.Sprintf("marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/models/%s", c.baseURL, req.Model.ModelName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategoryUnknown, 0, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategoryTransport, 0, fmt.Sprintf("read response: %v", err))
	}

	// 503 while a cold model loads behaves like rate limiting: back off
	// and let the breaker absorb sustained failures.
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategoryRateLimited, resp.StatusCode, "model loading")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategorizeStatus(resp.StatusCode), resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed hfResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategoryServer, resp.StatusCode, fmt.Sprintf("parse response: %v", err))
	}
	if len(parsed) == 0 {
		return nil, NewInvokeError(registry.ProviderHuggingFace, CategoryServer, resp.StatusCode, "empty generation")
	}

	content := parsed[0].GeneratedText
	return &InvokeResponse{
		Content:      content,
		ModelName:    req.Model.ModelName,
		InputTokens:  EstimateTokens(prompt),
		OutputTokens: EstimateTokens(content),
		Latency:      time.Since(startTime),
	}, nil
}

// HealthProbe verifies the token against the whoami endpoint
func (c *HuggingFaceInvoker) HealthProbe(ctx context.Context) error {
	if c.token == "" {
		return NewInvokeError(registry.ProviderHuggingFace, CategoryAuth, 0, "token not configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://huggingface.co/api/whoami-v2", nil)
	if err != nil {
		return NewInvokeError(registry.ProviderHuggingFace, CategoryUnknown, 0, err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return NewInvokeError(registry.ProviderHuggingFace, CategorizeTransportError(ctx, err), 0, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return NewInvokeError(registry.ProviderHuggingFace, CategorizeStatus(resp.StatusCode), resp.StatusCode, "health probe failed")
	}
	return nil
}
