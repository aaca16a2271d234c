// Package providers contains everything that talks to upstream model
// providers: the invoker contract with its error categories, the
// environment-based availability oracle, the concrete HTTP invokers, and
// the cached health checker.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// ErrorCategory classifies an invocation failure. Only rate_limited,
// transport, server and timeout failures count against a provider's
// circuit breaker.
type ErrorCategory string

const (
	CategoryAuth        ErrorCategory = "auth"
	CategoryRateLimited ErrorCategory = "rate_limited"
	CategoryTransport   ErrorCategory = "transport"
	CategoryServer      ErrorCategory = "server"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryBadRequest  ErrorCategory = "bad_request"
	CategoryUnknown     ErrorCategory = "unknown"
)

// InvokeRequest carries one subtask's prompt to a model.
type InvokeRequest struct {
	Model        *registry.ModelDescriptor
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
}

// InvokeResponse is a model's answer plus accounting data.
type InvokeResponse struct {
	Content      string
	ModelName    string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Cost computes the dollar cost of this response against a descriptor's
// per-token prices.
func (r *InvokeResponse) Cost(d *registry.ModelDescriptor) float64 {
	return float64(r.InputTokens)*d.CostPerInputToken + float64(r.OutputTokens)*d.CostPerOutputToken
}

// ProviderInvoker executes model calls against one provider.
type ProviderInvoker interface {
	// Provider identifies the upstream this invoker talks to
	Provider() registry.Provider

	// Invoke sends the prompt and returns the model's response. Errors
	// are categorized InvokeError values.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)

	// HealthProbe makes a minimal authenticated metadata call to verify
	// the provider is reachable and the credential works.
	HealthProbe(ctx context.Context) error
}

// InvokeError is a categorized provider failure. It wraps the matching
// taxonomy sentinel so errors.Is and core.ErrorCode work on it.
type InvokeError struct {
	Provider   registry.Provider
	Category   ErrorCategory
	StatusCode int
	Message    string
	Err        error
}

func (e *InvokeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Provider, e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Category, e.Err)
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// CountsAsBreakerFailure reports whether this failure should be recorded
// against the provider's circuit breaker.
func (e *InvokeError) CountsAsBreakerFailure() bool {
	switch e.Category {
	case CategoryRateLimited, CategoryTransport, CategoryServer, CategoryTimeout:
		return true
	default:
		return false
	}
}

// sentinelFor maps a category to its taxonomy sentinel
func sentinelFor(cat ErrorCategory) error {
	switch cat {
	case CategoryAuth:
		return core.ErrProviderAuth
	case CategoryRateLimited:
		return core.ErrProviderRateLimited
	case CategoryTransport:
		return core.ErrProviderTransport
	case CategoryServer:
		return core.ErrProviderServer
	case CategoryTimeout:
		return core.ErrTimeout
	case CategoryBadRequest:
		return core.ErrProviderBadRequest
	default:
		return nil
	}
}

// NewInvokeError builds a categorized error wrapping the matching sentinel
func NewInvokeError(p registry.Provider, cat ErrorCategory, statusCode int, message string) *InvokeError {
	err := sentinelFor(cat)
	if err == nil {
		err = errors.New(message)
	} else if message != "" {
		err = fmt.Errorf("%s: %w", message, err)
	}
	return &InvokeError{
		Provider:   p,
		Category:   cat,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// CategorizeStatus maps an HTTP status code to an error category
func CategorizeStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity || status == http.StatusRequestEntityTooLarge:
		return CategoryBadRequest
	case status >= 500:
		return CategoryServer
	default:
		return CategoryUnknown
	}
}

// CategorizeTransportError maps a client-side error (no HTTP response)
// to an error category, honoring context state.
func CategorizeTransportError(ctx context.Context, err error) ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return CategoryTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return CategoryUnknown
	}
	return CategoryTransport
}

// EstimateTokens approximates a token count when the provider does not
// report usage. Four characters per token is the catalog's working
// assumption for English text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
