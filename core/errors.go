package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Routing errors
	ErrNoProvidersAvailable = errors.New("no providers available")
	ErrNoCapableModel       = errors.New("no capable model for subtask kind")

	// Provider errors
	ErrBreakerOpen         = errors.New("provider circuit breaker open")
	ErrProviderAuth        = errors.New("provider authentication failed")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrProviderTransport   = errors.New("provider transport failure")
	ErrProviderServer      = errors.New("provider server error")
	ErrProviderBadRequest  = errors.New("provider rejected request")

	// Pipeline errors
	ErrAnalysisFailed  = errors.New("request analysis failed")
	ErrSynthesisFailed = errors.New("response synthesis failed")

	// Operation errors
	ErrTimeout          = errors.New("operation timeout")
	ErrCancelled        = errors.New("operation cancelled")
	ErrDeadlineExceeded = errors.New("request deadline exceeded")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// State errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotInitialized = errors.New("not initialized")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
)

// Stable machine-readable error codes surfaced to callers and progress events.
const (
	CodeNoProvidersAvailable = "NoProvidersAvailable"
	CodeNoCapableModel       = "NoCapableModel"
	CodeBreakerOpen          = "BreakerOpen"
	CodeProviderAuth         = "ProviderAuth"
	CodeProviderRateLimited  = "ProviderRateLimited"
	CodeProviderTransport    = "ProviderTransport"
	CodeProviderServer       = "ProviderServer"
	CodeProviderBadRequest   = "ProviderBadRequest"
	CodeTimeout              = "Timeout"
	CodeCancelled            = "Cancelled"
	CodeAnalysisFailed       = "AnalysisFailed"
	CodeSynthesisFailed      = "SynthesisFailed"
	CodeInternal             = "Internal"
	CodeDeadlineExceeded     = "DeadlineExceeded"
)

// CouncilError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type CouncilError struct {
	Op      string // Operation that failed (e.g., "router.Route")
	Code    string // Stable error code from the taxonomy above
	ID      string // Optional ID of the entity involved (request, subtask, provider)
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *CouncilError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Code)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *CouncilError) Unwrap() error {
	return e.Err
}

// NewCouncilError creates a new CouncilError
func NewCouncilError(op, code string, err error) *CouncilError {
	return &CouncilError{
		Op:   op,
		Code: code,
		Err:  err,
	}
}

// ErrorCode maps an error to its stable taxonomy code. Unknown errors map
// to CodeInternal.
func ErrorCode(err error) string {
	var ce *CouncilError
	if errors.As(err, &ce) && ce.Code != "" {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrNoProvidersAvailable):
		return CodeNoProvidersAvailable
	case errors.Is(err, ErrNoCapableModel):
		return CodeNoCapableModel
	case errors.Is(err, ErrBreakerOpen):
		return CodeBreakerOpen
	case errors.Is(err, ErrProviderAuth):
		return CodeProviderAuth
	case errors.Is(err, ErrProviderRateLimited):
		return CodeProviderRateLimited
	case errors.Is(err, ErrProviderTransport):
		return CodeProviderTransport
	case errors.Is(err, ErrProviderServer):
		return CodeProviderServer
	case errors.Is(err, ErrProviderBadRequest):
		return CodeProviderBadRequest
	case errors.Is(err, ErrDeadlineExceeded):
		return CodeDeadlineExceeded
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	case errors.Is(err, ErrAnalysisFailed):
		return CodeAnalysisFailed
	case errors.Is(err, ErrSynthesisFailed):
		return CodeSynthesisFailed
	default:
		return CodeInternal
	}
}

// IsRetryable checks if an error is retryable
// Retryable errors are typically transient network or availability issues
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderRateLimited) ||
		errors.Is(err, ErrProviderTransport) ||
		errors.Is(err, ErrProviderServer) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsBreakerFailure reports whether an error counts against a provider's
// circuit breaker. Auth and bad-request failures are deterministic and do
// not open the breaker.
func IsBreakerFailure(err error) bool {
	return errors.Is(err, ErrProviderRateLimited) ||
		errors.Is(err, ErrProviderTransport) ||
		errors.Is(err, ErrProviderServer) ||
		errors.Is(err, ErrTimeout)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsStateError checks if an error is related to invalid state transitions
func IsStateError(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrNotInitialized)
}
