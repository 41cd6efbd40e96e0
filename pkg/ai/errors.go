package ai

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType indicates which part of the provider configuration or
// connection caused an error.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// ErrMalformedResponse marks a completed provider call whose output
// could not be parsed into classification verdicts. The provider is up;
// retrying the same prompt is unlikely to help.
var ErrMalformedResponse = errors.New("malformed escalation response")

// Error is a structured provider error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing ai.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured provider error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
// This consolidates error classification so the escalator, retry logic
// and circuit breaker all agree on what counts as transient.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	// Check if already an *Error
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	// Extract HTTP status code from error string
	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	// Authentication errors (not retryable)
	if strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") {
		aiErr := NewError(ErrorTypeAuth, "authentication failed", false, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// Model not found (not retryable without config change)
	if strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")) {
		aiErr := NewError(ErrorTypeModel, "model not found", false, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// Endpoint not found (not retryable without config change)
	if strings.Contains(errStr, "404") {
		aiErr := NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// Connection errors (may be retryable)
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		aiErr := NewError(ErrorTypeEndpoint, "connection failed", true, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// Timeout and deadline exceeded (retryable)
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled") {
		aiErr := NewError(ErrorTypeEndpoint, "request timeout", true, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// Rate limiting (retryable after backoff)
	if strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") {
		aiErr := NewError(ErrorTypeUnknown, "rate limited", true, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// CUDA/GPU errors on self-hosted endpoints (transient, retryable)
	if strings.Contains(lower, "cuda error") || strings.Contains(lower, "gpu error") ||
		strings.Contains(lower, "out of memory") {
		aiErr := NewError(ErrorTypeEndpoint, "GPU error", true, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// 5xx server errors (retryable)
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		aiErr := NewError(ErrorTypeEndpoint, "server error", true, err)
		aiErr.StatusCode = statusCode
		return aiErr
	}

	// Unknown error
	aiErr = NewError(ErrorTypeUnknown, "ai provider error", false, err)
	aiErr.StatusCode = statusCode
	return aiErr
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Type
	}
	return ErrorTypeUnknown
}
