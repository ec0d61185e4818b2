package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType indicates which part of the LLM configuration or provider caused the error.
type ErrorType string

const (
	ErrorTypeNone        ErrorType = ""
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeUnavailable ErrorType = "unavailable" // circuit breaker open
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
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
// The endpoint is reduced to its host so paths and query tokens never reach logs.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
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
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured LLM error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// statusCodePattern only accepts codes introduced by HTTP/status/code so that
// numbers like "processed 503 records" or "port 5432" are ignored.
var statusCodePattern = regexp.MustCompile(`(?i)\b(?:http|status|code)[:\s]+([1-5][0-9]{2})\b`)

func extractStatusCode(errStr string) int {
	m := statusCodePattern.FindStringSubmatch(errStr)
	if len(m) < 2 {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// classificationRule maps a provider failure onto an ErrorType. Rules are tried in order.
type classificationRule struct {
	errType   ErrorType
	message   string
	retryable bool
	match     func(err error, lower string, status int) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var classificationRules = []classificationRule{
	{ErrorTypeEndpoint, "request cancelled", false, func(err error, lower string, _ int) bool {
		return errors.Is(err, context.Canceled) || strings.Contains(lower, "context canceled")
	}},
	{ErrorTypeEndpoint, "request timeout", true, func(err error, lower string, _ int) bool {
		return errors.Is(err, context.DeadlineExceeded) || containsAny(lower, "deadline exceeded", "timeout")
	}},
	{ErrorTypeAuth, "authentication failed", false, func(_ error, lower string, status int) bool {
		return status == 401 || status == 403 ||
			containsAny(lower, "unauthorized", "invalid api key", "invalid x-api-key", "authentication_error", "permission_error")
	}},
	{ErrorTypeModel, "model not found", false, func(_ error, lower string, _ int) bool {
		return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist")
	}},
	{ErrorTypeEndpoint, "endpoint not found", false, func(_ error, _ string, status int) bool {
		return status == 404
	}},
	{ErrorTypeEndpoint, "connection failed", true, func(_ error, lower string, _ int) bool {
		return containsAny(lower, "connection refused", "no such host", "connection reset")
	}},
	{ErrorTypeRateLimited, "rate limited", true, func(_ error, lower string, status int) bool {
		return status == 429 || containsAny(lower, "rate limit", "rate_limit_error", "too many requests")
	}},
	{ErrorTypeEndpoint, "provider overloaded", true, func(_ error, lower string, status int) bool {
		return status == 529 || strings.Contains(lower, "overloaded")
	}},
	// Self-hosted models surface GPU exhaustion as plain errors; it clears on its own.
	{ErrorTypeEndpoint, "GPU error", true, func(_ error, lower string, _ int) bool {
		return containsAny(lower, "cuda error", "gpu error", "out of memory")
	}},
	{ErrorTypeEndpoint, "server error", true, func(_ error, _ string, status int) bool {
		return status >= 500
	}},
}

// providerStatus prefers the status carried by go-openai's typed errors and falls
// back to parsing the message.
func providerStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}
	return extractStatusCode(err.Error())
}

// ClassifyError turns a provider error into an *Error. Errors that already are one
// are returned unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	status := providerStatus(err)
	lower := strings.ToLower(err.Error())

	classified := NewError(ErrorTypeUnknown, "llm error", false, err)
	for _, rule := range classificationRules {
		if rule.match(err, lower, status) {
			classified = NewError(rule.errType, rule.message, rule.retryable, err)
			break
		}
	}
	classified.StatusCode = status
	return classified
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
