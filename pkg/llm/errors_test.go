package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "minimal",
			err:  NewError(ErrorTypeUnknown, "llm error", false, nil),
			want: "unknown llm error",
		},
		{
			name: "full context",
			err:  NewErrorWithContext(ErrorTypeRateLimited, "rate limited", true, nil, "claude-sonnet-4-5", "https://api.anthropic.com/v1?key=secret", 429),
			want: "rate_limited HTTP 429 model=claude-sonnet-4-5 endpoint=api.anthropic.com rate limited",
		},
		{
			name: "with cause",
			err:  NewErrorWithContext(ErrorTypeEndpoint, "connection failed", true, cause, "gpt-4o", "", 0),
			want: "endpoint model=gpt-4o connection failed: dial tcp: connection refused",
		},
		{
			name: "unparseable endpoint omitted",
			err:  NewErrorWithContext(ErrorTypeAuth, "authentication failed", false, nil, "", "not a url", 401),
			want: "auth HTTP 401 authentication failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.NotContains(t, tt.err.Error(), "secret")
		})
	}
}

func TestError_UnwrapAndRetryable(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrorTypeEndpoint, "server error", true, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.False(t, NewError(ErrorTypeAuth, "authentication failed", false, nil).IsRetryable())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
		wantStatus    int
	}{
		{"cancelled", fmt.Errorf("send: %w", context.Canceled), ErrorTypeEndpoint, false, 0},
		{"deadline", context.DeadlineExceeded, ErrorTypeEndpoint, true, 0},
		{"client timeout", errors.New("Client.Timeout exceeded while awaiting headers"), ErrorTypeEndpoint, true, 0},
		{"unauthorized status", errors.New("error, status code: 401, message: invalid"), ErrorTypeAuth, false, 401},
		{"anthropic bad key", errors.New("authentication_error: invalid x-api-key"), ErrorTypeAuth, false, 0},
		{"model missing", errors.New("The model `gpt-9` does not exist"), ErrorTypeModel, false, 0},
		{"endpoint 404", errors.New("status code: 404, page not found"), ErrorTypeEndpoint, false, 404},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8000: connection refused"), ErrorTypeEndpoint, true, 0},
		{"rate limited", errors.New("error, status code: 429, status: 429 Too Many Requests"), ErrorTypeRateLimited, true, 429},
		{"overloaded", errors.New("anthropic api error type: overloaded_error, message: Overloaded"), ErrorTypeEndpoint, true, 0},
		{"gpu", errors.New("CUDA error: out of memory"), ErrorTypeEndpoint, true, 0},
		{"server error", errors.New("HTTP 502 bad gateway"), ErrorTypeEndpoint, true, 502},
		{"anthropic permission", errors.New("anthropic api error type: permission_error, message: denied"), ErrorTypeAuth, false, 0},
		{"anthropic overloaded status", errors.New("HTTP 529 from provider"), ErrorTypeEndpoint, true, 529},
		{"openai typed status", &openai.APIError{HTTPStatusCode: 503, Message: "upstream unavailable"}, ErrorTypeEndpoint, true, 503},
		{"openai request error", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("slow down")}, ErrorTypeRateLimited, true, 429},
		{"openai typed auth", fmt.Errorf("chat: %w", &openai.APIError{HTTPStatusCode: 401, Message: "Incorrect API key provided"}), ErrorTypeAuth, false, 401},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantType, result.Type)
			assert.Equal(t, tt.wantRetryable, result.Retryable)
			assert.Equal(t, tt.wantStatus, result.StatusCode)
			assert.ErrorIs(t, result, tt.err)
		})
	}
}

func TestClassifyError_PassesThroughStructuredErrors(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))

	original := NewError(ErrorTypeUnavailable, "circuit open", true, nil)
	assert.Same(t, original, ClassifyError(fmt.Errorf("repair: %w", original)))
}

func TestExtractStatusCode(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"status code: 503", 503},
		{"HTTP 429 Too Many Requests", 429},
		{"code: 401", 401},
		{"processed 503 records", 0},
		{"connect to port 5432 failed", 0},
		{"status: 999", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, extractStatusCode(tt.input))
		})
	}
}

func TestIsRetryableAndGetErrorType(t *testing.T) {
	wrapped := fmt.Errorf("repair: %w", NewError(ErrorTypeUnavailable, "circuit open", true, nil))

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrorTypeUnavailable, GetErrorType(wrapped))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}
