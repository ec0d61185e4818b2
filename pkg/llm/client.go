package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider  string        // "openai" or "anthropic"
	Endpoint  string        // Base URL, e.g., "https://api.openai.com/v1"
	Model     string        // Model name, e.g., "gpt-4o"
	APIKey    string        // Optional for local OpenAI-compatible endpoints
	MaxTokens int           // Completion limit, 0 for provider default
	Timeout   time.Duration // Per-request timeout, 0 for none
}

func (c *Config) validate(requireKey bool) error {
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint is required")
	case c.Model == "":
		return errors.New("model is required")
	case requireKey && c.APIKey == "":
		return errors.New("api key is required")
	}
	return nil
}

// newHTTPClient returns an http.Client that forwards request IDs from the context.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &contextAwareTransport{base: http.DefaultTransport},
	}
}

// callTrace logs one provider round-trip.
type callTrace struct {
	logger *zap.Logger
	start  time.Time
}

func startCall(ctx context.Context, logger *zap.Logger, model, prompt string, temperature float64, thinking bool) *callTrace {
	l := logger.With(contextFields(ctx)...).With(zap.String("model", model))
	l.Debug("LLM request",
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature),
		zap.Bool("thinking", thinking))
	return &callTrace{logger: l, start: time.Now()}
}

func (t *callTrace) failed(err error) {
	t.logger.Error("LLM request failed",
		zap.Duration("elapsed", time.Since(t.start)),
		zap.Error(err))
}

func (t *callTrace) completed(result *GenerateResponseResult, stopReason string) {
	t.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.String("stop_reason", stopReason),
		zap.Duration("elapsed", time.Since(t.start)))
	if stopReason == "length" || stopReason == "max_tokens" {
		t.logger.Warn("LLM reply hit the token limit and may be truncated")
	}
}

// providerError classifies a transport or API error and tags it with the model and endpoint.
func providerError(err error, model, endpoint string) *Error {
	llmErr := ClassifyError(err)
	llmErr.Model = model
	llmErr.Endpoint = endpoint
	return llmErr
}

// Client talks to OpenAI-compatible chat completion endpoints (OpenAI, vLLM, Ollama).
type Client struct {
	client    *openai.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.validate(false); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig.HTTPClient = newHTTPClient(cfg.Timeout)

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse sends a system and a user message and returns the first choice.
// Thinking is passed as chat_template_kwargs.enable_thinking, which self-hosted
// reasoning models (Qwen3, Nemotron) honour and hosted APIs ignore.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
	trace := startCall(ctx, c.logger, c.model, prompt, temperature, thinking)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:        float32(temperature),
		MaxTokens:          c.maxTokens,
		ChatTemplateKwargs: map[string]any{"enable_thinking": thinking},
	})
	if err != nil {
		trace.failed(err)
		return nil, providerError(err, c.model, c.endpoint)
	}
	if len(resp.Choices) == 0 {
		return nil, NewErrorWithContext(ErrorTypeUnknown, "no choices in response", false, nil, c.model, c.endpoint, 0)
	}

	choice := resp.Choices[0]
	result := &GenerateResponseResult{
		Content:          choice.Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	trace.completed(result, string(choice.FinishReason))
	return result, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}
