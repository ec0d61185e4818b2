package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClientForProvider creates the client matching cfg.Provider.
// An empty provider selects the OpenAI-compatible client.
// Returns LLMClient interface to enable dependency injection of mocks.
func NewClientForProvider(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		client, err := NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
