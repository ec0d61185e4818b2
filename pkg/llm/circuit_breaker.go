package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker refuses calls to the provider.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState is the breaker position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive provider failures that opens the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before a single probe call is let through.
	Cooldown time.Duration
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes again after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// CircuitStatus is a point-in-time view of the breaker, reported by /ping.
type CircuitStatus struct {
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
}

// CircuitBreaker stops calling a provider after repeated transient failures.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed breaker. A non-positive threshold is treated as 1.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold < 1 {
		config.Threshold = 1
	}
	return &CircuitBreaker{
		threshold: config.Threshold,
		cooldown:  config.Cooldown,
		now:       time.Now,
		state:     CircuitClosed,
	}
}

// Allow reports whether a call may proceed. Once the cooldown has elapsed an open
// breaker moves to half-open and admits exactly one probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return fmt.Errorf("%w: %d consecutive failures, retry in %v", ErrCircuitOpen,
				cb.failures, (cb.cooldown - cb.now().Sub(cb.openedAt)).Round(time.Second))
		}
		cb.state = CircuitHalfOpen
		cb.probing = true
		return nil
	default:
		if cb.probing {
			return fmt.Errorf("%w: probe call in flight", ErrCircuitOpen)
		}
		cb.probing = true
		return nil
	}
}

// Record feeds a call result back. Only retryable failures count; an auth or bad-request
// error means the provider answered and closes the circuit like a success.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if err == nil || !IsRetryable(err) {
		cb.failures = 0
		cb.state = CircuitClosed
		return
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// Status returns the current breaker state.
func (cb *CircuitBreaker) Status() CircuitStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := CircuitStatus{State: cb.state, ConsecutiveFailures: cb.failures}
	if cb.state != CircuitClosed {
		openedAt := cb.openedAt
		status.OpenedAt = &openedAt
	}
	return status
}

// GuardedClient wraps an LLMClient with a circuit breaker.
type GuardedClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewGuardedClient wraps inner with breaker.
func NewGuardedClient(inner LLMClient, breaker *CircuitBreaker, logger *zap.Logger) *GuardedClient {
	return &GuardedClient{
		inner:   inner,
		breaker: breaker,
		logger:  logger.Named("llm-guard"),
	}
}

// GenerateResponse implements LLMClient. A refused call returns a retryable
// ErrorTypeUnavailable wrapping ErrCircuitOpen without reaching the provider.
func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("LLM call refused",
			zap.String("model", g.inner.GetModel()),
			zap.Error(err))
		return nil, NewErrorWithContext(ErrorTypeUnavailable, "language model temporarily disabled", true, err,
			g.inner.GetModel(), g.inner.GetEndpoint(), 0)
	}

	result, err := g.inner.GenerateResponse(ctx, prompt, systemMessage, temperature, thinking)
	g.breaker.Record(err)
	if err != nil {
		if status := g.breaker.Status(); status.State == CircuitOpen {
			g.logger.Error("LLM circuit opened",
				zap.String("model", g.inner.GetModel()),
				zap.Int("consecutive_failures", status.ConsecutiveFailures),
				zap.Error(err))
		}
		return nil, err
	}
	return result, nil
}

// GetModel implements LLMClient.
func (g *GuardedClient) GetModel() string {
	return g.inner.GetModel()
}

// GetEndpoint implements LLMClient.
func (g *GuardedClient) GetEndpoint() string {
	return g.inner.GetEndpoint()
}

// CircuitStatus reports the wrapped breaker's state.
func (g *GuardedClient) CircuitStatus() CircuitStatus {
	return g.breaker.Status()
}
