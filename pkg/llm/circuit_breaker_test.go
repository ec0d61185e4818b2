package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	errProviderDown = NewError(ErrorTypeEndpoint, "server error", true, nil)
	errBadAPIKey    = NewError(ErrorTypeAuth, "authentication failed", false, nil)
)

// fakeClock lets tests move the breaker past its cooldown without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, Cooldown: cooldown})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_Record(t *testing.T) {
	tests := []struct {
		name         string
		threshold    int
		results      []error
		wantState    CircuitState
		wantFailures int
	}{
		{
			name:      "starts closed",
			threshold: 3,
			wantState: CircuitClosed,
		},
		{
			name:         "below threshold stays closed",
			threshold:    3,
			results:      []error{errProviderDown, errProviderDown},
			wantState:    CircuitClosed,
			wantFailures: 2,
		},
		{
			name:         "threshold opens",
			threshold:    3,
			results:      []error{errProviderDown, errProviderDown, errProviderDown},
			wantState:    CircuitOpen,
			wantFailures: 3,
		},
		{
			name:         "success resets the count",
			threshold:    3,
			results:      []error{errProviderDown, errProviderDown, nil, errProviderDown},
			wantState:    CircuitClosed,
			wantFailures: 1,
		},
		{
			name:      "non-retryable errors do not count",
			threshold: 1,
			results:   []error{errBadAPIKey, errBadAPIKey},
			wantState: CircuitClosed,
		},
		{
			name:      "unclassified errors do not count",
			threshold: 1,
			results:   []error{errors.New("boom")},
			wantState: CircuitClosed,
		},
		{
			name:         "zero threshold behaves as one",
			threshold:    0,
			results:      []error{errProviderDown},
			wantState:    CircuitOpen,
			wantFailures: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _ := newTestBreaker(tt.threshold, time.Minute)
			for _, err := range tt.results {
				require.NoError(t, cb.Allow())
				cb.Record(err)
			}

			status := cb.Status()
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantFailures, status.ConsecutiveFailures)
			assert.Equal(t, tt.wantState != CircuitClosed, status.OpenedAt != nil)
		})
	}
}

func TestCircuitBreaker_OpenRefusesUntilCooldown(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)
	cb.Record(errProviderDown)

	err := cb.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "retry in 30s")

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	clock.Advance(time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.Status().State)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		probe     error
		wantState CircuitState
	}{
		{name: "probe succeeds", probe: nil, wantState: CircuitClosed},
		{name: "probe fails", probe: errProviderDown, wantState: CircuitOpen},
		{name: "provider answers with auth error", probe: errBadAPIKey, wantState: CircuitClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(2, time.Minute)
			cb.Record(errProviderDown)
			cb.Record(errProviderDown)
			clock.Advance(time.Minute)

			require.NoError(t, cb.Allow())
			assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen, "only one probe at a time")

			cb.Record(tt.probe)
			assert.Equal(t, tt.wantState, cb.Status().State)
		})
	}
}

func TestCircuitBreaker_ReopenRestartsCooldown(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)
	cb.Record(errProviderDown)
	clock.Advance(time.Minute)

	require.NoError(t, cb.Allow())
	cb.Record(errProviderDown)

	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	assert.Equal(t, 2, cb.Status().ConsecutiveFailures)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1000, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = cb.Allow()
				cb.Record(errProviderDown)
				_ = cb.Status()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, cb.Status().ConsecutiveFailures)
}

func TestGuardedClient(t *testing.T) {
	t.Run("opens after retryable failures and skips the provider", func(t *testing.T) {
		inner := NewMockLLMClient()
		inner.GenerateResponseFunc = func(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
			return nil, errProviderDown
		}
		guarded := NewGuardedClient(inner, NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, Cooldown: time.Hour}), zap.NewNop())

		for i := 0; i < 2; i++ {
			_, err := guarded.GenerateResponse(context.Background(), "p", "s", 0, false)
			assert.Same(t, errProviderDown, err)
		}
		assert.Equal(t, CircuitOpen, guarded.CircuitStatus().State)

		_, err := guarded.GenerateResponse(context.Background(), "p", "s", 0, false)
		require.Error(t, err)
		assert.Equal(t, ErrorTypeUnavailable, GetErrorType(err))
		assert.True(t, IsRetryable(err))
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 2, inner.Calls())
	})

	t.Run("auth failures pass through without opening", func(t *testing.T) {
		inner := NewMockLLMClient()
		inner.GenerateResponseFunc = func(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
			return nil, errBadAPIKey
		}
		guarded := NewGuardedClient(inner, NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, Cooldown: time.Hour}), zap.NewNop())

		for i := 0; i < 3; i++ {
			_, err := guarded.GenerateResponse(context.Background(), "p", "s", 0, false)
			assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
		}
		assert.Equal(t, CircuitClosed, guarded.CircuitStatus().State)
		assert.Equal(t, 3, inner.Calls())
	})

	t.Run("success passes through", func(t *testing.T) {
		inner := NewMockLLMClientWithReply("FIXED: false")
		guarded := NewGuardedClient(inner, NewCircuitBreaker(DefaultCircuitBreakerConfig()), zap.NewNop())

		result, err := guarded.GenerateResponse(context.Background(), "p", "s", 0, false)
		require.NoError(t, err)
		assert.Equal(t, "FIXED: false", result.Content)
		assert.Equal(t, "mock-model", guarded.GetModel())
		assert.Equal(t, "http://mock-endpoint", guarded.GetEndpoint())
	})
}
