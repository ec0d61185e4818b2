package retry_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-semantic/pkg/catalog"
	"github.com/ekaya-inc/ekaya-semantic/pkg/retry"
)

func catalogError(status int) error {
	return &catalog.APIError{StatusCode: status, Method: http.MethodGet, Path: "/v1/tables", Body: "{}"}
}

func TestIsRetryable_CatalogAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"service unavailable", catalogError(http.StatusServiceUnavailable), true},
		{"too many requests", catalogError(http.StatusTooManyRequests), true},
		{"not found", catalogError(http.StatusNotFound), false},
		{"unauthorized", catalogError(http.StatusUnauthorized), false},
		{"wrapped bad gateway", fmt.Errorf("list tables: %w", catalogError(http.StatusBadGateway)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.IsRetryable(tt.err))
		})
	}
}

func TestDoIfRetryable_CatalogAPIError(t *testing.T) {
	cfg := &retry.Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	t.Run("retries 5xx until success", func(t *testing.T) {
		calls := 0
		err := retry.DoIfRetryable(context.Background(), cfg, func() error {
			calls++
			if calls < 3 {
				return catalogError(http.StatusServiceUnavailable)
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns 4xx without retrying", func(t *testing.T) {
		calls := 0
		want := catalogError(http.StatusNotFound)
		err := retry.DoIfRetryable(context.Background(), cfg, func() error {
			calls++
			return want
		})

		assert.Same(t, want, err)
		assert.Equal(t, 1, calls)
	})
}
