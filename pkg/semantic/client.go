// Package semantic provides a client for the Cube.js-style semantic layer REST API.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// DefaultTimeout is the maximum time to wait for a query to load.
const DefaultTimeout = 60 * time.Second

// Config configures the semantic layer client.
type Config struct {
	APIURL  string // e.g. http://localhost:4000/cubejs-api/v1
	Token   string // sent verbatim in the Authorization header
	Timeout time.Duration
}

// APIError is a non-2xx response. Detail is the engine's "error" field when the
// body carried one, otherwise the raw body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the semantic layer. It never retries.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new semantic layer client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		token:  cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("semantic"),
	}
}

// Load runs a query. A 2xx response carrying an "error" field is returned as a
// LoadResponse with Error set, not as a Go error.
func (c *Client) Load(ctx context.Context, query *models.Query) (*LoadResponse, error) {
	payload, err := json.Marshal(loadRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/load", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp LoadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode load response: %v", apperrors.ErrUnexpectedReply, err)
	}
	return &resp, nil
}

// Meta fetches the cube definitions.
func (c *Client) Meta(ctx context.Context) (*Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/meta", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode meta: %v", apperrors.ErrUnexpectedReply, err)
	}

	c.logger.Debug("Fetched semantic layer meta", zap.Int("cubes", len(meta.Cubes)))
	return &meta, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(body)
		c.logger.Warn("Semantic layer returned error",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeMessage(detail)))
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}

	return body, nil
}

// errorDetail unwraps {"error": "..."} bodies and falls back to the raw text.
func errorDetail(body []byte) string {
	var wrapped struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Error) > 0 {
		var text string
		if err := json.Unmarshal(wrapped.Error, &text); err == nil {
			return text
		}
		return string(wrapped.Error)
	}
	return string(body)
}

// IsAPIError reports whether err is (or wraps) a non-2xx response.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
