// Package catalog provides a client for the OpenMetadata-style metadata catalog.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for catalog responses.
const DefaultTimeout = 30 * time.Second

const (
	listFields   = "columns,profile,tags,tableConstraints"
	detailFields = "columns,profile,tags,tableConstraints,sampleData"

	defaultPageSize = 100

	contentTypeJSONPatch = "application/json-patch+json"

	// TagSourceClassification marks tags that come from a classification (e.g. PII.EMAIL).
	TagSourceClassification = "Classification"
)

// Config configures the catalog client.
type Config struct {
	BaseURL  string // e.g. http://localhost:8585/api
	Token    string // optional bearer token
	PageSize int
	Timeout  time.Duration
	Retry    *retry.Config // nil uses retry.DefaultConfig()
}

// APIError is a non-2xx response from the catalog.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog returned status %d for %s %s: %s",
		e.StatusCode, e.Method, e.Path, logging.TruncateString(e.Body, 200))
}

// IsRetryable reports whether the status is transient (429 or 5xx).
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client provides access to the catalog API.
type Client struct {
	baseURL     string
	token       string
	pageSize    int
	retryConfig *retry.Config
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a new catalog client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	retryConfig := retry.DefaultConfig()
	if cfg.Retry != nil {
		copied := *cfg.Retry
		retryConfig = &copied
	}

	c := &Client{
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		pageSize:    pageSize,
		retryConfig: retryConfig,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("catalog"),
	}
	if retryConfig.OnRetry == nil {
		retryConfig.OnRetry = func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("Retrying catalog read",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.String("error", logging.SanitizeMessage(err.Error())))
		}
	}
	return c
}

// ListEntities returns every table of a database service, following paging.after
// until the catalog stops returning a cursor.
func (c *Client) ListEntities(ctx context.Context, service string) ([]Table, error) {
	var tables []Table
	after := ""
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("service", service)
		query.Set("fields", listFields)
		query.Set("limit", strconv.Itoa(c.pageSize))
		if after != "" {
			query.Set("after", after)
		}

		var resp tableListResponse
		if err := c.getJSON(ctx, query, &resp, "v1", "tables"); err != nil {
			return nil, fmt.Errorf("list tables for service %s (page %d): %w", service, page, err)
		}
		tables = append(tables, resp.Data...)

		c.logger.Debug("Fetched catalog page",
			zap.String("service", service),
			zap.Int("page", page),
			zap.Int("tables", len(resp.Data)))

		after = resp.Paging.After
		if after == "" {
			break
		}
		if seen[after] {
			return nil, fmt.Errorf("list tables for service %s (page %d): paging cursor %q repeated: %w",
				service, page, after, apperrors.ErrUnexpectedReply)
		}
		seen[after] = true
	}

	c.logger.Info("Listed catalog tables",
		zap.String("service", service),
		zap.Int("count", len(tables)))

	return tables, nil
}

// GetEntityDetail fetches one table by fully qualified name, including sample data.
func (c *Client) GetEntityDetail(ctx context.Context, fqn string) (*Table, error) {
	query := url.Values{}
	query.Set("fields", detailFields)

	var table Table
	if err := c.getJSON(ctx, query, &table, "v1", "tables", "name", fqn); err != nil {
		return nil, fmt.Errorf("get table %s: %w", fqn, err)
	}
	return &table, nil
}

// UpdateEntityDescription sets a table's description.
func (c *Client) UpdateEntityDescription(ctx context.Context, tableID, description string) error {
	return c.patchTable(ctx, tableID, []PatchOperation{
		{Op: "add", Path: "/description", Value: description},
	})
}

// UpdateColumnDescription sets the description of the column at colIndex.
func (c *Client) UpdateColumnDescription(ctx context.Context, tableID string, colIndex int, description string) error {
	return c.patchTable(ctx, tableID, []PatchOperation{
		{Op: "add", Path: fmt.Sprintf("/columns/%d/description", colIndex), Value: description},
	})
}

// AddColumnTag appends a classification tag to the column at colIndex.
func (c *Client) AddColumnTag(ctx context.Context, tableID string, colIndex int, tagFQN string) error {
	return c.patchTable(ctx, tableID, []PatchOperation{
		{
			Op:    "add",
			Path:  fmt.Sprintf("/columns/%d/tags/-", colIndex),
			Value: TagLabel{TagFQN: tagFQN, Source: TagSourceClassification},
		},
	})
}

// getJSON performs a GET, retrying transient failures, and decodes the body into out.
// Undecodable bodies are not retried.
func (c *Client) getJSON(ctx context.Context, query url.Values, out any, pathSegments ...string) error {
	endpoint, err := buildURL(c.baseURL, query, pathSegments...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	body, err := retry.Value(ctx, c.retryConfig, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return c.do(req)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode catalog response: %v", apperrors.ErrUnexpectedReply, err)
	}
	return nil
}

// patchTable sends JSON Patch operations to a table. Writes are not retried.
func (c *Client) patchTable(ctx context.Context, tableID string, ops []PatchOperation) error {
	endpoint, err := buildURL(c.baseURL, nil, "v1", "tables", tableID)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	payload, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSONPatch)
	req.Header.Set("Accept", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("patch table %s: %w", tableID, err)
	}

	c.logger.Debug("Patched catalog table",
		zap.String("table_id", tableID),
		zap.String("path", ops[0].Path))
	return nil
}

// do executes the request and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			Path:       req.URL.Path,
			Body:       string(body),
		}
		c.logger.Warn("Catalog returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("url", logging.SanitizeURL(req.URL.String())),
			zap.String("body", logging.SanitizeMessage(string(body))))
		return nil, apiErr
	}

	return body, nil
}

// buildURL constructs a URL by parsing the base, joining path segments and
// attaching the query string.
func buildURL(baseURL string, query url.Values, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}
