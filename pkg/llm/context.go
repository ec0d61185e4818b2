package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"
)

type contextKey string

const (
	llmContextKey contextKey = "llm_context"

	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-Id"
)

// WithContext returns a context with LLM logging context attached.
// The context map is merged with any existing context.
func WithContext(ctx context.Context, values map[string]any) context.Context {
	existing := GetContext(ctx)
	if existing == nil {
		existing = make(map[string]any)
	}
	// Merge new values into existing
	for k, v := range values {
		existing[k] = v
	}
	return context.WithValue(ctx, llmContextKey, existing)
}

// GetContext retrieves the LLM logging context from context, if present.
func GetContext(ctx context.Context) map[string]any {
	if c, ok := ctx.Value(llmContextKey).(map[string]any); ok {
		// Return a copy to prevent mutation
		copy := make(map[string]any, len(c))
		for k, v := range c {
			copy[k] = v
		}
		return copy
	}
	return nil
}

// WithRequestID tags LLM calls made under ctx with a request ID and the operation
// ("query_repair", "relationship_inference", ...). The ID is sent as X-Request-Id.
func WithRequestID(ctx context.Context, requestID, operation string) context.Context {
	values := map[string]any{
		requestIDKey: requestID,
	}
	if operation != "" {
		values["operation"] = operation
	}
	return WithContext(ctx, values)
}

// GetRequestID returns the request ID set by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	values := GetContext(ctx)
	if values == nil {
		return ""
	}
	id, _ := values[requestIDKey].(string)
	return id
}

// contextFields renders the LLM context as zap fields in key order.
func contextFields(ctx context.Context) []zap.Field {
	values := GetContext(ctx)
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.String(k, fmt.Sprint(values[k])))
	}
	return fields
}

// contextAwareTransport copies the request ID from the request context into a header.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := GetRequestID(req.Context())
	if id == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(requestIDHeader, id)
	return t.base.RoundTrip(clone)
}
