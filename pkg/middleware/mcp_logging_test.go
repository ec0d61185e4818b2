package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func jsonRPCHandler(response string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	})
}

func TestMCPRequestLogger(t *testing.T) {
	tests := []struct {
		name        string
		request     string
		response    string
		wantMessage string
		wantLevel   zapcore.Level
		check       func(t *testing.T, fields map[string]any)
	}{
		{
			name:        "successful tool call",
			request:     `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_query","arguments":{"query":{"measures":["Film.count"]},"question":"how many films?"}}}`,
			response:    `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`,
			wantMessage: "MCP request",
			wantLevel:   zapcore.DebugLevel,
			check: func(t *testing.T, fields map[string]any) {
				assert.Equal(t, "tools/call", fields["rpc_method"])
				assert.Equal(t, "execute_query", fields["tool"])
				args, ok := fields["arguments"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, `{"measures":["Film.count"]}`, args["query"])
				assert.Equal(t, "how many films?", args["question"])
			},
		},
		{
			name:        "json-rpc error",
			request:     `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_schema","arguments":{}}}`,
			response:    `{"jsonrpc":"2.0","id":2,"error":{"code":-32603,"message":"failed to fetch schema: connection refused"}}`,
			wantMessage: "MCP request failed",
			wantLevel:   zapcore.InfoLevel,
			check: func(t *testing.T, fields map[string]any) {
				assert.Equal(t, int64(-32603), fields["error_code"])
				assert.Contains(t, fields["error_message"], "failed to fetch schema")
			},
		},
		{
			name:        "non-tool method",
			request:     `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`,
			response:    `{"jsonrpc":"2.0","id":3,"result":{"tools":[]}}`,
			wantMessage: "MCP request",
			wantLevel:   zapcore.DebugLevel,
			check: func(t *testing.T, fields map[string]any) {
				assert.Equal(t, "tools/list", fields["rpc_method"])
				assert.NotContains(t, fields, "tool")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := MCPRequestLogger(zap.New(core))(jsonRPCHandler(tt.response))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(tt.request)))

			assert.Equal(t, tt.response, rec.Body.String())
			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantMessage, entry.Message)
			assert.Equal(t, tt.wantLevel, entry.Level)
			tt.check(t, entry.ContextMap())
		})
	}
}

func TestMCPRequestLogger_RestoresBody(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	MCPRequestLogger(zap.NewNop())(next).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))

	assert.Equal(t, body, seen)
}

func TestMCPRequestLogger_NilLogger(t *testing.T) {
	next := jsonRPCHandler(`{}`)
	assert.NotNil(t, MCPRequestLogger(nil)(next))
}

func TestSanitizeArguments(t *testing.T) {
	long := strings.Repeat("x", 250)

	got := sanitizeArguments(map[string]any{
		"api_key":  "sk-secret",
		"Token":    "abc",
		"question": long,
		"limit":    float64(10),
		"refresh":  true,
	})

	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, "[REDACTED]", got["Token"])
	assert.Equal(t, strings.Repeat("x", 200)+"...", got["question"])
	assert.Equal(t, float64(10), got["limit"])
	assert.Equal(t, true, got["refresh"])
	assert.Nil(t, sanitizeArguments(nil))
}
