package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
)

const maxLoggedArgumentLength = 200

var sensitiveArgumentKeywords = []string{"password", "secret", "token", "key", "credential"}

// MCPRequestLogger returns middleware that logs one line per MCP JSON-RPC exchange:
// the RPC method, the tool for tools/call, redacted arguments and any JSON-RPC error.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(body, &rpcReq); err != nil {
				logger.Debug("MCP request is not a JSON-RPC object", zap.Error(err))
			}

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			fields := []zap.Field{
				zap.String("request_id", RequestID(r.Context())),
				zap.String("rpc_method", rpcReq.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if rpcReq.Params.Name != "" {
				fields = append(fields,
					zap.String("tool", rpcReq.Params.Name),
					zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)))
			}

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err == nil && rpcResp.Error != nil {
				fields = append(fields,
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", logging.SanitizeMessage(rpcResp.Error.Message)))
				logger.Info("MCP request failed", fields...)
				return
			}
			logger.Debug("MCP request", fields...)
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder copies the response body while passing it through.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Flush keeps streamed MCP responses working through the recorder.
func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizeArguments redacts secret-looking keys and truncates long values.
// Structured values such as query objects are logged as compact JSON.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveArgument(k) {
			result[k] = "[REDACTED]"
			continue
		}

		switch val := v.(type) {
		case string:
			result[k] = logging.TruncateString(val, maxLoggedArgumentLength)
		case map[string]any, []any:
			encoded, err := json.Marshal(val)
			if err != nil {
				result[k] = "[unencodable]"
				continue
			}
			result[k] = logging.TruncateString(string(encoded), maxLoggedArgumentLength)
		default:
			result[k] = v
		}
	}
	return result
}

func isSensitiveArgument(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range sensitiveArgumentKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
