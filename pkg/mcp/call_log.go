package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
)

const maxPreviewLength = 200

// CallLogger writes one structured log line per MCP tool call.
type CallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewCallLogger creates a CallLogger.
func NewCallLogger(logger *zap.Logger) *CallLogger {
	return &CallLogger{logger: logger.Named("mcp-calls")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (c *CallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *CallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
}

func (c *CallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("elapsed", c.elapsed(id)),
		zap.Strings("arguments", argumentNames(req.Params.Arguments)),
	}
	if result != nil && result.IsError {
		fields = append(fields, zap.String("error", resultPreview(result)))
		c.logger.Info("MCP tool returned an error result", fields...)
		return
	}
	c.logger.Info("MCP tool call", fields...)
}

func (c *CallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	c.logger.Error("MCP tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Duration("elapsed", c.elapsed(id)),
		zap.String("error", logging.SanitizeError(err)))
}

func (c *CallLogger) elapsed(id any) time.Duration {
	if v, ok := c.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

// argumentNames lists argument keys only; values can carry filter literals.
func argumentNames(args any) []string {
	params, ok := args.(map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// resultPreview returns the error message of a structured error result, or a truncated
// preview of its first text content.
func resultPreview(result *mcplib.CallToolResult) string {
	for _, content := range result.Content {
		tc, ok := content.(mcplib.TextContent)
		if !ok {
			continue
		}
		var errResp struct {
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(tc.Text), &errResp) == nil && errResp.Message != "" {
			return logging.TruncateString(errResp.Message, maxPreviewLength)
		}
		return logging.TruncateString(tc.Text, maxPreviewLength)
	}
	return ""
}
