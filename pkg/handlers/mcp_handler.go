package handlers

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/mcp"
	"github.com/ekaya-inc/ekaya-semantic/pkg/middleware"
)

// MCPHandler serves the MCP tools over streamable HTTP at /mcp.
type MCPHandler struct {
	httpServer *server.StreamableHTTPServer
	logger     *zap.Logger
}

// NewMCPHandler creates a new MCP handler from an MCP server.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		httpServer: mcpServer.NewStreamableHTTPServer(),
		logger:     logger,
	}
}

// RegisterRoutes registers the MCP endpoint. Non-POST requests are rejected before
// the JSON-RPC exchange is logged.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux) {
	logged := middleware.MCPRequestLogger(h.logger.Named("mcp-rpc"))(h.httpServer)
	mux.Handle("/mcp", requirePOST(logged))
}

// requirePOST answers anything but POST with 405; JSON-RPC over streamable HTTP is POST only.
func requirePOST(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "MCP requests must use POST")
			return
		}
		next.ServeHTTP(w, r)
	})
}
