package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

// Server wraps the mcp-go MCPServer with the semantic query tools.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// ToolDeps contains everything the registered tools need.
type ToolDeps struct {
	Meta         tools.MetaSource
	Graphs       services.GraphSource
	QueryService services.QueryService
}

// NewServer creates a new MCP server instance. Tool calls are logged through a CallLogger.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(NewCallLogger(logger).Hooks()),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// RegisterTools registers health, get_schema, list_relationships, validate_query and execute_query.
func (s *Server) RegisterTools(version string, deps *ToolDeps) {
	tools.RegisterHealthTool(s.mcp, version, deps.Graphs)
	tools.RegisterSchemaTools(s.mcp, &tools.SchemaToolDeps{
		Meta:   deps.Meta,
		Graphs: deps.Graphs,
		Logger: s.logger,
	})
	tools.RegisterQueryTools(s.mcp, &tools.QueryToolDeps{
		QueryService: deps.QueryService,
		Logger:       s.logger,
	})
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
