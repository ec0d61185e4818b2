package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

type healthResult struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	GraphBuilt    bool       `json:"graph_built"`
	Entities      int        `json:"entities,omitempty"`
	Relationships int        `json:"relationships,omitempty"`
	GraphBuiltAt  *time.Time `json:"graph_built_at,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and the state of the relationship graph.
func RegisterHealthTool(s *server.MCPServer, version string, graphs services.GraphSource) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and relationship graph state"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if graph := graphs.Graph(); graph != nil {
			builtAt := graph.BuiltAt()
			result.GraphBuilt = true
			result.Entities = len(graph.Entities())
			result.Relationships = len(graph.Relationships())
			result.GraphBuiltAt = &builtAt
		}
		return jsonResult(result)
	})
}
