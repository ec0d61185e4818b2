package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/semantic"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

// MetaSource serves semantic layer metadata. Implemented by *semantic.MetaCache.
type MetaSource interface {
	Get(ctx context.Context) (*semantic.Meta, error)
	SchemaContext(ctx context.Context) (string, error)
	Invalidate()
}

// SchemaToolDeps contains dependencies for schema and relationship tools.
type SchemaToolDeps struct {
	Meta   MetaSource
	Graphs services.GraphSource
	Logger *zap.Logger
}

// RegisterSchemaTools registers tools for schema discovery.
func RegisterSchemaTools(s *server.MCPServer, deps *SchemaToolDeps) {
	registerGetSchemaTool(s, deps)
	registerListRelationshipsTool(s, deps)
}

type getSchemaResult struct {
	Cubes         []semantic.CubeSummary `json:"cubes"`
	Count         int                    `json:"count"`
	SchemaContext string                 `json:"schema_context,omitempty"`
}

// registerGetSchemaTool exposes the semantic layer's cubes, measures and dimensions.
func registerGetSchemaTool(s *server.MCPServer, deps *SchemaToolDeps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(
			"Return the available semantic layer schema: cubes with their measures, dimensions and declared joins. "+
				"Use this to discover what data is available before writing a query. "+
				"Members are referenced in queries as Cube.member.",
		),
		mcp.WithBoolean(
			"include_context",
			mcp.Description("If true, also return the schema formatted as prompt context (default: false)"),
		),
		mcp.WithBoolean(
			"refresh",
			mcp.Description("If true, bypass the metadata cache (default: false)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if refresh, _ := getOptionalBool(req, "refresh"); refresh {
			deps.Meta.Invalidate()
		}

		meta, err := deps.Meta.Get(ctx)
		if err != nil {
			deps.Logger.Error("Failed to fetch semantic layer metadata", zap.Error(err))
			return nil, fmt.Errorf("failed to fetch schema: %w", err)
		}

		summaries := meta.Summaries()
		result := getSchemaResult{Cubes: summaries, Count: len(summaries)}
		if include, _ := getOptionalBool(req, "include_context"); include {
			result.SchemaContext = semantic.FormatMetaForLLM(meta)
		}
		return jsonResult(result)
	})
}
