package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

type listRelationshipsResult struct {
	Entity        string                            `json:"entity,omitempty"`
	Relationships []models.Relationship             `json:"relationships"`
	Count         int                               `json:"count"`
	BySource      map[models.RelationshipSource]int `json:"by_source"`
	Path          []string                          `json:"path,omitempty"`
}

// registerListRelationshipsTool exposes the relationship graph used for join validation.
func registerListRelationshipsTool(s *server.MCPServer, deps *SchemaToolDeps) {
	tool := mcp.NewTool(
		"list_relationships",
		mcp.WithDescription(
			"List the entity relationships known to the join validator, with their source "+
				"(foreign_key, naming_pattern, llm_inference) and confidence. "+
				"Optionally restrict to one entity, or pass 'to' as well to get the shortest join path between two entities.",
		),
		mcp.WithString(
			"entity",
			mcp.Description("Optional: only relationships touching this entity"),
		),
		mcp.WithString(
			"to",
			mcp.Description("Optional: with 'entity', return the shortest join path to this entity"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		graph, err := services.CurrentGraph(deps.Graphs)
		if err != nil {
			return lookupError(err), nil
		}

		entity := trimString(getOptionalString(req, "entity"))
		to := trimString(getOptionalString(req, "to"))
		if to != "" && entity == "" {
			return NewErrorResult("invalid_parameters", "'to' requires 'entity'"), nil
		}

		result := listRelationshipsResult{Entity: entity, BySource: graph.CountBySource()}
		if entity == "" {
			result.Relationships = graph.Relationships()
		} else {
			if err := graph.RequireEntity(entity); err != nil {
				return lookupError(err), nil
			}
			result.Relationships = graph.RelationshipsFor(entity)
		}

		if to != "" {
			if err := graph.RequireEntity(to); err != nil {
				return lookupError(err), nil
			}
			result.Path = graph.ShortestPath(entity, to)
		}

		if result.Relationships == nil {
			result.Relationships = []models.Relationship{}
		}
		result.Count = len(result.Relationships)
		return jsonResult(result)
	})
}

// lookupError reports a graph lookup failure under its mapped error code.
func lookupError(err error) *mcp.CallToolResult {
	code := ErrorCode(err)
	if code == "" {
		code = "internal_error"
	}
	return NewErrorResult(code, err.Error())
}
