package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

// QueryToolDeps contains dependencies for query validation and execution tools.
type QueryToolDeps struct {
	QueryService services.QueryService
	Logger       *zap.Logger
}

// RegisterQueryTools registers tools for validating and executing semantic layer queries.
func RegisterQueryTools(s *server.MCPServer, deps *QueryToolDeps) {
	registerValidateQueryTool(s, deps)
	registerExecuteQueryTool(s, deps)
}

// prepareQuery decodes the "query" argument. A non-nil result is the error to return to the caller.
func prepareQuery(req mcp.CallToolRequest, deps *QueryToolDeps) (*services.PreparedQuery, *mcp.CallToolResult) {
	data, err := getObjectJSON(req, "query")
	if err != nil {
		return nil, NewErrorResult("invalid_parameters", err.Error())
	}
	prepared, err := deps.QueryService.Prepare(data)
	if err != nil {
		if code := ErrorCode(err); code != "" {
			return nil, NewErrorResult(code, err.Error())
		}
		return nil, NewErrorResult("invalid_query", err.Error())
	}
	return prepared, nil
}

type validateQueryResult struct {
	Valid       bool                      `json:"valid"`
	Query       *models.Query             `json:"query"`
	RemovedKeys []string                  `json:"removed_keys,omitempty"`
	Entities    []string                  `json:"entities"`
	JoinPath    []string                  `json:"join_path,omitempty"`
	Warning     string                    `json:"warning,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Suggestions []services.JoinSuggestion `json:"suggestions,omitempty"`
}

// registerValidateQueryTool checks a query without executing it.
func registerValidateQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"validate_query",
		mcp.WithDescription(
			"Validate a semantic layer query without executing it. "+
				"Checks the query structure, strips unsupported keys such as 'joins', screens filter values, "+
				"and verifies that every pair of referenced entities can be joined through known relationships.",
		),
		mcp.WithObject(
			"query",
			mcp.Required(),
			mcp.Description("Query object with measures, dimensions, filters, order, limit, offset and timeDimensions"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prepared, errResult := prepareQuery(req, deps)
		if errResult != nil {
			return errResult, nil
		}

		validation := deps.QueryService.CheckJoins(prepared.Query)
		result := validateQueryResult{
			Valid:       validation.Valid,
			Query:       prepared.Query,
			RemovedKeys: prepared.RemovedKeys,
			Entities:    prepared.Query.EntitySet(),
			JoinPath:    validation.Path,
			Suggestions: validation.Suggestions,
		}
		if validation.Warning {
			result.Warning = validation.Message
		}
		if !validation.Valid {
			result.Error = services.FormatValidationError(validation)
		}
		return jsonResult(result)
	})
}

type executeQueryResult struct {
	*models.ExecutionOutcome
	RemovedKeys []string `json:"removed_keys,omitempty"`
	Table       string   `json:"table,omitempty"`
}

// registerExecuteQueryTool runs a query with pre-validation and a single repair attempt.
func registerExecuteQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"execute_query",
		mcp.WithDescription(
			"Execute a semantic layer query and return the rows with the generated SQL. "+
				"Queries joining entities with no known relationship are rejected before execution. "+
				"When 'question' is given and the query fails, one automatic repair is attempted and "+
				"the response reports whether the repaired query was used (auto_fixed).",
		),
		mcp.WithObject(
			"query",
			mcp.Required(),
			mcp.Description("Query object with measures, dimensions, filters, order, limit, offset and timeDimensions"),
		),
		mcp.WithString(
			"question",
			mcp.Description("Optional: the natural language question the query answers; enables automatic repair"),
		),
		mcp.WithString(
			"format",
			mcp.Description("Optional: 'json' (default) returns rows only; 'markdown' or 'table' adds a rendered table"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prepared, errResult := prepareQuery(req, deps)
		if errResult != nil {
			return errResult, nil
		}

		format := trimString(getOptionalString(req, "format"))
		switch format {
		case "", "json", "markdown", "table":
		default:
			return NewErrorResult("invalid_parameters",
				fmt.Sprintf("format must be json, markdown or table, got %q", format)), nil
		}

		question := trimString(getOptionalString(req, "question"))
		outcome := deps.QueryService.Execute(ctx, prepared.Query, question)

		deps.Logger.Info("execute_query completed",
			zap.Bool("success", outcome.Success),
			zap.String("error_type", string(outcome.FailureKind)),
			zap.String("recovery", string(outcome.Recovery)),
			zap.Int("rows", outcome.RowCount))

		result := executeQueryResult{ExecutionOutcome: outcome, RemovedKeys: prepared.RemovedKeys}
		if outcome.Success {
			columns := services.ResultColumns(outcome.Query, outcome.Rows)
			switch format {
			case "markdown":
				result.Table = services.FormatResultsAsMarkdown(outcome.Rows, columns)
			case "table":
				result.Table = services.FormatResultsAsTable(outcome.Rows, columns)
			}
		}
		return jsonResult(result)
	})
}
