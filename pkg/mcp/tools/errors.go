package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Errors the caller can act on are returned as a successful tool result carrying
// this payload, so the details reach the model instead of being swallowed by the client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable errors such as an invalid query object.
// Upstream outages should still be returned as Go errors.
//
// Example:
//
//	if len(q.Measures) == 0 && len(q.Dimensions) == 0 {
//	    return NewErrorResult("invalid_query", "query must have at least one dimension or measure"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
//
// Example:
//
//	return NewErrorResultWithDetails(
//	    "join_rejected",
//	    "No join path exists between Film and Address",
//	    validation.Suggestions,
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorCode maps a service error to the code reported to the caller.
// Returns empty string if the error is not one the caller can act on.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperrors.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, apperrors.ErrEntityNotFound):
		return "entity_not_found"
	case errors.Is(err, apperrors.ErrGraphNotBuilt):
		return "graph_not_built"
	default:
		return ""
	}
}
