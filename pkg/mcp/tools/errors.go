package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable error information to the calling
// model as a successful tool result, ensuring error details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors that the caller should see
// and can potentially fix (e.g., invalid parameters, malformed schema
// JSON, unknown regulation identifiers).
//
// Do NOT use this for system failures (broken collaborators, internal
// errors) - those should still return Go errors.
//
// Example:
//
//	if schemaJSON == "" {
//	    return NewErrorResult("invalid_parameters", "parameter 'schema' cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewErrorResultWithDetails creates an error result with additional context.
// The details field can carry anything that helps the caller understand
// and correct the request.
//
// Example:
//
//	return NewErrorResultWithDetails(
//	    "unknown_regulation",
//	    "regulation \"SOX\" is not supported",
//	    map[string]any{"supported": models.ValidRegulations},
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
