package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/core"
)

// ErrorResponse returns a plain text error result
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// jsonResponse marshals v into a text result
func jsonResponse(logger *slog.Logger, v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toMCPError maps errors from validation, loading and parsing to a coded
// tool error
func toMCPError(err error) *core.MCPError {
	var ve core.ValidationError
	if errors.As(err, &ve) {
		return core.NewError(core.ErrorCode(ve.Code), ve.Message).WithGuidance(ve.Guidance)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewError(core.ErrServiceTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return core.NewError(core.ErrServiceUnavailable, err.Error())
	}
	return core.ParseError(err)
}

// errorResult logs err and converts it to an error result
func errorResult(logger *slog.Logger, msg string, err error) *mcp.CallToolResult {
	mcpErr := toMCPError(err)
	logger.Error(msg, "error", err, "code", mcpErr.Code)
	return mcpErr.ToMCPResult()
}

func notFound(what string, id int64) *mcp.CallToolResult {
	return core.NewError(core.ErrNotFound, fmt.Sprintf("%s %d not found in document", what, id)).
		WithGuidance("Check the id, or load a larger area that contains the element").
		ToMCPResult()
}

// ResultText returns the first text content of a tool result
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
