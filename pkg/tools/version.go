package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/version"
)

// GetVersionTool returns a tool definition for retrieving version information
func GetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the version and build information of the OSM XML MCP service"),
	)
}

// HandleGetVersion implements version information retrieval
func HandleGetVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResponse(slog.Default().With("tool", "get_version"), version.Info())
}
