// Package tools provides the OSM XML MCP tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmxml/pkg/cache"
	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/loader"
	"github.com/NERVsystems/osmxml/pkg/monitoring"
	"github.com/NERVsystems/osmxml/pkg/osm"
	"github.com/NERVsystems/osmxml/pkg/tracing"
)

// HandlerFunc is the signature of every tool handler
type HandlerFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Registry contains all tool definitions and the state their handlers share
type Registry struct {
	logger     *slog.Logger
	factory    *core.ToolFactory
	loader     *loader.Loader
	models     *cache.ModelCache
	classifier osm.Classifier
}

// NewRegistry creates a new tool registry. Models are read through the
// cache; strict loads go to the loader directly.
func NewRegistry(logger *slog.Logger, ld *loader.Loader, models *cache.ModelCache, classifier osm.Classifier) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:     logger,
		factory:    core.NewToolFactory(core.MaxBBoxArea),
		loader:     ld,
		models:     models,
		classifier: classifier,
	}
}

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     HandlerFunc
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version information for this server",
			Tool:        GetVersionTool(),
			Handler:     HandleGetVersion,
		},

		// Document tools
		{
			Name:        "osm_load",
			Description: "Parse an OSM XML document and report what it contains. Parameters: source (string), strict (boolean)",
			Tool:        r.LoadTool(),
			Handler:     r.HandleLoad,
		},
		{
			Name:        "osm_summary",
			Description: "Summarize a document: element counts, common tag keys, areas versus lines, dangling references. Parameters: source (string), top (number)",
			Tool:        r.SummaryTool(),
			Handler:     r.HandleSummary,
		},
		{
			Name:        "osm_fetch",
			Description: "Download a bounding box from the OSM API or Overpass. Parameters: min_lat, min_lon, max_lat, max_lon (number), upstream (string: api, overpass)",
			Tool:        r.FetchTool(),
			Handler:     r.HandleFetch,
		},
		{
			Name:        "osm_validate",
			Description: "Strictly parse several documents in parallel. Parameters: sources (array of strings)",
			Tool:        r.ValidateTool(),
			Handler:     r.HandleValidate,
		},
		{
			Name:        "model_cache",
			Description: "List or evict parsed documents held in memory. Parameters: action (string: list, evict, purge), source (string)",
			Tool:        r.ModelCacheTool(),
			Handler:     r.HandleModelCache,
		},

		// Element tools
		{
			Name:        "osm_resolve",
			Description: "Look up a node, way or relation by id. Parameters: source (string), type (string), id (number)",
			Tool:        r.ResolveTool(),
			Handler:     r.HandleResolve,
		},
		{
			Name:        "osm_way_geometry",
			Description: "Resolve the nodes of a way into ordered coordinates. Parameters: source (string), id (number)",
			Tool:        r.WayGeometryTool(),
			Handler:     r.HandleWayGeometry,
		},
		{
			Name:        "osm_relation_members",
			Description: "List the members of a relation and whether each is present in the document. Parameters: source (string), id (number), role (string)",
			Tool:        r.RelationMembersTool(),
			Handler:     r.HandleRelationMembers,
		},

		// Area classification tools
		{
			Name:        "osm_classify_way",
			Description: "Decide whether a way in a document is an area or a line. Parameters: source (string), id (number), tag_only (boolean)",
			Tool:        r.ClassifyWayTool(),
			Handler:     r.HandleClassifyWay,
		},
		{
			Name:        "osm_classify_tags",
			Description: "Decide whether a way with the given tags is an area. Parameters: tags (object), closed (boolean)",
			Tool:        r.ClassifyTagsTool(),
			Handler:     r.HandleClassifyTags,
		},
		{
			Name:        "osm_polygon_rules",
			Description: "List the tag rules used to classify ways as areas",
			Tool:        r.PolygonRulesTool(),
			Handler:     r.HandlePolygonRules,
		},
	}
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, r.wrapWithTracing(def.Name, def.Handler))
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing and
// request metrics
func (r *Registry) wrapWithTracing(toolName string, handler HandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("mcp.tool.%s", toolName),
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)

		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetAttributes(tracing.ErrorAttributes("handler", err)...)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(
			attribute.String(tracing.AttrMCPToolStatus, status),
			attribute.Int64(tracing.AttrMCPToolDuration, duration.Milliseconds()),
			attribute.Int(tracing.AttrMCPResultSize, resultSize),
		)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", duration.Milliseconds(),
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}
