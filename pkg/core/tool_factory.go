package core

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// sourceDescription documents the "source" parameter shared by all tools
const sourceDescription = "Document to read: a path to an .osm or .osm.gz file, " +
	"api:min_lon,min_lat,max_lon,max_lat to fetch an area from the OSM API, " +
	"or overpass:min_lon,min_lat,max_lon,max_lat to fetch it from Overpass"

// ToolFactory creates tool definitions with standardized parameters
type ToolFactory struct {
	maxArea float64
}

// NewToolFactory creates a new tool factory. maxArea is the bbox size
// quoted in tool descriptions.
func NewToolFactory(maxArea float64) *ToolFactory {
	return &ToolFactory{maxArea: maxArea}
}

// CreateDocumentTool creates a tool that reads one document
func (f *ToolFactory) CreateDocumentTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	base := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description(sourceDescription),
		),
	}
	return mcp.NewTool(name, append(base, opts...)...)
}

// CreateElementTool creates a tool addressing one element of a document
func (f *ToolFactory) CreateElementTool(name, description string, kinds ...string) mcp.Tool {
	if len(kinds) == 0 {
		kinds = []string{"node", "way", "relation"}
	}
	return f.CreateDocumentTool(name, description,
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Element type"),
			mcp.Enum(kinds...),
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Element id; pass ids beyond 2^53 as a decimal string"),
		),
	)
}

// CreateBBoxTool creates a tool taking a bounding box
func (f *ToolFactory) CreateBBoxTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	areaDesc := "in decimal degrees"
	if f.maxArea > 0 {
		areaDesc += fmt.Sprintf(" (area at most %.2f square degrees)", f.maxArea)
	}

	base := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithNumber("min_lat", mcp.Required(), mcp.Description("Southern edge "+areaDesc)),
		mcp.WithNumber("min_lon", mcp.Required(), mcp.Description("Western edge "+areaDesc)),
		mcp.WithNumber("max_lat", mcp.Required(), mcp.Description("Northern edge "+areaDesc)),
		mcp.WithNumber("max_lon", mcp.Required(), mcp.Description("Eastern edge "+areaDesc)),
	}
	return mcp.NewTool(name, append(base, opts...)...)
}
