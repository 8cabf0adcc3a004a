package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/multierr"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/loader"
	"github.com/NERVsystems/osmxml/pkg/osm"
)

const maxValidateSources = 20

// FetchTool returns a tool definition for downloading an area
func (r *Registry) FetchTool() mcp.Tool {
	return r.factory.CreateBBoxTool("osm_fetch",
		"Download every element inside a bounding box from the OSM API or Overpass and keep the parsed document in memory. "+
			"The returned source string can be passed to the other tools.",
		mcp.WithString("upstream",
			mcp.Description("Where to download from"),
			mcp.Enum("api", "overpass"),
			mcp.DefaultString("api"),
		),
	)
}

// HandleFetch loads a bounding box through the cache
func (r *Registry) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_fetch")

	b, err := core.ParseBBoxWithLog(req, logger, core.MaxBBoxArea)
	if err != nil {
		return toMCPError(err).ToMCPResult(), nil
	}

	var src loader.Source
	switch upstream := mcp.ParseString(req, "upstream", "api"); upstream {
	case "api":
		src = loader.APISource(b)
	case "overpass":
		src = loader.OverpassSource(b)
	default:
		return core.NewValidationError(core.ErrInvalidParameter, "unknown upstream "+upstream).
			WithSuggestions("api", "overpass").
			ToMCPResult(), nil
	}

	_, cached := r.models.Peek(src)
	m, err := r.models.Get(ctx, src)
	if err != nil {
		return errorResult(logger, "failed to fetch area", err), nil
	}

	return jsonResponse(logger, LoadOutput{
		Source: src.String(),
		Stats:  m.Stats(),
		Bounds: m.Bounds,
		Cached: cached,
	})
}

// ValidateResult is the outcome of a strict parse of one source
type ValidateResult struct {
	Source string     `json:"source"`
	Valid  bool       `json:"valid"`
	Stats  *osm.Stats `json:"stats,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ValidateOutput reports every source passed to osm_validate
type ValidateOutput struct {
	Results []ValidateResult `json:"results"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
}

// ValidateTool returns a tool definition for checking documents
func (r *Registry) ValidateTool() mcp.Tool {
	return mcp.NewTool("osm_validate",
		mcp.WithDescription("Strictly parse one or more documents in parallel and report the first malformed element of each. "+
			"Validated documents are not cached."),
		mcp.WithArray("sources",
			mcp.Required(),
			mcp.Description("Sources in the same form as the source parameter of osm_load"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// HandleValidate strictly parses several sources concurrently
func (r *Registry) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_validate")

	raw, _ := req.GetArguments()["sources"].([]any)
	if len(raw) == 0 {
		return core.NewError(core.ErrMissingParameter, "sources is required").ToMCPResult(), nil
	}
	if len(raw) > maxValidateSources {
		return core.NewValidationError(core.ErrInvalidParameter, "too many sources").
			WithGuidance("Validate at most 20 sources per call").
			ToMCPResult(), nil
	}

	srcs := make([]loader.Source, len(raw))
	for i, v := range raw {
		s, _ := v.(string)
		src, res := r.parseSource(s)
		if res != nil {
			return res, nil
		}
		srcs[i] = src
	}

	maps, err := r.loader.WithParseOptions(osm.WithStrict(true)).LoadAll(ctx, srcs)
	// Combined errors keep source order and skip the sources that loaded
	errs := multierr.Errors(err)

	out := ValidateOutput{Results: make([]ValidateResult, len(srcs))}
	for i, src := range srcs {
		res := ValidateResult{Source: src.String()}
		if m := maps[i]; m != nil {
			stats := m.Stats()
			res.Valid = true
			res.Stats = &stats
			out.Valid++
		} else {
			if len(errs) > 0 {
				res.Error = errs[0].Error()
				errs = errs[1:]
			}
			out.Invalid++
		}
		out.Results[i] = res
	}

	logger.Info("validated documents", "valid", out.Valid, "invalid", out.Invalid)
	return jsonResponse(logger, out)
}
