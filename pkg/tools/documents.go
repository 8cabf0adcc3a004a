package tools

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/loader"
	"github.com/NERVsystems/osmxml/pkg/osm"
	"github.com/NERVsystems/osmxml/pkg/tracing"
)

const (
	defaultTopKeys = 10
	maxTopKeys     = 100
)

// source reads and validates the "source" parameter
func (r *Registry) source(req mcp.CallToolRequest) (loader.Source, *mcp.CallToolResult) {
	return r.parseSource(mcp.ParseString(req, "source", ""))
}

// parseSource validates one source string
func (r *Registry) parseSource(raw string) (loader.Source, *mcp.CallToolResult) {
	if raw == "" {
		return loader.Source{}, core.NewError(core.ErrMissingParameter, "source is required").
			WithSuggestions("data/map.osm", "api:12.24,54.08,12.25,54.09").
			ToMCPResult()
	}

	src, err := loader.ParseSource(raw)
	if err != nil {
		return loader.Source{}, core.NewValidationError(core.ErrInvalidParameter, err.Error()).ToMCPResult()
	}
	if src.Kind != tracing.SourceFile {
		if err := core.ValidateBBox(src.BBox, core.MaxBBoxArea); err != nil {
			return loader.Source{}, toMCPError(err).ToMCPResult()
		}
	}
	return src, nil
}

// model returns the parsed document named by the "source" parameter
func (r *Registry) model(ctx context.Context, req mcp.CallToolRequest, logger *slog.Logger) (*osm.Map, loader.Source, *mcp.CallToolResult) {
	src, res := r.source(req)
	if res != nil {
		return nil, src, res
	}

	m, err := r.models.Get(ctx, src)
	if err != nil {
		return nil, src, errorResult(logger, "failed to load document", err)
	}
	return m, src, nil
}

// LoadOutput describes a parsed document
type LoadOutput struct {
	Source string      `json:"source"`
	Stats  osm.Stats   `json:"stats"`
	Bounds *osm.Bounds `json:"bounds,omitempty"`
	Cached bool        `json:"cached"`
	Strict bool        `json:"strict,omitempty"`
}

// LoadTool returns a tool definition for loading a document
func (r *Registry) LoadTool() mcp.Tool {
	return r.factory.CreateDocumentTool("osm_load",
		"Parse an OpenStreetMap XML document and keep it in memory for the other tools. "+
			"Malformed elements are skipped unless strict is set, in which case the first one fails the load.",
		mcp.WithBoolean("strict",
			mcp.Description("Fail on the first malformed element instead of skipping it"),
			mcp.DefaultBool(false),
		),
	)
}

// HandleLoad parses a document, through the cache unless strict
func (r *Registry) HandleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_load")

	src, res := r.source(req)
	if res != nil {
		return res, nil
	}

	out := LoadOutput{Source: src.String()}

	var m *osm.Map
	var err error
	if mcp.ParseBoolean(req, "strict", false) {
		out.Strict = true
		m, err = r.loader.WithParseOptions(osm.WithStrict(true)).Load(ctx, src)
	} else {
		_, out.Cached = r.models.Peek(src)
		m, err = r.models.Get(ctx, src)
	}
	if err != nil {
		return errorResult(logger, "failed to load document", err), nil
	}

	out.Stats = m.Stats()
	out.Bounds = m.Bounds
	logger.Info("loaded document", "source", out.Source, "nodes", out.Stats.Nodes, "ways", out.Stats.Ways, "relations", out.Stats.Relations)
	return jsonResponse(logger, out)
}

// KeyCount is the number of elements carrying a tag key
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// SummaryOutput describes the contents of a document
type SummaryOutput struct {
	Source          string         `json:"source"`
	Stats           osm.Stats      `json:"stats"`
	Bounds          *osm.Bounds    `json:"bounds,omitempty"`
	Areas           int            `json:"areas"`
	Lines           int            `json:"lines"`
	ClosedWays      int            `json:"closed_ways"`
	TaggedNodes     int            `json:"tagged_nodes"`
	MissingWayNodes int            `json:"missing_way_nodes"`
	MissingMembers  int            `json:"missing_members"`
	RelationTypes   map[string]int `json:"relation_types,omitempty"`
	TopKeys         []KeyCount     `json:"top_keys"`
}

// SummaryTool returns a tool definition for summarizing a document
func (r *Registry) SummaryTool() mcp.Tool {
	return r.factory.CreateDocumentTool("osm_summary",
		"Summarize an OpenStreetMap XML document: element counts, the most common tag keys, "+
			"how many ways are areas, and how many references point outside the document.",
		mcp.WithNumber("top",
			mcp.Description("Number of tag keys to list (max 100)"),
			mcp.DefaultNumber(defaultTopKeys),
		),
	)
}

// HandleSummary computes document statistics
func (r *Registry) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_summary")

	top := int(mcp.ParseFloat64(req, "top", defaultTopKeys))
	if top <= 0 || top > maxTopKeys {
		return core.NewValidationError(core.ErrInvalidParameter, "top must be between 1 and 100").ToMCPResult(), nil
	}

	m, src, res := r.model(ctx, req, logger)
	if res != nil {
		return res, nil
	}

	out := SummaryOutput{
		Source:        src.String(),
		Stats:         m.Stats(),
		Bounds:        m.Bounds,
		RelationTypes: make(map[string]int),
	}

	keys := make(map[string]int)
	count := func(tags osm.Tags) {
		seen := make(map[string]bool, len(tags))
		for _, t := range tags {
			if !seen[t.Key] {
				seen[t.Key] = true
				keys[t.Key]++
			}
		}
	}

	for _, n := range m.Nodes {
		if len(n.Tags) > 0 {
			out.TaggedNodes++
		}
		count(n.Tags)
	}
	for _, w := range m.Ways {
		count(w.Tags)
		if w.IsClosed() {
			out.ClosedWays++
		}
		if r.classifier.IsPolygon(w) {
			out.Areas++
		} else {
			out.Lines++
		}
		_, missing := m.ResolveAll(w.Nodes)
		out.MissingWayNodes += missing
	}
	for _, rel := range m.Relations {
		count(rel.Tags)
		if typ, ok := rel.Tags.Find("type"); ok {
			out.RelationTypes[typ]++
		}
		for _, mem := range rel.Members {
			if !m.Resolve(mem.Ref).Resolved() {
				out.MissingMembers++
			}
		}
	}

	out.TopKeys = make([]KeyCount, 0, len(keys))
	for k, c := range keys {
		out.TopKeys = append(out.TopKeys, KeyCount{Key: k, Count: c})
	}
	slices.SortFunc(out.TopKeys, func(a, b KeyCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if len(out.TopKeys) > top {
		out.TopKeys = out.TopKeys[:top]
	}

	return jsonResponse(logger, out)
}

// ModelCacheTool returns a tool definition for managing cached documents
func (r *Registry) ModelCacheTool() mcp.Tool {
	return mcp.NewTool("model_cache",
		mcp.WithDescription("Manage parsed documents held in memory"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("list, evict or purge"),
			mcp.Enum("list", "evict", "purge"),
		),
		mcp.WithString("source",
			mcp.Description("Document to evict"),
		),
	)
}

// ModelCacheOutput lists cached documents
type ModelCacheOutput struct {
	Sources []string `json:"sources"`
	Evicted bool     `json:"evicted,omitempty"`
}

// HandleModelCache lists or drops cached documents
func (r *Registry) HandleModelCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "model_cache")

	var out ModelCacheOutput
	switch action := mcp.ParseString(req, "action", ""); action {
	case "list":
	case "evict":
		src, res := r.source(req)
		if res != nil {
			return res, nil
		}
		out.Evicted = r.models.Remove(src)
	case "purge":
		r.models.Purge()
	case "":
		return core.NewError(core.ErrMissingParameter, "action is required").
			WithSuggestions("list", "evict", "purge").ToMCPResult(), nil
	default:
		return core.NewValidationError(core.ErrInvalidParameter, "unknown action "+action).
			WithSuggestions("list", "evict", "purge").ToMCPResult(), nil
	}

	out.Sources = r.models.Keys()
	if out.Sources == nil {
		out.Sources = []string{}
	}
	return jsonResponse(logger, out)
}
