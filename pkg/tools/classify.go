package tools

import (
	"context"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/osm"
)

// RuleInfo is one row of the area classification table
type RuleInfo struct {
	Key    string   `json:"key"`
	Policy string   `json:"policy"`
	Values []string `json:"values,omitempty"`
}

func ruleInfo(r osm.PolygonRule) RuleInfo {
	return RuleInfo{Key: r.Key, Policy: r.Policy.String(), Values: r.Values}
}

// ClassifyOutput explains an area or line decision
type ClassifyOutput struct {
	ID       int64      `json:"id,omitempty"`
	IsArea   bool       `json:"is_area"`
	Closed   bool       `json:"closed"`
	TagOnly  bool       `json:"tag_only"`
	AreaTags osm.Tags   `json:"area_tags"`
	Rules    []RuleInfo `json:"rules"`
}

func (r *Registry) classify(w *osm.Way, c osm.Classifier) ClassifyOutput {
	out := ClassifyOutput{
		ID:       w.ID,
		IsArea:   c.IsPolygon(w),
		Closed:   w.IsClosed(),
		TagOnly:  !c.ClosedLoop,
		AreaTags: osm.AreaTags(w),
		Rules:    []RuleInfo{},
	}
	if out.AreaTags == nil {
		out.AreaTags = osm.Tags{}
	}

	seen := make(map[string]bool)
	for _, tag := range w.Tags {
		if seen[tag.Key] {
			continue
		}
		if rule, ok := osm.LookupPolygonRule(tag.Key); ok {
			seen[tag.Key] = true
			out.Rules = append(out.Rules, ruleInfo(rule))
		}
	}
	return out
}

// ClassifyWayTool returns a tool definition for classifying a way
func (r *Registry) ClassifyWayTool() mcp.Tool {
	return r.factory.CreateDocumentTool("osm_classify_way",
		"Decide whether a way of an OpenStreetMap XML document is an area or a line, "+
			"and list the tags and rules behind the decision.",
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Way id; pass ids beyond 2^53 as a decimal string"),
		),
		mcp.WithBoolean("tag_only",
			mcp.Description("Ignore whether the way is a closed ring and look at tags only"),
		),
	)
}

// HandleClassifyWay classifies one way of a document
func (r *Registry) HandleClassifyWay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_classify_way")

	id, res := elementID(req)
	if res != nil {
		return res, nil
	}

	c := r.classifier
	if tagOnly, ok := req.GetArguments()["tag_only"].(bool); ok {
		c = osm.DefaultClassifier
		if tagOnly {
			c = osm.TagOnlyClassifier
		}
	}

	m, _, res := r.model(ctx, req, logger)
	if res != nil {
		return res, nil
	}

	w, ok := m.Ways[id]
	if !ok {
		return notFound("way", id), nil
	}
	return jsonResponse(logger, r.classify(w, c))
}

// ClassifyTagsTool returns a tool definition for classifying a tag set
func (r *Registry) ClassifyTagsTool() mcp.Tool {
	return mcp.NewTool("osm_classify_tags",
		mcp.WithDescription("Decide whether a way carrying the given tags would be an area, without loading a document"),
		mcp.WithObject("tags",
			mcp.Required(),
			mcp.Description(`Tag keys and values, e.g. {"building": "yes"}`),
		),
		mcp.WithBoolean("closed",
			mcp.Description("Whether the way's first and last nodes are the same"),
			mcp.DefaultBool(false),
		),
	)
}

// HandleClassifyTags classifies a synthetic way built from the given tags
func (r *Registry) HandleClassifyTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_classify_tags")

	raw, ok := req.GetArguments()["tags"].(map[string]any)
	if !ok {
		return core.NewError(core.ErrMissingParameter, "tags must be an object of key/value pairs").
			WithSuggestions(`{"building": "yes"}`, `{"highway": "residential"}`).
			ToMCPResult(), nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	w := &osm.Way{Tags: make(osm.Tags, 0, len(keys))}
	for _, k := range keys {
		var val string
		switch v := raw[k].(type) {
		case string:
			val = v
		case nil:
		default:
			val = fmt.Sprint(v)
		}
		w.Tags = append(w.Tags, osm.Tag{Key: k, Val: val})
	}

	if mcp.ParseBoolean(req, "closed", false) {
		w.Nodes = []osm.UnresolvedReference{osm.NodeRef(1), osm.NodeRef(2), osm.NodeRef(3), osm.NodeRef(1)}
	} else {
		w.Nodes = []osm.UnresolvedReference{osm.NodeRef(1), osm.NodeRef(2)}
	}

	return jsonResponse(logger, r.classify(w, r.classifier))
}

// PolygonRulesTool returns a tool definition for listing classification rules
func (r *Registry) PolygonRulesTool() mcp.Tool {
	return mcp.NewTool("osm_polygon_rules",
		mcp.WithDescription("List the tag rules used to decide whether a way is an area. "+
			"A rule accepts all values, only listed values, or all but listed values."),
		mcp.WithString("key",
			mcp.Description("Only show the rule for this tag key"),
		),
	)
}

// PolygonRulesOutput lists classification rules
type PolygonRulesOutput struct {
	Rules      []RuleInfo `json:"rules"`
	ClosedLoop bool       `json:"closed_loop"`
}

// HandlePolygonRules lists the classification table
func (r *Registry) HandlePolygonRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_polygon_rules")

	out := PolygonRulesOutput{ClosedLoop: r.classifier.ClosedLoop}
	if key := mcp.ParseString(req, "key", ""); key != "" {
		rule, ok := osm.LookupPolygonRule(key)
		if !ok {
			return core.NewError(core.ErrNotFound, fmt.Sprintf("no rule for key %q", key)).
				WithGuidance("Ways tagged with this key are classified by their other tags").
				ToMCPResult(), nil
		}
		out.Rules = []RuleInfo{ruleInfo(rule)}
		return jsonResponse(logger, out)
	}

	for _, key := range osm.PolygonRuleKeys() {
		rule, _ := osm.LookupPolygonRule(key)
		out.Rules = append(out.Rules, ruleInfo(rule))
	}
	return jsonResponse(logger, out)
}
