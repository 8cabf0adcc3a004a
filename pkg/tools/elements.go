package tools

import (
	"context"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/osm"
)

// elementID reads the required "id" parameter
func elementID(req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	id, err := core.ParseElementID(req)
	if err != nil {
		return 0, toMCPError(err).ToMCPResult()
	}
	return id, nil
}

// ResolveOutput is a single element looked up by reference
type ResolveOutput struct {
	Type     string        `json:"type"`
	ID       int64         `json:"id"`
	Node     *osm.Node     `json:"node,omitempty"`
	Way      *osm.Way      `json:"way,omitempty"`
	Relation *osm.Relation `json:"relation,omitempty"`
	IsArea   *bool         `json:"is_area,omitempty"`
}

// ResolveTool returns a tool definition for looking up an element
func (r *Registry) ResolveTool() mcp.Tool {
	return r.factory.CreateElementTool("osm_resolve",
		"Look up a node, way or relation of an OpenStreetMap XML document by id. "+
			"Node, way and relation ids are separate namespaces.")
}

// HandleResolve resolves one element reference
func (r *Registry) HandleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_resolve")

	ref, err := core.ParseElementRef(req)
	if err != nil {
		return toMCPError(err).ToMCPResult(), nil
	}

	m, _, res := r.model(ctx, req, logger)
	if res != nil {
		return res, nil
	}

	resolved := m.Resolve(ref)
	if !resolved.Resolved() {
		return notFound(ref.Kind.String(), ref.ID), nil
	}

	out := ResolveOutput{
		Type:     resolved.Kind.String(),
		ID:       ref.ID,
		Node:     resolved.Node,
		Way:      resolved.Way,
		Relation: resolved.Relation,
	}
	if resolved.Way != nil {
		area := r.classifier.IsPolygon(resolved.Way)
		out.IsArea = &area
	}
	return jsonResponse(logger, out)
}

// Point is a resolved way node
type Point struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WayGeometryOutput is the resolved shape of a way
type WayGeometryOutput struct {
	ID       int64       `json:"id"`
	Tags     osm.Tags    `json:"tags,omitempty"`
	Points   []Point     `json:"points"`
	Polyline string      `json:"polyline,omitempty"`
	Missing  []int64     `json:"missing,omitempty"`
	Closed   bool        `json:"closed"`
	IsArea   bool        `json:"is_area"`
	BBox     *osm.Bounds `json:"bbox,omitempty"`
}

// WayGeometryTool returns a tool definition for resolving way coordinates
func (r *Registry) WayGeometryTool() mcp.Tool {
	return r.factory.CreateDocumentTool("osm_way_geometry",
		"Resolve the node references of a way into ordered coordinates, also given as an encoded polyline. "+
			"Nodes missing from the document are listed separately.",
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Way id; pass ids beyond 2^53 as a decimal string"),
		),
	)
}

// HandleWayGeometry resolves the nodes of a way
func (r *Registry) HandleWayGeometry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_way_geometry")

	id, res := elementID(req)
	if res != nil {
		return res, nil
	}

	m, _, res := r.model(ctx, req, logger)
	if res != nil {
		return res, nil
	}

	w, ok := m.Ways[id]
	if !ok {
		return notFound("way", id), nil
	}

	nodes, missing := m.WayNodes(w)
	out := WayGeometryOutput{
		ID:      w.ID,
		Tags:    w.Tags,
		Points:  make([]Point, len(nodes)),
		Missing: missing,
		Closed:  w.IsClosed(),
		IsArea:  r.classifier.IsPolygon(w),
	}
	coords := make([]core.LatLon, len(nodes))
	for i, n := range nodes {
		out.Points[i] = Point{ID: n.ID, Lat: n.Lat, Lon: n.Lon}
		coords[i] = core.LatLon{Lat: n.Lat, Lon: n.Lon}
	}
	out.Polyline = core.EncodePolyline(coords)
	out.BBox = pointBounds(out.Points)

	if len(missing) > 0 {
		logger.Debug("way references missing nodes", "way", id, "missing", len(missing))
	}
	return jsonResponse(logger, out)
}

func pointBounds(points []Point) *osm.Bounds {
	if len(points) == 0 {
		return nil
	}
	b := osm.Bounds{
		MinLat: math.Inf(1), MinLon: math.Inf(1),
		MaxLat: math.Inf(-1), MaxLon: math.Inf(-1),
	}
	for _, p := range points {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return &b
}

// MemberInfo describes one relation member
type MemberInfo struct {
	Type     string `json:"type"`
	Ref      int64  `json:"ref"`
	Role     string `json:"role"`
	Resolved bool   `json:"resolved"`
	Name     string `json:"name,omitempty"`
}

// RelationMembersOutput lists the members of a relation
type RelationMembersOutput struct {
	ID      int64        `json:"id"`
	Tags    osm.Tags     `json:"tags,omitempty"`
	Members []MemberInfo `json:"members"`
	Total   int          `json:"total"`
	Missing int          `json:"missing"`
}

// RelationMembersTool returns a tool definition for listing relation members
func (r *Registry) RelationMembersTool() mcp.Tool {
	return r.factory.CreateDocumentTool("osm_relation_members",
		"List the members of a relation in order, with their roles and whether "+
			"each member is present in the document.",
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Relation id; pass ids beyond 2^53 as a decimal string"),
		),
		mcp.WithString("role",
			mcp.Description("Only list members with this role, e.g. outer or inner"),
		),
	)
}

// HandleRelationMembers resolves the members of a relation
func (r *Registry) HandleRelationMembers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "osm_relation_members")

	id, res := elementID(req)
	if res != nil {
		return res, nil
	}
	role, hasRole := req.GetArguments()["role"].(string)

	m, _, res := r.model(ctx, req, logger)
	if res != nil {
		return res, nil
	}

	rel, ok := m.Relations[id]
	if !ok {
		return notFound("relation", id), nil
	}

	out := RelationMembersOutput{
		ID:      rel.ID,
		Tags:    rel.Tags,
		Members: make([]MemberInfo, 0, len(rel.Members)),
	}
	for _, mem := range rel.Members {
		if hasRole && mem.Role != role {
			continue
		}
		info := MemberInfo{
			Type: mem.Kind().String(),
			Ref:  mem.Ref.ID,
			Role: mem.Role,
		}
		resolved := m.Resolve(mem.Ref)
		info.Resolved = resolved.Resolved()
		if !info.Resolved {
			out.Missing++
		}
		info.Name = memberName(resolved)
		out.Members = append(out.Members, info)
	}
	out.Total = len(out.Members)

	return jsonResponse(logger, out)
}

func memberName(ref osm.Reference) string {
	var tags osm.Tags
	switch ref.Kind {
	case osm.ResolvedNode:
		tags = ref.Node.Tags
	case osm.ResolvedWay:
		tags = ref.Way.Tags
	case osm.ResolvedRelation:
		tags = ref.Relation.Tags
	}
	name, _ := tags.Find("name")
	return name
}
