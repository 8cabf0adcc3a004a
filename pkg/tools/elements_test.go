package tools

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/NERVsystems/osmxml/pkg/core"
)

func TestHandleResolve(t *testing.T) {
	r, path := newTestRegistry(t)

	tests := []struct {
		name     string
		typ      string
		id       int64
		wantType string
		code     core.ErrorCode
	}{
		{name: "node", typ: "node", id: 1, wantType: "node"},
		{name: "way", typ: "way", id: 10, wantType: "way"},
		{name: "relation", typ: "relation", id: 20, wantType: "relation"},
		{name: "separate namespaces", typ: "way", id: 1, code: core.ErrNotFound},
		{name: "skipped node", typ: "node", id: 4, code: core.ErrNotFound},
		{name: "dangling reference", typ: "node", id: 99, code: core.ErrNotFound},
		{name: "unknown type", typ: "area", id: 1, code: core.ErrInvalidParameter},
		{name: "missing id", typ: "node", code: core.ErrMissingParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"source": path, "type": tt.typ}
			if tt.id != 0 {
				args["id"] = tt.id
			}
			res := callTool(t, r.HandleResolve, args)

			if tt.code != "" {
				if code := errorCode(t, res); code != string(tt.code) {
					t.Errorf("code = %s, want %s", code, tt.code)
				}
				return
			}

			AssertSuccessResult(t, res, "osm_resolve failed")
			var out ResolveOutput
			if err := ParseResultJSON(res, &out); err != nil {
				t.Fatal(err)
			}
			if out.Type != tt.wantType || out.ID != tt.id {
				t.Errorf("got %s %d, want %s %d", out.Type, out.ID, tt.wantType, tt.id)
			}
		})
	}
}

func TestHandleResolveEdgeIDs(t *testing.T) {
	r, _ := newTestRegistry(t)

	path := filepath.Join(t.TempDir(), "ids.osm")
	doc := `<osm><node id="0" lat="1" lon="1"/><node id="9007199254740993" lat="2" lon="2"/></osm>`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		id   any
		want int64
	}{
		{"zero", float64(0), 0},
		{"string beyond exact float range", "9007199254740993", 9007199254740993},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, r.HandleResolve, map[string]any{"source": path, "type": "node", "id": tt.id})
			AssertSuccessResult(t, res, "osm_resolve failed")

			var out ResolveOutput
			if err := ParseResultJSON(res, &out); err != nil {
				t.Fatal(err)
			}
			if out.ID != tt.want || out.Node == nil || out.Node.ID != tt.want {
				t.Errorf("got %+v, want node %d", out, tt.want)
			}
		})
	}
}

func TestHandleResolveWayIsArea(t *testing.T) {
	r, path := newTestRegistry(t)

	res := callTool(t, r.HandleResolve, map[string]any{"source": path, "type": "way", "id": 10})
	var out ResolveOutput
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	if out.Way == nil || len(out.Way.Nodes) != 4 {
		t.Fatalf("way = %+v", out.Way)
	}
	if out.IsArea == nil || !*out.IsArea {
		t.Error("building way should be an area")
	}
}

func TestHandleWayGeometry(t *testing.T) {
	r, path := newTestRegistry(t)

	res := callTool(t, r.HandleWayGeometry, map[string]any{"source": path, "id": 11})
	AssertSuccessResult(t, res, "osm_way_geometry failed")

	var out WayGeometryOutput
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Points) != 2 || out.Points[0].ID != 1 || out.Points[1].ID != 2 {
		t.Errorf("points = %+v", out.Points)
	}
	if !slices.Equal(out.Missing, []int64{99}) {
		t.Errorf("missing = %v", out.Missing)
	}
	if out.Closed || out.IsArea {
		t.Errorf("residential road should be an open line: %+v", out)
	}
	if out.BBox == nil || out.BBox.MinLat != 54.01 || out.BBox.MaxLon != 12.03 {
		t.Errorf("bbox = %+v", out.BBox)
	}

	decoded, err := core.DecodePolyline(out.Polyline)
	if err != nil {
		t.Fatalf("polyline %q: %v", out.Polyline, err)
	}
	if len(decoded) != len(out.Points) {
		t.Errorf("polyline has %d points, want %d", len(decoded), len(out.Points))
	}
}

func TestHandleWayGeometryClosed(t *testing.T) {
	r, path := newTestRegistry(t)

	res := callTool(t, r.HandleWayGeometry, map[string]any{"source": path, "id": 10})
	var out WayGeometryOutput
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Points) != 4 || !out.Closed || !out.IsArea {
		t.Errorf("geometry = %+v", out)
	}

	res = callTool(t, r.HandleWayGeometry, map[string]any{"source": path, "id": 20})
	if code := errorCode(t, res); code != string(core.ErrNotFound) {
		t.Errorf("code = %s, want %s", code, core.ErrNotFound)
	}
}

func TestHandleRelationMembers(t *testing.T) {
	r, path := newTestRegistry(t)

	res := callTool(t, r.HandleRelationMembers, map[string]any{"source": path, "id": 20})
	AssertSuccessResult(t, res, "osm_relation_members failed")

	var out RelationMembersOutput
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	want := []MemberInfo{
		{Type: "way", Ref: 10, Role: "outer", Resolved: true, Name: "Hall"},
		{Type: "way", Ref: 404, Role: "inner"},
		{Type: "node", Ref: 1, Role: "label", Resolved: true, Name: "Corner"},
	}
	if !slices.Equal(out.Members, want) {
		t.Errorf("members = %+v", out.Members)
	}
	if out.Total != 3 || out.Missing != 1 {
		t.Errorf("total = %d, missing = %d", out.Total, out.Missing)
	}
}

func TestHandleRelationMembersRole(t *testing.T) {
	r, path := newTestRegistry(t)

	res := callTool(t, r.HandleRelationMembers, map[string]any{"source": path, "id": 20, "role": "inner"})
	var out RelationMembersOutput
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || out.Members[0].Ref != 404 || out.Missing != 1 {
		t.Errorf("filtered = %+v", out)
	}

	res = callTool(t, r.HandleRelationMembers, map[string]any{"source": path, "id": 10})
	if code := errorCode(t, res); code != string(core.ErrNotFound) {
		t.Errorf("code = %s, want %s", code, core.ErrNotFound)
	}
}
