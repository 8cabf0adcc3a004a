package tools

import (
	"testing"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/osm"
)

func TestHandleClassifyWay(t *testing.T) {
	r, path := newTestRegistry(t)

	tests := []struct {
		name     string
		args     map[string]any
		isArea   bool
		areaTags int
	}{
		{"building", map[string]any{"id": 10}, true, 1},
		{"building tag only", map[string]any{"id": 10, "tag_only": true}, true, 1},
		{"road", map[string]any{"id": 11}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["source"] = path
			res := callTool(t, r.HandleClassifyWay, tt.args)
			AssertSuccessResult(t, res, "osm_classify_way failed")

			var out ClassifyOutput
			if err := ParseResultJSON(res, &out); err != nil {
				t.Fatal(err)
			}
			if out.IsArea != tt.isArea {
				t.Errorf("is_area = %v, want %v", out.IsArea, tt.isArea)
			}
			if len(out.AreaTags) != tt.areaTags {
				t.Errorf("area tags = %v", out.AreaTags)
			}
		})
	}
}

func TestHandleClassifyWayRules(t *testing.T) {
	r, path := newTestRegistry(t)

	res := callTool(t, r.HandleClassifyWay, map[string]any{"source": path, "id": 11})
	var out ClassifyOutput
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Rules) != 1 || out.Rules[0].Key != "highway" || out.Rules[0].Policy != "whitelist" {
		t.Errorf("rules = %+v", out.Rules)
	}
}

func TestHandleClassifyTags(t *testing.T) {
	r, _ := newTestRegistry(t)

	tests := []struct {
		name   string
		args   map[string]any
		isArea bool
	}{
		{"building", map[string]any{"tags": map[string]any{"building": "yes"}}, true},
		{"building no", map[string]any{"tags": map[string]any{"building": "no"}}, false},
		{"open road", map[string]any{"tags": map[string]any{"highway": "residential"}}, false},
		{"service area", map[string]any{"tags": map[string]any{"highway": "services"}}, true},
		{"closed untagged ring", map[string]any{"tags": map[string]any{}, "closed": true}, true},
		{"unknown key", map[string]any{"tags": map[string]any{"surface": "asphalt"}}, false},
		{"natural coastline", map[string]any{"tags": map[string]any{"natural": "coastline"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, r.HandleClassifyTags, tt.args)
			AssertSuccessResult(t, res, "osm_classify_tags failed")

			var out ClassifyOutput
			if err := ParseResultJSON(res, &out); err != nil {
				t.Fatal(err)
			}
			if out.IsArea != tt.isArea {
				t.Errorf("is_area = %v, want %v", out.IsArea, tt.isArea)
			}
		})
	}
}

func TestHandleClassifyTagsMissing(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := callTool(t, r.HandleClassifyTags, map[string]any{"tags": "building=yes"})
	if code := errorCode(t, res); code != string(core.ErrMissingParameter) {
		t.Errorf("code = %s, want %s", code, core.ErrMissingParameter)
	}
}

func TestHandlePolygonRules(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := callTool(t, r.HandlePolygonRules, nil)
	AssertSuccessResult(t, res, "osm_polygon_rules failed")

	var out PolygonRulesOutput
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Rules) != len(osm.PolygonRuleKeys()) {
		t.Errorf("got %d rules, want %d", len(out.Rules), len(osm.PolygonRuleKeys()))
	}
	if !out.ClosedLoop {
		t.Error("default classifier treats closed rings as areas")
	}

	res = callTool(t, r.HandlePolygonRules, map[string]any{"key": "building"})
	if err := ParseResultJSON(res, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Rules) != 1 || out.Rules[0].Policy != "all" {
		t.Errorf("building rule = %+v", out.Rules)
	}

	res = callTool(t, r.HandlePolygonRules, map[string]any{"key": "surface"})
	if code := errorCode(t, res); code != string(core.ErrNotFound) {
		t.Errorf("code = %s, want %s", code, core.ErrNotFound)
	}
}
