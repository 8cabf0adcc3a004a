package core

import (
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/osm"
)

func TestValidateBBox(t *testing.T) {
	tests := []struct {
		name string
		box  osm.Bounds
		code ErrorCode
	}{
		{"valid", osm.Bounds{MinLat: 54.08, MinLon: 12.24, MaxLat: 54.09, MaxLon: 12.25}, ""},
		{"degenerate point", osm.Bounds{MinLat: 1, MinLon: 1, MaxLat: 1, MaxLon: 1}, ""},
		{"swapped latitude", osm.Bounds{MinLat: 2, MinLon: 0, MaxLat: 1, MaxLon: 1}, ErrInvalidBBox},
		{"swapped longitude", osm.Bounds{MinLat: 0, MinLon: 2, MaxLat: 1, MaxLon: 1}, ErrInvalidBBox},
		{"latitude out of range", osm.Bounds{MinLat: -91, MinLon: 0, MaxLat: 1, MaxLon: 1}, ErrInvalidLatitude},
		{"longitude out of range", osm.Bounds{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 181}, ErrInvalidLongitude},
		{"too large", osm.Bounds{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}, ErrBBoxTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBBox(tt.box, MaxBBoxArea)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve ValidationError
			if !errors.As(err, &ve) || ve.Code != string(tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestValidateBBoxWithoutAreaLimit(t *testing.T) {
	if err := ValidateBBox(osm.Bounds{MinLat: -10, MinLon: -10, MaxLat: 10, MaxLon: 10}, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func request(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "test",
			Arguments: args,
		},
	}
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox(request(map[string]any{
		"min_lat": 54.08, "min_lon": 12.24, "max_lat": 54.09, "max_lon": 12.25,
	}), MaxBBoxArea)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.MinLat != 54.08 || b.MaxLon != 12.25 {
		t.Errorf("bbox = %+v", b)
	}

	if _, err := ParseBBox(request(map[string]any{"min_lat": 1.0}), MaxBBoxArea); err == nil {
		t.Error("expected error for missing edges")
	}
}

func TestParseElementRef(t *testing.T) {
	ref, err := ParseElementRef(request(map[string]any{"type": "Way", "id": float64(26659127)}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != osm.WayRef(26659127) {
		t.Errorf("ref = %v", ref)
	}

	tests := []struct {
		name string
		args map[string]any
		code ErrorCode
	}{
		{"missing type", map[string]any{"id": 1.0}, ErrMissingParameter},
		{"unknown type", map[string]any{"type": "area", "id": 1.0}, ErrInvalidParameter},
		{"missing id", map[string]any{"type": "node"}, ErrMissingParameter},
		{"null id", map[string]any{"type": "node", "id": nil}, ErrMissingParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseElementRef(request(tt.args))
			var mcpErr *MCPError
			if !errors.As(err, &mcpErr) || mcpErr.Code != string(tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestParseElementID(t *testing.T) {
	tests := []struct {
		name string
		id   any
		want int64
		code ErrorCode
	}{
		{name: "zero", id: float64(0), want: 0},
		{name: "negative", id: float64(-7), want: -7},
		{name: "json number", id: float64(26659127), want: 26659127},
		{name: "int", id: 42, want: 42},
		{name: "large string", id: "9007199254740993", want: 9007199254740993},
		{name: "padded string", id: " 12 ", want: 12},
		{name: "fraction", id: 1.5, code: ErrInvalidParameter},
		{name: "beyond exact range", id: float64(1 << 60), code: ErrInvalidParameter},
		{name: "not a number", id: "abc", code: ErrInvalidParameter},
		{name: "bool", id: true, code: ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseElementID(request(map[string]any{"id": tt.id}))
			if tt.code != "" {
				var mcpErr *MCPError
				if !errors.As(err, &mcpErr) || mcpErr.Code != string(tt.code) {
					t.Errorf("expected %s, got %v", tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.want {
				t.Errorf("id = %d, want %d", id, tt.want)
			}
		})
	}
}
