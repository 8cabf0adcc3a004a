package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmxml/pkg/osm"
	"github.com/NERVsystems/osmxml/pkg/tracing"
)

// Source identifies where a document comes from
type Source struct {
	Kind string // tracing.SourceFile, tracing.SourceAPI or tracing.SourceOverpass
	Path string
	BBox osm.Bounds
}

// FileSource returns a source reading a local file
func FileSource(path string) Source {
	return Source{Kind: tracing.SourceFile, Path: path}
}

// APISource returns a source fetching an area from the OSM API map call
func APISource(b osm.Bounds) Source {
	return Source{Kind: tracing.SourceAPI, BBox: b}
}

// OverpassSource returns a source fetching an area from an Overpass server
func OverpassSource(b osm.Bounds) Source {
	return Source{Kind: tracing.SourceOverpass, BBox: b}
}

// ParseSource reads a source descriptor. "api:" and "overpass:" prefixes
// take a bbox in the OSM API order min_lon,min_lat,max_lon,max_lat.
// Anything else is a file path.
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{}, fmt.Errorf("empty source")
	}

	kind, rest, found := strings.Cut(s, ":")
	if !found || (kind != tracing.SourceAPI && kind != tracing.SourceOverpass) {
		return FileSource(s), nil
	}

	parts := strings.Split(rest, ",")
	if len(parts) != 4 {
		return Source{}, fmt.Errorf("bbox %q: want min_lon,min_lat,max_lon,max_lat", rest)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Source{}, fmt.Errorf("bbox %q: %w", rest, err)
		}
		v[i] = f
	}

	b := osm.Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	return Source{Kind: kind, BBox: b}, nil
}

// String returns the canonical descriptor, usable as a cache key
func (s Source) String() string {
	if s.Kind == tracing.SourceFile {
		return s.Path
	}
	return fmt.Sprintf("%s:%s", s.Kind, bboxParam(s.BBox))
}

// bboxParam formats a bbox the way the OSM API expects it
func bboxParam(b osm.Bounds) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return strings.Join([]string{f(b.MinLon), f(b.MinLat), f(b.MaxLon), f(b.MaxLat)}, ",")
}
