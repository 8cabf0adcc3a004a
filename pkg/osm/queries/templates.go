// Package queries builds Overpass QL queries that return OSM XML.
package queries

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// BBox is a query area in degrees.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// overpass expects (south,west,north,east)
func (b BBox) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", coord(b.MinLat), coord(b.MinLon), coord(b.MaxLat), coord(b.MaxLon))
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// OverpassBuilder provides a fluent interface for building Overpass queries.
// Queries always request XML output so the result can be fed to osm.Parse.
type OverpassBuilder struct {
	timeout  int
	elements []string
	recurse  bool
	output   string
}

// NewOverpassBuilder creates a new Overpass query builder
func NewOverpassBuilder() *OverpassBuilder {
	return &OverpassBuilder{}
}

// WithTimeout sets the server-side timeout in seconds
func (b *OverpassBuilder) WithTimeout(seconds int) *OverpassBuilder {
	b.timeout = seconds
	return b
}

// WithNodeInBbox adds a node filter within a bounding box
func (b *OverpassBuilder) WithNodeInBbox(bbox BBox, tags map[string]string) *OverpassBuilder {
	b.addElement("node", bbox, tags)
	return b
}

// WithWayInBbox adds a way filter within a bounding box
func (b *OverpassBuilder) WithWayInBbox(bbox BBox, tags map[string]string) *OverpassBuilder {
	b.addElement("way", bbox, tags)
	return b
}

// WithRelationInBbox adds a relation filter within a bounding box
func (b *OverpassBuilder) WithRelationInBbox(bbox BBox, tags map[string]string) *OverpassBuilder {
	b.addElement("relation", bbox, tags)
	return b
}

// WithRecurseDown includes the members of matched ways and relations, so
// way node references can be resolved in the returned document.
func (b *OverpassBuilder) WithRecurseDown() *OverpassBuilder {
	b.recurse = true
	return b
}

// WithOutput sets the verbosity of the out statement (default "body").
// Common values are "body", "meta" and "skel".
func (b *OverpassBuilder) WithOutput(verbosity string) *OverpassBuilder {
	b.output = verbosity
	return b
}

// Build returns the complete Overpass query string.
func (b *OverpassBuilder) Build() string {
	var buf strings.Builder
	buf.WriteString("[out:xml]")
	if b.timeout > 0 {
		fmt.Fprintf(&buf, "[timeout:%d]", b.timeout)
	}
	buf.WriteString(";(")
	for _, e := range b.elements {
		buf.WriteString(e)
	}
	buf.WriteString(");")
	if b.recurse {
		buf.WriteString("(._;>;);")
	}
	out := b.output
	if out == "" {
		out = "body"
	}
	fmt.Fprintf(&buf, "out %s;", out)
	return buf.String()
}

// addElement adds a filter statement. Tags are emitted in key order so
// equal filters always produce the same query.
func (b *OverpassBuilder) addElement(kind string, bbox BBox, tags map[string]string) {
	var query strings.Builder
	query.WriteString(kind)

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := tags[key]
		if value == "" || value == "*" {
			// Just check for the presence of the key
			fmt.Fprintf(&query, "[%s]", strconv.Quote(key))
		} else {
			fmt.Fprintf(&query, "[%s=%s]", strconv.Quote(key), strconv.Quote(value))
		}
	}

	fmt.Fprintf(&query, "(%s);", bbox)
	b.elements = append(b.elements, query.String())
}
