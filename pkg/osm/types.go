// Package osm parses OpenStreetMap XML documents into an in-memory map model.
//
// A document is consumed in a single pass over a stream of XML tokens. Each
// top-level bounds, node, way and relation element becomes a typed record
// stored in a Map. Ways and relations refer to other elements through
// UnresolvedReference values that are looked up lazily with Map.Resolve.
package osm

import (
	"fmt"
	"strings"
)

// Tag is a free-form key/value pair attached to a node, way or relation.
type Tag struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// Tags keeps tags in document order. Keys are not unique.
type Tags []Tag

// Find returns the value of the first tag with the given key.
func (t Tags) Find(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Val, true
		}
	}
	return "", false
}

// Map returns the tags as a map. Later duplicates do not override the first value.
func (t Tags) Map() map[string]string {
	m := make(map[string]string, len(t))
	for _, tag := range t {
		if _, ok := m[tag.Key]; !ok {
			m[tag.Key] = tag.Val
		}
	}
	return m
}

// Bounds is the rectangular extent declared by a document.
type Bounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// Node is a single geographic point.
type Node struct {
	ID   int64   `json:"id"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Tags Tags    `json:"tags,omitempty"`
}

// Way is an ordered list of node references.
type Way struct {
	ID    int64                 `json:"id"`
	Tags  Tags                  `json:"tags,omitempty"`
	Nodes []UnresolvedReference `json:"nodes"`
}

// IsClosed reports whether the way's first and last node references are equal.
func (w *Way) IsClosed() bool {
	if len(w.Nodes) == 0 {
		return false
	}
	return w.Nodes[0] == w.Nodes[len(w.Nodes)-1]
}

// Relation groups nodes, ways and other relations under role names.
type Relation struct {
	ID      int64    `json:"id"`
	Tags    Tags     `json:"tags,omitempty"`
	Members []Member `json:"members"`
}

// ElementKind is the kind of element an identifier refers to.
// Node, way and relation identifiers live in separate namespaces.
type ElementKind int

const (
	KindNode ElementKind = iota + 1
	KindWay
	KindRelation
)

// ParseElementKind parses a member type attribute, ignoring case.
func ParseElementKind(s string) (ElementKind, bool) {
	switch strings.ToLower(s) {
	case "node":
		return KindNode, true
	case "way":
		return KindWay, true
	case "relation":
		return KindRelation, true
	}
	return 0, false
}

func (k ElementKind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	}
	return fmt.Sprintf("ElementKind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k ElementKind) MarshalText() ([]byte, error) {
	switch k {
	case KindNode, KindWay, KindRelation:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("invalid element kind %d", int(k))
}

// UnmarshalText decodes a kind name.
func (k *ElementKind) UnmarshalText(b []byte) error {
	kind, ok := ParseElementKind(string(b))
	if !ok {
		return fmt.Errorf("invalid element kind %q", b)
	}
	*k = kind
	return nil
}

// UnresolvedReference identifies an element of a given kind that has not been
// checked against a loaded Map.
type UnresolvedReference struct {
	Kind ElementKind `json:"type"`
	ID   int64       `json:"ref"`
}

// NodeRef returns a reference to the node with the given id.
func NodeRef(id int64) UnresolvedReference {
	return UnresolvedReference{Kind: KindNode, ID: id}
}

// WayRef returns a reference to the way with the given id.
func WayRef(id int64) UnresolvedReference {
	return UnresolvedReference{Kind: KindWay, ID: id}
}

// RelationRef returns a reference to the relation with the given id.
func RelationRef(id int64) UnresolvedReference {
	return UnresolvedReference{Kind: KindRelation, ID: id}
}

func (r UnresolvedReference) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

// Member is a role-annotated reference from a relation. The member's type is
// the kind of its reference.
type Member struct {
	Ref  UnresolvedReference `json:"ref"`
	Role string              `json:"role"`
}

// Kind returns the type of the referenced element.
func (m Member) Kind() ElementKind {
	return m.Ref.Kind
}

// ReferenceKind tells which field of a Reference is set.
type ReferenceKind int

const (
	Unresolved ReferenceKind = iota
	ResolvedNode
	ResolvedWay
	ResolvedRelation
)

func (k ReferenceKind) String() string {
	switch k {
	case ResolvedNode:
		return "node"
	case ResolvedWay:
		return "way"
	case ResolvedRelation:
		return "relation"
	}
	return "unresolved"
}

// Reference is the result of resolving an UnresolvedReference against a Map.
// The pointers borrow records owned by the Map and must not be modified.
type Reference struct {
	Kind     ReferenceKind
	Node     *Node
	Way      *Way
	Relation *Relation
}

// Resolved reports whether the reference points at a loaded element.
func (r Reference) Resolved() bool {
	return r.Kind != Unresolved
}
