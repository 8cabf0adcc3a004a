package osm

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// ElementType is a recognized element name in an OSM XML document.
type ElementType int

const (
	ElementBounds ElementType = iota + 1
	ElementNode
	ElementWay
	ElementRelation
	ElementTag
	ElementNodeRef
	ElementMember
)

var elementNames = map[string]ElementType{
	"bounds":   ElementBounds,
	"node":     ElementNode,
	"way":      ElementWay,
	"relation": ElementRelation,
	"tag":      ElementTag,
	"nd":       ElementNodeRef,
	"member":   ElementMember,
}

// ParseElementType maps an element's local name to its type, ignoring case.
func ParseElementType(name string) (ElementType, error) {
	if t, ok := elementNames[strings.ToLower(name)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w <%s>", ErrUnknownElement, name)
}

func (t ElementType) String() string {
	switch t {
	case ElementBounds:
		return "bounds"
	case ElementNode:
		return "node"
	case ElementWay:
		return "way"
	case ElementRelation:
		return "relation"
	case ElementTag:
		return "tag"
	case ElementNodeRef:
		return "nd"
	case ElementMember:
		return "member"
	}
	return "unknown"
}

// findAttribute returns the value of the first attribute whose local name
// equals name. Attribute names are case-sensitive.
func findAttribute(name string, attrs []xml.Attr) (string, error) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, nil
		}
	}
	return "", &AttributeError{Name: name, Reason: ErrMissingAttribute}
}

func findFloat(name string, attrs []xml.Attr) (float64, error) {
	raw, err := findAttribute(name, attrs)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &AttributeError{Name: name, Value: raw, Reason: ErrUnparsableFloat, Err: err}
	}
	return v, nil
}

func findInt(name string, attrs []xml.Attr) (int64, error) {
	raw, err := findAttribute(name, attrs)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &AttributeError{Name: name, Value: raw, Reason: ErrUnparsableInt, Err: err}
	}
	return v, nil
}
