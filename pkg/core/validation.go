package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/osm"
)

// MaxBBoxArea is the largest area, in square degrees, the OSM API serves
// from its map call.
const MaxBBoxArea = 0.25

// ValidationError represents a validation error for coordinates or other values
type ValidationError struct {
	Code     string
	Message  string
	Guidance string
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidateCoords checks if latitude and longitude are within valid ranges
func ValidateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ValidationError{
			Code:     string(ErrInvalidLatitude),
			Message:  fmt.Sprintf("Latitude must be between -90 and 90, got %f", lat),
			Guidance: "Ensure latitude is in decimal degrees",
		}
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ValidationError{
			Code:     string(ErrInvalidLongitude),
			Message:  fmt.Sprintf("Longitude must be between -180 and 180, got %f", lon),
			Guidance: "Ensure longitude is in decimal degrees",
		}
	}
	return nil
}

// ValidateBBox checks that a bounding box is well formed and no larger
// than maxArea square degrees. A maxArea of zero disables the size check.
func ValidateBBox(b osm.Bounds, maxArea float64) error {
	if err := ValidateCoords(b.MinLat, b.MinLon); err != nil {
		return err
	}
	if err := ValidateCoords(b.MaxLat, b.MaxLon); err != nil {
		return err
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return ValidationError{
			Code:     string(ErrInvalidBBox),
			Message:  fmt.Sprintf("Bounding box minimum (%f,%f) exceeds maximum (%f,%f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon),
			Guidance: "Give the south-west corner as minimum and the north-east corner as maximum",
		}
	}
	if area := (b.MaxLat - b.MinLat) * (b.MaxLon - b.MinLon); maxArea > 0 && area > maxArea {
		return ValidationError{
			Code:     string(ErrBBoxTooLarge),
			Message:  fmt.Sprintf("Bounding box area %.4f exceeds the limit of %.2f square degrees", area, maxArea),
			Guidance: "Split the area into smaller boxes",
		}
	}
	return nil
}

// ParseBBox extracts and validates a bounding box from a CallToolRequest
func ParseBBox(req mcp.CallToolRequest, maxArea float64) (osm.Bounds, error) {
	b := osm.Bounds{
		MinLat: mcp.ParseFloat64(req, "min_lat", math.NaN()),
		MinLon: mcp.ParseFloat64(req, "min_lon", math.NaN()),
		MaxLat: mcp.ParseFloat64(req, "max_lat", math.NaN()),
		MaxLon: mcp.ParseFloat64(req, "max_lon", math.NaN()),
	}
	if err := ValidateBBox(b, maxArea); err != nil {
		return osm.Bounds{}, err
	}
	return b, nil
}

// ParseElementRef extracts an element reference from the "type" and "id"
// parameters of a CallToolRequest.
func ParseElementRef(req mcp.CallToolRequest) (osm.UnresolvedReference, error) {
	typ := mcp.ParseString(req, "type", "")
	if typ == "" {
		return osm.UnresolvedReference{}, NewError(ErrMissingParameter, "type is required").
			WithSuggestions("node", "way", "relation")
	}
	kind, ok := osm.ParseElementKind(typ)
	if !ok {
		return osm.UnresolvedReference{}, NewValidationError(ErrInvalidParameter, fmt.Sprintf("unknown element type %q", typ)).
			WithSuggestions("node", "way", "relation")
	}

	id, err := ParseElementID(req)
	if err != nil {
		return osm.UnresolvedReference{}, err
	}

	return osm.UnresolvedReference{Kind: kind, ID: id}, nil
}

// maxExactID is the largest integer a JSON number carries without loss.
const maxExactID = 1 << 53

// ParseElementID reads the required "id" parameter. Zero and negative ids
// are valid. Ids beyond 2^53 must be sent as decimal strings.
func ParseElementID(req mcp.CallToolRequest) (int64, error) {
	v, ok := req.GetArguments()["id"]
	if !ok || v == nil {
		return 0, NewError(ErrMissingParameter, "id is required")
	}

	switch n := v.(type) {
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, NewValidationError(ErrInvalidParameter, fmt.Sprintf("id %q is not an integer", n))
		}
		return id, nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > maxExactID {
			return 0, NewValidationError(ErrInvalidParameter, fmt.Sprintf("id %v is not an exact integer", n)).
				WithGuidance("Pass large ids as a decimal string")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		id, err := n.Int64()
		if err != nil {
			return 0, NewValidationError(ErrInvalidParameter, fmt.Sprintf("id %s is not an integer", n))
		}
		return id, nil
	}
	return 0, NewValidationError(ErrInvalidParameter, fmt.Sprintf("id has unsupported type %T", v))
}

// ParseBBoxWithLog parses a bounding box and logs any errors
func ParseBBoxWithLog(req mcp.CallToolRequest, logger *slog.Logger, maxArea float64) (osm.Bounds, error) {
	b, err := ParseBBox(req, maxArea)
	if err != nil {
		logger.Error("invalid bounding box", "error", err)
	}
	return b, err
}
