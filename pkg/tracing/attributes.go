package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	// MCP tool attributes
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	// Parse attributes
	AttrParseNodes      = "osm.parse.nodes"
	AttrParseWays       = "osm.parse.ways"
	AttrParseRelations  = "osm.parse.relations"
	AttrParseHasBounds  = "osm.parse.has_bounds"
	AttrParseSkipped    = "osm.parse.skipped"
	AttrParseDurationMs = "osm.parse.duration_ms"

	// Source attributes
	AttrSourceKind  = "osm.source.kind"
	AttrSourceName  = "osm.source.name"
	AttrSourceBytes = "osm.source.bytes"

	// Cache attributes
	AttrCacheHit    = "osm.cache.hit"
	AttrCacheKey    = "osm.cache.key"
	AttrCacheShared = "osm.cache.shared"

	// Rate limiting attributes
	AttrRateLimitWaitMs = "osm.ratelimit.wait_ms"

	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPSessionID  = "mcp.session_id"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPURL        = "http.url"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Source kinds
const (
	SourceFile     = "file"
	SourceAPI      = "api"
	SourceOverpass = "overpass"
)

// ParseAttributes returns attributes describing a parsed document
func ParseAttributes(nodes, ways, relations int, hasBounds bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrParseNodes, nodes),
		attribute.Int(AttrParseWays, ways),
		attribute.Int(AttrParseRelations, relations),
		attribute.Bool(AttrParseHasBounds, hasBounds),
	}
}

// SourceAttributes returns attributes for a document source
func SourceAttributes(kind, name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSourceKind, kind),
		attribute.String(AttrSourceName, name),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(errType string, err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
