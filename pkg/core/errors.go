// Package core provides shared utilities for the OSM XML MCP tools.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmxml/pkg/osm"
)

// ErrorCode defines standard error codes for MCP tools
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrInvalidLatitude  ErrorCode = "INVALID_LATITUDE"
	ErrInvalidLongitude ErrorCode = "INVALID_LONGITUDE"
	ErrInvalidBBox      ErrorCode = "INVALID_BBOX"
	ErrBBoxTooLarge     ErrorCode = "BBOX_TOO_LARGE"
	ErrEmptyParameter   ErrorCode = "EMPTY_PARAMETER"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	// Data errors
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrParseError    ErrorCode = "PARSE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// MCPError represents a detailed error structure for MCP tool responses
type MCPError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e MCPError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new MCPError with the given code and message
func NewError(code ErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery adds query information to the error
func (e *MCPError) WithQuery(query string) *MCPError {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *MCPError) WithGuidance(guidance string) *MCPError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ToMCPResult converts the error to an MCP tool result
func (e *MCPError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// ServiceError creates an error for upstream service failures
func ServiceError(service string, statusCode int, message string) *MCPError {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests, 509: // the OSM API answers 509 when bandwidth is exceeded
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Try a smaller bounding box."
	case http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The request was rejected, usually because the area holds too many nodes. Try a smaller bounding box."
	case http.StatusNotFound:
		code = ErrNotFound
		guidance = "The requested data does not exist on the server."
	case http.StatusInternalServerError:
		code = ErrInternalError
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	case http.StatusServiceUnavailable:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "Please try again later or modify your request parameters."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// NewValidationError creates an error for validation failures
func NewValidationError(code ErrorCode, message string) *MCPError {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}

// ParseError converts an error returned by the OSM parser into an MCPError.
// Errors that are already MCPErrors are returned unchanged.
func ParseError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var te *osm.TokenizerError
	if errors.As(err, &te) {
		return NewError(ErrParseError, te.Error()).
			WithGuidance("The document is not well-formed XML. Check that it is complete and not truncated.")
	}

	var ee *osm.ElementError
	if errors.As(err, &ee) {
		return NewError(ErrParseError, ee.Error()).
			WithQuery(osm.ReasonLabel(ee)).
			WithGuidance("Strict parsing rejects the first malformed element. Parse leniently to skip it.")
	}

	return NewError(ErrInternalError, err.Error())
}
