package osm

import (
	"errors"
	"fmt"
)

// Reasons an element fails to parse. Use errors.Is on an *ElementError.
var (
	ErrMissingAttribute  = errors.New("missing attribute")
	ErrUnparsableFloat   = errors.New("unparsable float")
	ErrUnparsableInt     = errors.New("unparsable integer")
	ErrIllegalNesting    = errors.New("illegal nesting")
	ErrUnknownMemberType = errors.New("unknown member type")
)

// ErrUnknownElement is returned by ParseElementType for unrecognized names
// and is the reason for an element with an unrecognized child.
var ErrUnknownElement = errors.New("unknown element")

var reasons = []error{
	ErrMissingAttribute,
	ErrUnparsableFloat,
	ErrUnparsableInt,
	ErrIllegalNesting,
	ErrUnknownMemberType,
	ErrUnknownElement,
}

// AttributeError describes a missing or unparsable attribute.
type AttributeError struct {
	Name   string
	Value  string
	Reason error // ErrMissingAttribute, ErrUnparsableFloat or ErrUnparsableInt
	Err    error // underlying strconv error, if any
}

func (e *AttributeError) Error() string {
	if e.Reason == ErrMissingAttribute {
		return fmt.Sprintf("%s %q", e.Reason, e.Name)
	}
	return fmt.Sprintf("%s in attribute %q: %q", e.Reason, e.Name, e.Value)
}

func (e *AttributeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// ElementError reports a single element that was discarded. Element errors
// never abort a lenient parse; they are passed to Hooks.OnSkipped and logged.
type ElementError struct {
	Type ElementType
	// ID is zero when the element's own id could not be read.
	ID  int64
	Err error
}

func (e *ElementError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("osm: malformed %s %d: %v", e.Type, e.ID, e.Err)
	}
	return fmt.Sprintf("osm: malformed %s: %v", e.Type, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

// Reason returns the sentinel describing why the element was rejected.
func (e *ElementError) Reason() error {
	for _, r := range reasons {
		if errors.Is(e.Err, r) {
			return r
		}
	}
	return e.Err
}

// TokenizerError is a fatal failure of the underlying XML token stream.
type TokenizerError struct {
	Err error
}

func (e *TokenizerError) Error() string {
	return fmt.Sprintf("osm: reading xml: %v", e.Err)
}

func (e *TokenizerError) Unwrap() error {
	return e.Err
}

// ReasonLabel returns a short stable label for err, suitable for metrics.
func ReasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrMissingAttribute):
		return "missing_attribute"
	case errors.Is(err, ErrUnparsableFloat):
		return "unparsable_float"
	case errors.Is(err, ErrUnparsableInt):
		return "unparsable_int"
	case errors.Is(err, ErrIllegalNesting):
		return "illegal_nesting"
	case errors.Is(err, ErrUnknownMemberType):
		return "unknown_member_type"
	case errors.Is(err, ErrUnknownElement):
		return "unknown_element"
	}
	return "other"
}
