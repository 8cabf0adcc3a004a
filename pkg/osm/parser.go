package osm

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/NERVsystems/osmxml/pkg/tracing"
)

// TokenSource is a pull-based stream of XML tokens. *xml.Decoder implements
// it. Token must return io.EOF once the document is exhausted.
type TokenSource interface {
	Token() (xml.Token, error)
}

// Option configures a parse.
type Option func(*options)

type options struct {
	logger *slog.Logger
	hooks  *MonitoringHooks
	strict bool
}

// WithLogger sets the logger that receives skipped-element diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHooks overrides the hooks installed with SetMonitoringHooks.
func WithHooks(hooks *MonitoringHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithStrict makes the first malformed element abort the parse with an
// *ElementError instead of being skipped.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// Parse reads a complete OSM XML document from r.
//
// Malformed elements are discarded and parsing continues. Only a failure of
// the XML token stream itself is returned, as a *TokenizerError, and then no
// Map is returned. With WithStrict the first malformed element is returned
// as an *ElementError instead.
func Parse(r io.Reader, opts ...Option) (*Map, error) {
	return ParseContext(context.Background(), r, opts...)
}

// ParseContext is Parse with a context carrying the caller's trace span.
// The parse is not cancellable; close r to abort it.
func ParseContext(ctx context.Context, r io.Reader, opts ...Option) (*Map, error) {
	return Decode(ctx, xml.NewDecoder(r), opts...)
}

// Decode builds a Map from an arbitrary token source.
func Decode(ctx context.Context, src TokenSource, opts ...Option) (*Map, error) {
	o := options{
		logger: slog.Default(),
		hooks:  getMonitoringHooks(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracing.StartSpan(ctx, "osm.parse")
	defer span.End()

	p := &parser{src: src, opts: o}
	start := time.Now()
	m, err := p.run()
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int(tracing.AttrParseSkipped, p.skipped),
		attribute.Int64(tracing.AttrParseDurationMs, duration.Milliseconds()),
	)
	if err != nil {
		o.hooks.failed(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stats := m.Stats()
	span.SetAttributes(tracing.ParseAttributes(stats.Nodes, stats.Ways, stats.Relations, stats.HasBounds)...)
	span.SetStatus(codes.Ok, "")
	o.hooks.complete(stats, duration)

	o.logger.DebugContext(ctx, "parsed osm document",
		"nodes", stats.Nodes,
		"ways", stats.Ways,
		"relations", stats.Relations,
		"bounds", stats.HasBounds,
		"skipped", p.skipped,
		"duration", duration)

	return m, nil
}

type parser struct {
	src     TokenSource
	opts    options
	skipped int
}

// next pulls one token. io.EOF is passed through unchanged; any other
// failure is wrapped as a fatal *TokenizerError.
func (p *parser) next() (xml.Token, error) {
	tok, err := p.src.Token()
	if err == nil {
		return tok, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	var te *TokenizerError
	if errors.As(err, &te) {
		return nil, err
	}
	return nil, &TokenizerError{Err: err}
}

// nextInElement is next for callers inside an open element, where the end
// of the stream is a truncated document.
func (p *parser) nextInElement() (xml.Token, error) {
	tok, err := p.next()
	if err == io.EOF {
		return nil, &TokenizerError{Err: io.ErrUnexpectedEOF}
	}
	return tok, err
}

func (p *parser) run() (*Map, error) {
	m := newMap()

	for {
		tok, err := p.next()
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		typ, err := ParseElementType(start.Name.Local)
		if err != nil {
			// The <osm> root and extensions like <note> or <meta> land here.
			continue
		}

		switch typ {
		case ElementBounds:
			b, err := parseBounds(start.Attr)
			if err != nil {
				m.Bounds = nil
				if err := p.reject(err); err != nil {
					return nil, err
				}
				continue
			}
			m.Bounds = b
			p.opts.hooks.element(ElementBounds)

		case ElementNode:
			n, err := p.parseNode(start)
			if err != nil {
				if err := p.reject(err); err != nil {
					return nil, err
				}
				continue
			}
			m.Nodes[n.ID] = n
			p.opts.hooks.element(ElementNode)

		case ElementWay:
			w, err := p.parseWay(start)
			if err != nil {
				if err := p.reject(err); err != nil {
					return nil, err
				}
				continue
			}
			m.Ways[w.ID] = w
			p.opts.hooks.element(ElementWay)

		case ElementRelation:
			r, err := p.parseRelation(start)
			if err != nil {
				if err := p.reject(err); err != nil {
					return nil, err
				}
				continue
			}
			m.Relations[r.ID] = r
			p.opts.hooks.element(ElementRelation)

		default:
			// tag, nd and member are only meaningful inside their parents.
			p.opts.logger.Debug("ignoring element outside of its parent", "element", typ.String())
		}
	}
}

// reject handles an error returned by an element consumer. Tokenizer errors
// are returned as is. Element errors are recorded and swallowed, unless the
// parse is strict, in which case they are returned without being counted as
// skipped.
func (p *parser) reject(err error) error {
	var ee *ElementError
	if !errors.As(err, &ee) {
		return err
	}
	if p.opts.strict {
		return ee
	}
	p.discard(ee)
	return nil
}

func (p *parser) discard(ee *ElementError) {
	p.skipped++
	p.opts.hooks.skipped(ee.Type, ee.Reason())
	p.opts.logger.Debug("skipping malformed element",
		"element", ee.Type.String(),
		"id", ee.ID,
		"reason", ReasonLabel(ee.Err),
		"error", ee.Err)
}

// skip consumes tokens until the element whose start tag was just read is
// closed. depth is the number of elements currently open inside it, plus one.
func (p *parser) skip(depth int) error {
	for depth > 0 {
		tok, err := p.nextInElement()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// abort discards the rest of the current element and returns its error.
// If the stream fails while skipping, the stream error wins.
func (p *parser) abort(depth int, ee *ElementError) error {
	if err := p.skip(depth); err != nil {
		return err
	}
	return ee
}

func parseBounds(attrs []xml.Attr) (*Bounds, error) {
	var b Bounds
	fields := []struct {
		name string
		dst  *float64
	}{
		{"minlat", &b.MinLat},
		{"minlon", &b.MinLon},
		{"maxlat", &b.MaxLat},
		{"maxlon", &b.MaxLon},
	}
	for _, f := range fields {
		v, err := findFloat(f.name, attrs)
		if err != nil {
			return nil, &ElementError{Type: ElementBounds, Err: err}
		}
		*f.dst = v
	}
	return &b, nil
}

func parseTag(attrs []xml.Attr) (Tag, error) {
	k, err := findAttribute("k", attrs)
	if err != nil {
		return Tag{}, &ElementError{Type: ElementTag, Err: err}
	}
	v, err := findAttribute("v", attrs)
	if err != nil {
		return Tag{}, &ElementError{Type: ElementTag, Err: err}
	}
	return Tag{Key: k, Val: v}, nil
}

// children walks the content of the element opened by a start tag and calls
// visit for every descendant start tag. A descendant with an unrecognized
// name fails the parent. visit may return an *ElementError, which aborts the
// walk after the element has been consumed.
func (p *parser) children(parent ElementType, id int64, visit func(typ ElementType, se xml.StartElement) *ElementError) error {
	depth := 1
	for {
		tok, err := p.nextInElement()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			depth--
			if depth == 0 {
				return nil
			}

		case xml.StartElement:
			depth++
			typ, err := ParseElementType(t.Name.Local)
			if err != nil {
				return p.abort(depth, &ElementError{
					Type: parent,
					ID:   id,
					Err:  fmt.Errorf("%w <%s> inside <%s>", ErrUnknownElement, t.Name.Local, parent),
				})
			}
			if ee := visit(typ, t); ee != nil {
				return p.abort(depth, ee)
			}
		}
	}
}

// addTag appends a tag or reports it as dropped. Dropped tags never fail
// their parent element.
func (p *parser) addTag(tags *Tags, attrs []xml.Attr) *ElementError {
	tag, err := parseTag(attrs)
	if err != nil {
		var ee *ElementError
		errors.As(err, &ee)
		if p.opts.strict {
			return ee
		}
		p.discard(ee)
		return nil
	}
	*tags = append(*tags, tag)
	return nil
}

func nesting(parent ElementType, id int64, child ElementType) *ElementError {
	return &ElementError{
		Type: parent,
		ID:   id,
		Err:  fmt.Errorf("%w: <%s> inside <%s>", ErrIllegalNesting, child, parent),
	}
}

func (p *parser) parseNode(start xml.StartElement) (*Node, error) {
	id, err := findInt("id", start.Attr)
	if err != nil {
		return nil, p.abort(1, &ElementError{Type: ElementNode, Err: err})
	}
	lat, err := findFloat("lat", start.Attr)
	if err != nil {
		return nil, p.abort(1, &ElementError{Type: ElementNode, ID: id, Err: err})
	}
	lon, err := findFloat("lon", start.Attr)
	if err != nil {
		return nil, p.abort(1, &ElementError{Type: ElementNode, ID: id, Err: err})
	}

	n := &Node{ID: id, Lat: lat, Lon: lon}
	err = p.children(ElementNode, id, func(typ ElementType, se xml.StartElement) *ElementError {
		if typ == ElementTag {
			return p.addTag(&n.Tags, se.Attr)
		}
		return nesting(ElementNode, id, typ)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) parseWay(start xml.StartElement) (*Way, error) {
	id, err := findInt("id", start.Attr)
	if err != nil {
		return nil, p.abort(1, &ElementError{Type: ElementWay, Err: err})
	}

	w := &Way{ID: id, Nodes: []UnresolvedReference{}}
	err = p.children(ElementWay, id, func(typ ElementType, se xml.StartElement) *ElementError {
		switch typ {
		case ElementTag:
			return p.addTag(&w.Tags, se.Attr)
		case ElementNodeRef:
			ref, err := findInt("ref", se.Attr)
			if err != nil {
				return &ElementError{Type: ElementWay, ID: id, Err: err}
			}
			w.Nodes = append(w.Nodes, NodeRef(ref))
			return nil
		}
		return nesting(ElementWay, id, typ)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (p *parser) parseRelation(start xml.StartElement) (*Relation, error) {
	id, err := findInt("id", start.Attr)
	if err != nil {
		return nil, p.abort(1, &ElementError{Type: ElementRelation, Err: err})
	}

	r := &Relation{ID: id, Members: []Member{}}
	err = p.children(ElementRelation, id, func(typ ElementType, se xml.StartElement) *ElementError {
		switch typ {
		case ElementTag:
			return p.addTag(&r.Tags, se.Attr)
		case ElementMember:
			m, err := parseMember(se.Attr)
			if err != nil {
				return &ElementError{Type: ElementRelation, ID: id, Err: err}
			}
			r.Members = append(r.Members, m)
			return nil
		}
		return nesting(ElementRelation, id, typ)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func parseMember(attrs []xml.Attr) (Member, error) {
	typ, err := findAttribute("type", attrs)
	if err != nil {
		return Member{}, err
	}
	ref, err := findInt("ref", attrs)
	if err != nil {
		return Member{}, err
	}
	role, err := findAttribute("role", attrs)
	if err != nil {
		return Member{}, err
	}
	kind, ok := ParseElementKind(typ)
	if !ok {
		return Member{}, fmt.Errorf("%w %q", ErrUnknownMemberType, typ)
	}
	return Member{Ref: UnresolvedReference{Kind: kind, ID: ref}, Role: role}, nil
}
