// Package loader opens and fetches OSM XML documents and parses them into
// osm.Map models.
package loader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/monitoring"
	"github.com/NERVsystems/osmxml/pkg/osm"
	"github.com/NERVsystems/osmxml/pkg/tracing"
)

const (
	// DefaultAPIURL is the OSM editing API
	DefaultAPIURL = "https://api.openstreetmap.org"

	// DefaultOverpassURL is the public Overpass interpreter
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

	// DefaultUserAgent is the default User-Agent string
	DefaultUserAgent = "osmxml/0.1 (+https://github.com/NERVsystems/osmxml)"

	// maxConcurrentLoads bounds LoadAll
	maxConcurrentLoads = 4
)

// Config configures a Loader
type Config struct {
	APIURL      string
	OverpassURL string
	UserAgent   string

	// Requests per second and burst, shared by each upstream
	RPS   float64
	Burst int

	// MaxArea limits fetched bounding boxes, in square degrees
	MaxArea float64

	Client *http.Client
	Retry  core.RetryOptions
}

// DefaultConfig returns the configuration used when no flags are given
func DefaultConfig() Config {
	return Config{
		APIURL:      DefaultAPIURL,
		OverpassURL: DefaultOverpassURL,
		UserAgent:   DefaultUserAgent,
		RPS:         1,
		Burst:       1,
		MaxArea:     core.MaxBBoxArea,
		Client:      core.DefaultClient,
		Retry:       core.DefaultRetryOptions,
	}
}

// Loader turns sources into parsed models. It is safe for concurrent use.
type Loader struct {
	cfg       Config
	parseOpts []osm.Option
	logger    *slog.Logger

	apiLimiter      *rate.Limiter
	overpassLimiter *rate.Limiter
}

// New creates a Loader. parseOpts are passed to every parse.
func New(cfg Config, logger *slog.Logger, parseOpts ...osm.Option) *Loader {
	def := DefaultConfig()
	if cfg.APIURL == "" {
		cfg.APIURL = def.APIURL
	}
	if cfg.OverpassURL == "" {
		cfg.OverpassURL = def.OverpassURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Client == nil {
		cfg.Client = def.Client
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		cfg:             cfg,
		parseOpts:       append([]osm.Option{osm.WithLogger(logger)}, parseOpts...),
		logger:          logger.With("component", "loader"),
		apiLimiter:      rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		overpassLimiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

// WithParseOptions returns a Loader that appends opts to every parse. The
// copy shares rate limits with l.
func (l *Loader) WithParseOptions(opts ...osm.Option) *Loader {
	c := *l
	c.parseOpts = append(slices.Clone(l.parseOpts), opts...)
	return &c
}

// Load reads and parses the document behind src
func (l *Loader) Load(ctx context.Context, src Source) (*osm.Map, error) {
	switch src.Kind {
	case tracing.SourceFile:
		return l.LoadFile(ctx, src.Path)
	case tracing.SourceAPI:
		return l.Fetch(ctx, src.BBox)
	case tracing.SourceOverpass:
		return l.FetchOverpass(ctx, src.BBox)
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// LoadFile parses a local document. Gzip-compressed files are detected by
// their magic bytes, whatever their name.
func (l *Loader) LoadFile(ctx context.Context, path string) (m *osm.Map, err error) {
	ctx, span := tracing.StartSpan(ctx, "loader.open")
	defer span.End()
	span.SetAttributes(tracing.SourceAttributes(tracing.SourceFile, path)...)

	start := time.Now()
	defer func() {
		monitoring.RecordSourceRequest(tracing.SourceFile, time.Since(start), err == nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, core.NewError(core.ErrNotFound, fmt.Sprintf("cannot open %s: %v", path, err))
	}
	defer f.Close()

	r, err := decompress(f)
	if err != nil {
		return nil, core.NewError(core.ErrParseError, fmt.Sprintf("reading %s: %v", path, err))
	}

	l.logger.InfoContext(ctx, "loading osm file", "path", path)
	cr := &countingReader{r: r}
	m, err = osm.ParseContext(ctx, cr, l.parseOpts...)
	span.SetAttributes(attribute.Int64(tracing.AttrSourceBytes, cr.n))
	if err != nil {
		return nil, err
	}
	return m, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(head) == 2 && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		return gzip.NewReader(br)
	}
	return br, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// LoadAll loads several sources concurrently into separate models. The
// result has one entry per source, in order; failed sources leave a nil
// entry and contribute to the combined error.
func (l *Loader) LoadAll(ctx context.Context, srcs []Source) ([]*osm.Map, error) {
	maps := make([]*osm.Map, len(srcs))
	errs := make([]error, len(srcs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, src := range srcs {
		g.Go(func() error {
			m, err := l.Load(ctx, src)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", src, err)
				return nil
			}
			maps[i] = m
			return nil
		})
	}
	_ = g.Wait()

	return maps, multierr.Combine(errs...)
}
