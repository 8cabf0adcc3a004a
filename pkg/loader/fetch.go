package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/monitoring"
	"github.com/NERVsystems/osmxml/pkg/osm"
	"github.com/NERVsystems/osmxml/pkg/osm/queries"
	"github.com/NERVsystems/osmxml/pkg/tracing"
)

// overpassTimeout is the server-side timeout sent with Overpass queries
const overpassTimeout = 90

// Fetch downloads every element inside b from the OSM API map call and
// parses the answer.
func (l *Loader) Fetch(ctx context.Context, b osm.Bounds) (*osm.Map, error) {
	if err := core.ValidateBBox(b, l.cfg.MaxArea); err != nil {
		return nil, err
	}

	u := strings.TrimRight(l.cfg.APIURL, "/") + "/api/0.6/map?bbox=" + bboxParam(b)
	return l.fetch(ctx, tracing.SourceAPI, l.apiLimiter, u)
}

// FetchOverpass downloads every element inside b, plus the nodes of the
// ways found, from an Overpass server.
func (l *Loader) FetchOverpass(ctx context.Context, b osm.Bounds) (*osm.Map, error) {
	if err := core.ValidateBBox(b, l.cfg.MaxArea); err != nil {
		return nil, err
	}

	qb := queries.BBox{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: b.MaxLon}
	query := queries.NewOverpassBuilder().
		WithTimeout(overpassTimeout).
		WithNodeInBbox(qb, nil).
		WithWayInBbox(qb, nil).
		WithRelationInBbox(qb, nil).
		WithRecurseDown().
		Build()

	u := l.cfg.OverpassURL + "?data=" + url.QueryEscape(query)
	return l.fetch(ctx, tracing.SourceOverpass, l.overpassLimiter, u)
}

func (l *Loader) fetch(ctx context.Context, kind string, limiter *rate.Limiter, u string) (m *osm.Map, err error) {
	ctx, span := tracing.StartSpan(ctx, "loader.fetch")
	defer span.End()
	span.SetAttributes(tracing.SourceAttributes(kind, u)...)

	start := time.Now()
	defer func() {
		monitoring.RecordSourceRequest(kind, time.Since(start), err == nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := l.waitForRateLimit(ctx, kind, limiter); err != nil {
		return nil, err
	}

	req, err := l.newRequest(ctx, u)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "fetching osm data", "source", kind, "url", u)
	resp, err := core.WithRetry(ctx, req, l.cfg.Client, l.cfg.Retry)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	cr := &countingReader{r: resp.Body}
	m, err = osm.ParseContext(ctx, cr, l.parseOpts...)
	span.SetAttributes(attribute.Int64(tracing.AttrSourceBytes, cr.n))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Ping checks that the OSM API answers its capabilities call
func (l *Loader) Ping(ctx context.Context) error {
	req, err := l.newRequest(ctx, strings.TrimRight(l.cfg.APIURL, "/")+"/api/capabilities")
	if err != nil {
		return err
	}
	resp, err := l.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("osm api health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("osm api health check returned status %d", resp.StatusCode)
	}
	return nil
}

// newRequest creates a GET request with the configured User-Agent, as
// required by the OSM API usage policy
func (l *Loader) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.NewError(core.ErrInvalidInput, fmt.Sprintf("invalid request url: %v", err))
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	return req, nil
}

// waitForRateLimit blocks until the upstream's limiter grants a request
func (l *Loader) waitForRateLimit(ctx context.Context, kind string, limiter *rate.Limiter) error {
	if limiter.Allow() {
		return nil
	}

	startWait := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrSourceKind, kind)),
	)

	err := limiter.Wait(ctx)

	waitDuration := time.Since(startWait)
	tracing.SetAttributes(ctx, attribute.Int64(tracing.AttrRateLimitWaitMs, waitDuration.Milliseconds()))
	monitoring.RecordRateLimitWait(kind, waitDuration)

	if err != nil {
		return core.NewError(core.ErrRateLimit, fmt.Sprintf("waiting for %s rate limit: %v", kind, err))
	}
	return nil
}
