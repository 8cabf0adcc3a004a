// Package cache keeps parsed OSM models in memory so repeated tool calls
// against the same document do not parse it again.
package cache

import (
	"context"
	"log/slog"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/NERVsystems/osmxml/pkg/loader"
	"github.com/NERVsystems/osmxml/pkg/monitoring"
	"github.com/NERVsystems/osmxml/pkg/osm"
	"github.com/NERVsystems/osmxml/pkg/tracing"
)

const (
	// DefaultSize is the number of models kept by default
	DefaultSize = 16

	// DefaultTTL bounds how long remote extracts are reused
	DefaultTTL = 10 * time.Minute

	cacheType = "models"
)

// Loader loads the document behind a source
type Loader interface {
	Load(ctx context.Context, src loader.Source) (*osm.Map, error)
}

type entry struct {
	m        *osm.Map
	loadedAt time.Time
	modTime  time.Time // file sources only
}

// ModelCache is a bounded LRU of parsed models keyed by source. Concurrent
// requests for the same missing source share a single load.
type ModelCache struct {
	loader Loader
	ttl    time.Duration
	models *lru.Cache[string, entry]
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewModelCache creates a cache holding at most size models. A ttl of zero
// keeps remote models until they are evicted.
func NewModelCache(l Loader, size int, ttl time.Duration, logger *slog.Logger) (*ModelCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	models, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ModelCache{
		loader: l,
		ttl:    ttl,
		models: models,
		logger: logger.With("component", "cache"),
		now:    time.Now,
	}, nil
}

// Get returns the model for src, loading it on a miss. A file that changed
// on disk since it was cached is loaded again. If ctx ends first, Get returns
// its error and the load carries on for the other callers.
func (c *ModelCache) Get(ctx context.Context, src loader.Source) (*osm.Map, error) {
	key := src.String()
	ctx, span := tracing.StartSpan(ctx, "cache.get")
	defer span.End()

	if e, ok := c.models.Get(key); ok && c.fresh(src, e) {
		span.SetAttributes(tracing.CacheAttributes(true, key)...)
		monitoring.RecordCacheHit(cacheType)
		return e.m, nil
	}
	span.SetAttributes(tracing.CacheAttributes(false, key)...)
	monitoring.RecordCacheMiss(cacheType)

	// Shared by every waiter, so not bound to the caller that started it.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		e := entry{loadedAt: c.now()}
		if src.Kind == tracing.SourceFile {
			if fi, err := os.Stat(src.Path); err == nil {
				e.modTime = fi.ModTime()
			}
		}

		m, err := c.loader.Load(loadCtx, src)
		if err != nil {
			return nil, err
		}
		e.m = m

		c.models.Add(key, e)
		monitoring.UpdateCacheSize(cacheType, c.models.Len())
		c.logger.Debug("cached model", "source", key, "size", c.models.Len())
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		span.SetAttributes(attribute.Bool(tracing.AttrCacheShared, res.Shared))
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*osm.Map), nil
	}
}

func (c *ModelCache) fresh(src loader.Source, e entry) bool {
	if src.Kind == tracing.SourceFile {
		fi, err := os.Stat(src.Path)
		return err == nil && fi.ModTime().Equal(e.modTime)
	}
	return c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl
}

// Peek returns a cached model without loading or refreshing it
func (c *ModelCache) Peek(src loader.Source) (*osm.Map, bool) {
	e, ok := c.models.Peek(src.String())
	return e.m, ok
}

// Remove drops the model for src
func (c *ModelCache) Remove(src loader.Source) bool {
	ok := c.models.Remove(src.String())
	monitoring.UpdateCacheSize(cacheType, c.models.Len())
	return ok
}

// Len returns the number of cached models
func (c *ModelCache) Len() int {
	return c.models.Len()
}

// Keys returns the cached sources, oldest first
func (c *ModelCache) Keys() []string {
	return c.models.Keys()
}

// Purge drops every model
func (c *ModelCache) Purge() {
	c.models.Purge()
	monitoring.UpdateCacheSize(cacheType, 0)
}
