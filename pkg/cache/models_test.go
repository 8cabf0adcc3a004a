package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/osmxml/pkg/loader"
	"github.com/NERVsystems/osmxml/pkg/osm"
)

type fakeLoader struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (f *fakeLoader) Load(ctx context.Context, src loader.Source) (*osm.Map, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &osm.Map{Nodes: map[int64]*osm.Node{1: {ID: 1}}}, nil
}

func newCache(t *testing.T, l Loader, size int, ttl time.Duration) *ModelCache {
	t.Helper()
	c, err := NewModelCache(l, size, ttl, nil)
	if err != nil {
		t.Fatalf("NewModelCache failed: %v", err)
	}
	return c
}

func api(minLon float64) loader.Source {
	return loader.APISource(osm.Bounds{MinLon: minLon, MaxLon: minLon + 0.1, MaxLat: 0.1})
}

func TestModelCacheHit(t *testing.T) {
	fl := &fakeLoader{}
	c := newCache(t, fl, 4, 0)

	first, err := c.Get(t.Context(), api(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := c.Get(t.Context(), api(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if first != second {
		t.Error("expected the cached model")
	}
	if got := fl.calls.Load(); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}
}

func TestModelCacheSharesConcurrentLoads(t *testing.T) {
	fl := &fakeLoader{gate: make(chan struct{})}
	c := newCache(t, fl, 4, 0)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*osm.Map, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.Get(context.Background(), api(1))
			if err != nil {
				t.Errorf("Get failed: %v", err)
			}
			results[i] = m
		}()
	}

	// Let the callers pile up on the in-flight load
	time.Sleep(50 * time.Millisecond)
	close(fl.gate)
	wg.Wait()

	if got := fl.calls.Load(); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}
	for i, m := range results {
		if m != results[0] {
			t.Errorf("caller %d got a different model", i)
		}
	}
}

func TestModelCacheLoadOutlivesCancelledCaller(t *testing.T) {
	fl := &fakeLoader{gate: make(chan struct{})}
	c := newCache(t, fl, 4, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, api(1))
		errc <- err
	}()

	waitFor(t, func() bool { return fl.calls.Load() == 1 })
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(fl.gate)
	waitFor(t, func() bool { return c.Len() == 1 })

	if _, err := c.Get(context.Background(), api(1)); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := fl.calls.Load(); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestModelCacheEviction(t *testing.T) {
	fl := &fakeLoader{}
	c := newCache(t, fl, 2, 0)

	for _, src := range []loader.Source{api(1), api(2), api(3)} {
		if _, err := c.Get(t.Context(), src); err != nil {
			t.Fatal(err)
		}
	}

	if c.Len() != 2 {
		t.Errorf("expected 2 models, got %d", c.Len())
	}
	if _, ok := c.Peek(api(1)); ok {
		t.Error("oldest model should have been evicted")
	}
	if keys := c.Keys(); len(keys) != 2 || keys[0] != api(2).String() {
		t.Errorf("keys = %v", keys)
	}
}

func TestModelCacheTTL(t *testing.T) {
	fl := &fakeLoader{}
	c := newCache(t, fl, 4, time.Minute)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, _ = c.Get(t.Context(), api(1))
	now = now.Add(30 * time.Second)
	_, _ = c.Get(t.Context(), api(1))
	if got := fl.calls.Load(); got != 1 {
		t.Fatalf("expected 1 load inside the ttl, got %d", got)
	}

	now = now.Add(time.Minute)
	_, _ = c.Get(t.Context(), api(1))
	if got := fl.calls.Load(); got != 2 {
		t.Errorf("expected a reload after the ttl, got %d loads", got)
	}
}

func TestModelCacheReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.osm")
	if err := os.WriteFile(path, []byte("<osm/>"), 0o600); err != nil {
		t.Fatal(err)
	}

	fl := &fakeLoader{}
	c := newCache(t, fl, 4, time.Hour)
	src := loader.FileSource(path)

	_, _ = c.Get(t.Context(), src)
	_, _ = c.Get(t.Context(), src)
	if got := fl.calls.Load(); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	_, _ = c.Get(t.Context(), src)
	if got := fl.calls.Load(); got != 2 {
		t.Errorf("expected a reload after the file changed, got %d loads", got)
	}
}

func TestModelCacheDoesNotCacheErrors(t *testing.T) {
	fl := &fakeLoader{err: errors.New("upstream down")}
	c := newCache(t, fl, 4, 0)

	for i := 0; i < 2; i++ {
		if _, err := c.Get(t.Context(), api(1)); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := fl.calls.Load(); got != 2 {
		t.Errorf("expected 2 loads, got %d", got)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestModelCacheRemoveAndPurge(t *testing.T) {
	c := newCache(t, &fakeLoader{}, 4, 0)
	_, _ = c.Get(t.Context(), api(1))
	_, _ = c.Get(t.Context(), api(2))

	if !c.Remove(api(1)) || c.Remove(api(1)) {
		t.Error("Remove should report whether a model was dropped")
	}
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}
