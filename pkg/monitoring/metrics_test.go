package monitoring

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NERVsystems/osmxml/pkg/osm"
)

func TestMetricsInitialization(t *testing.T) {
	// Test that all metrics are properly registered
	metrics := []prometheus.Collector{
		DocumentsParsed,
		ParseDuration,
		ElementsParsed,
		ElementsSkipped,
		MCPRequestsTotal,
		MCPRequestDuration,
		SourceRequestsTotal,
		SourceRequestDuration,
		RateLimitWaitTime,
		CacheHits,
		CacheMisses,
		CacheSize,
		ErrorsTotal,
		SystemInfo,
		GoRoutines,
		MemoryUsage,
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("Metric is nil")
		}
	}
}

func TestRecordMCPRequest(t *testing.T) {
	MCPRequestsTotal.Reset()

	RecordMCPRequest("test_tool", 100*time.Millisecond, true)
	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("test_tool", "success")); got != 1 {
		t.Errorf("Expected 1 successful request, got %v", got)
	}

	RecordMCPRequest("test_tool", 200*time.Millisecond, false)
	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("test_tool", "error")); got != 1 {
		t.Errorf("Expected 1 failed request, got %v", got)
	}
}

func TestRecordSourceRequest(t *testing.T) {
	SourceRequestsTotal.Reset()

	RecordSourceRequest("api", 500*time.Millisecond, true)
	RecordSourceRequest("api", 300*time.Millisecond, false)
	RecordSourceRequest("file", 10*time.Millisecond, true)

	if got := testutil.ToFloat64(SourceRequestsTotal.WithLabelValues("api", "success")); got != 1 {
		t.Errorf("Expected 1 successful fetch, got %v", got)
	}
	if got := testutil.ToFloat64(SourceRequestsTotal.WithLabelValues("api", "error")); got != 1 {
		t.Errorf("Expected 1 failed fetch, got %v", got)
	}
	if got := testutil.CollectAndCount(SourceRequestsTotal); got != 3 {
		t.Errorf("Expected 3 series, got %d", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	CacheHits.Reset()
	CacheMisses.Reset()
	CacheSize.Reset()

	RecordCacheHit("test_cache")
	if got := testutil.ToFloat64(CacheHits.WithLabelValues("test_cache")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}

	RecordCacheMiss("test_cache")
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("test_cache")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}

	UpdateCacheSize("test_cache", 42)
	if got := testutil.ToFloat64(CacheSize.WithLabelValues("test_cache")); got != 42 {
		t.Errorf("Expected cache size 42, got %v", got)
	}
}

func TestParseHooks(t *testing.T) {
	DocumentsParsed.Reset()
	ElementsParsed.Reset()
	ElementsSkipped.Reset()
	ErrorsTotal.Reset()

	doc := `<osm>
		<node id="1" lat="1" lon="1"/>
		<node id="2" lat="x" lon="1"/>
		<way id="3"><nd ref="1"/></way>
	</osm>`
	if _, err := osm.Parse(strings.NewReader(doc), osm.WithHooks(ParseHooks())); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := testutil.ToFloat64(DocumentsParsed.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 parsed document, got %v", got)
	}
	if got := testutil.ToFloat64(ElementsParsed.WithLabelValues("node")); got != 1 {
		t.Errorf("Expected 1 node, got %v", got)
	}
	if got := testutil.ToFloat64(ElementsParsed.WithLabelValues("way")); got != 1 {
		t.Errorf("Expected 1 way, got %v", got)
	}
	if got := testutil.ToFloat64(ElementsSkipped.WithLabelValues("node", "unparsable_float")); got != 1 {
		t.Errorf("Expected 1 skipped node, got %v", got)
	}

	if _, err := osm.Parse(strings.NewReader(`<osm><node id="1"`), osm.WithHooks(ParseHooks())); err == nil {
		t.Fatal("expected tokenizer error")
	}
	if got := testutil.ToFloat64(DocumentsParsed.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed document, got %v", got)
	}
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues("parser", "tokenizer")); got != 1 {
		t.Errorf("Expected 1 tokenizer error, got %v", got)
	}
}

func TestErrorMetrics(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("test_component", "test_error")
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues("test_component", "test_error")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func BenchmarkRecordMCPRequest(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordMCPRequest("benchmark_tool", 100*time.Millisecond, true)
	}
}

func BenchmarkRecordCacheHit(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordCacheHit("benchmark_cache")
	}
}
