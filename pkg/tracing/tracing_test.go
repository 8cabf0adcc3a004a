package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracing_NoEndpoint(t *testing.T) {
	t.Setenv("OTLP_ENDPOINT", "")

	ctx := context.Background()
	shutdown, err := InitTracing(ctx, "test-version")
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	defer shutdown(ctx)

	if Tracer == nil {
		t.Fatal("Tracer is nil")
	}

	// Operations on the no-op tracer must not panic
	ctx, span := StartSpan(ctx, "test-span")
	span.SetAttributes(attribute.String("test", "value"))
	SetStatus(ctx, codes.Ok, "test")
	RecordError(ctx, errors.New("boom"))
	AddEvent(ctx, "event")
	SetAttributes(ctx, attribute.Int("n", 1))
	span.End()

	if span.IsRecording() {
		t.Error("expected no-op span")
	}
}

func TestStartSpanPutsSpanInContext(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test-operation",
		trace.WithAttributes(attribute.String("test.key", "test-value")),
	)
	defer span.End()

	if trace.SpanFromContext(ctx) != span {
		t.Fatal("span not stored in context")
	}
}

func TestSamplerFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"unset", "", sdktrace.AlwaysSample().Description()},
		{"garbage", "abc", sdktrace.AlwaysSample().Description()},
		{"out of range", "1.5", sdktrace.AlwaysSample().Description()},
		{"ratio", "0.25", sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTLP_SAMPLE_RATIO", tt.value)
			if got := samplerFromEnv().Description(); got != tt.want {
				t.Errorf("samplerFromEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	if got := envOr("ENVIRONMENT", "development"); got != "development" {
		t.Errorf("envOr() = %s, expected 'development'", got)
	}

	t.Setenv("ENVIRONMENT", "production")
	if got := envOr("ENVIRONMENT", "development"); got != "production" {
		t.Errorf("envOr() = %s, expected 'production'", got)
	}
}

func TestAttributeHelpers(t *testing.T) {
	if attrs := ParseAttributes(1, 2, 3, true); len(attrs) != 4 {
		t.Errorf("ParseAttributes returned %d attributes, expected 4", len(attrs))
	}

	if attrs := SourceAttributes(SourceFile, "map.osm"); len(attrs) != 2 {
		t.Errorf("SourceAttributes returned %d attributes, expected 2", len(attrs))
	}

	if attrs := CacheAttributes(true, "key"); len(attrs) != 2 {
		t.Errorf("CacheAttributes returned %d attributes, expected 2", len(attrs))
	}

	if attrs := ErrorAttributes("parse", nil); len(attrs) != 0 {
		t.Errorf("ErrorAttributes with nil returned %d attributes, expected 0", len(attrs))
	}

	if attrs := ErrorAttributes("parse", errors.New("bad")); len(attrs) != 2 {
		t.Errorf("ErrorAttributes returned %d attributes, expected 2", len(attrs))
	}
}
