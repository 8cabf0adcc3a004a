// Package tracing provides OpenTelemetry tracing for osmxml
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ServiceName is the name of the service in traces
	ServiceName = "osmxml"
	// TracerName is the name of the tracer
	TracerName = "github.com/NERVsystems/osmxml"
)

// Tracer is the global tracer instance
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(TracerName)

// InitTracing initializes OpenTelemetry tracing with an OTLP gRPC exporter.
//
// Tracing stays a no-op unless OTLP_ENDPOINT is set. OTLP_INSECURE=false
// enables TLS and OTLP_SAMPLE_RATIO (0..1) sets a ratio-based sampler.
func InitTracing(ctx context.Context, version string) (shutdown func(context.Context) error, err error) {
	endpoint := os.Getenv("OTLP_ENDPOINT")
	if endpoint == "" {
		Tracer = noop.NewTracerProvider().Tracer(TracerName)
		return func(ctx context.Context) error { return nil }, nil
	}

	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure, _ := strconv.ParseBool(envOr("OTLP_INSECURE", "true")); insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
			attribute.String("service.environment", envOr("ENVIRONMENT", "development")),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFromEnv()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	Tracer = tp.Tracer(TracerName)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}, nil
}

// samplerFromEnv returns a parent-based ratio sampler when OTLP_SAMPLE_RATIO
// holds a valid ratio, and AlwaysSample otherwise.
func samplerFromEnv() sdktrace.Sampler {
	ratio, err := strconv.ParseFloat(os.Getenv("OTLP_SAMPLE_RATIO"), 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// StartSpan starts a new span with common attributes
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, opts...)
}

// RecordError records an error on the span from context
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.RecordError(err, opts...)
	}
}

// SetStatus sets the status of the span from context
func SetStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// AddEvent adds an event to the span from context
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.AddEvent(name, opts...)
	}
}

// SetAttributes sets attributes on the span from context
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}
