package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmxml/pkg/tracing"
)

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions provides sensible defaults for retries
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

// DefaultClient provides a pre-configured HTTP client. Map extracts can be
// large, so the timeout is generous.
var DefaultClient = &http.Client{
	Timeout: 120 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// retryable reports whether a response status is worth another attempt
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == 509 || status >= 500
}

// WithRetry performs a bodiless HTTP request with exponential backoff.
// Only network errors and 5xx or rate-limit answers are retried; any other
// non-200 status is returned at once as a ServiceError.
func WithRetry(ctx context.Context, req *http.Request, client *http.Client, options RetryOptions) (*http.Response, error) {
	if client == nil {
		client = DefaultClient
	}
	if req.Body != nil && req.Body != http.NoBody {
		return nil, NewError(ErrInternalError, "cannot retry request with non-nil body")
	}

	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("http.request %s %s", req.Method, req.URL.Host),
		trace.WithAttributes(
			attribute.String(tracing.AttrHTTPURL, req.URL.String()),
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	logger := slog.Default().With("url", req.URL.String(), "method", req.Method)

	var lastErr error
	delay := options.InitialDelay

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", delay.Milliseconds()),
					attribute.String("error", fmt.Sprintf("%v", lastErr)),
				),
			)
			logger.Info("retrying request",
				"attempt", attempt+1,
				"max_attempts", options.MaxAttempts,
				"delay", delay,
				"last_error", lastErr,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "request cancelled")
				return nil, ctx.Err()
			}

			delay = time.Duration(float64(delay) * options.Multiplier)
			if delay > options.MaxDelay {
				delay = options.MaxDelay
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			span.SetStatus(codes.Ok, "")
			logger.Debug("request successful",
				"status", resp.StatusCode,
				"content_length", resp.ContentLength,
				"content_type", resp.Header.Get("Content-Type"),
			)
			return resp, nil
		}

		if err != nil {
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, "request cancelled")
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Error("request failed", "error", err, "attempt", attempt+1)
			continue
		}

		lastErr = ServiceError(req.URL.Host, resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
		logger.Error("request returned error status", "status", resp.StatusCode, "attempt", attempt+1)
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
		if !retryable(resp.StatusCode) {
			span.SetAttributes(attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode))
			span.SetStatus(codes.Error, lastErr.Error())
			return nil, lastErr
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "max retries exceeded")

	if mcpErr, ok := lastErr.(*MCPError); ok {
		return nil, mcpErr.WithGuidance("Maximum retry attempts reached. " + mcpErr.Guidance)
	}
	return nil, NewError(ErrNetworkError, fmt.Sprintf("max retries reached: %v", lastErr)).
		WithGuidance("The request failed after multiple attempts. Please try again later")
}
