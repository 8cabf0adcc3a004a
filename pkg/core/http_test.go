package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var fastRetry = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

func TestWithRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<osm/>"))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := WithRetry(context.Background(), req, srv.Client(), fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestWithRetryStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := WithRetry(context.Background(), req, srv.Client(), fastRetry)

	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) || mcpErr.Code != string(ErrInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := WithRetry(context.Background(), req, srv.Client(), fastRetry)

	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) || mcpErr.Code != string(ErrRateLimit) {
		t.Fatalf("expected RATE_LIMIT, got %v", err)
	}
}

func TestWithRetryCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := WithRetry(ctx, req, srv.Client(), RetryOptions{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
