package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHealthChecker(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")
	defer hc.Shutdown()

	if hc.serviceName != "test-service" {
		t.Errorf("Expected service name 'test-service', got %s", hc.serviceName)
	}
	if hc.version != "1.0.0" {
		t.Errorf("Expected version '1.0.0', got %s", hc.version)
	}
	if hc.connections == nil {
		t.Error("Connections map should be initialized")
	}
}

func TestGetHealthStatus(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")
	defer hc.Shutdown()

	if got := hc.GetHealth().Status; got != "healthy" {
		t.Errorf("Expected healthy with no connections, got %s", got)
	}

	hc.UpdateConnection("osm-api", StatusConnected, 100, nil)
	if got := hc.GetHealth().Status; got != "healthy" {
		t.Errorf("Expected healthy, got %s", got)
	}

	hc.UpdateConnection("osm-api", StatusError, 0, errors.New("connection refused"))
	health := hc.GetHealth()
	if health.Status != "degraded" {
		t.Errorf("Expected degraded, got %s", health.Status)
	}
	if got := health.Connections["osm-api"].LastError; got != "connection refused" {
		t.Errorf("Expected last error to be recorded, got %q", got)
	}
}

func TestHealthHandler(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")
	defer hc.Shutdown()
	hc.UpdateConnection("osm-api", StatusConnected, 12, nil)

	rec := httptest.NewRecorder()
	hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}

	var health ServiceHealth
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.Service != "test-service" || health.Connections["osm-api"].Latency != 12 {
		t.Errorf("Unexpected health body: %+v", health)
	}
}

func TestLivenessHandler(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")
	defer hc.Shutdown()

	rec := httptest.NewRecorder()
	hc.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["alive"] != true {
		t.Errorf("Expected alive=true, got %v", body["alive"])
	}
}

func TestConnectionMonitor(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")
	defer hc.Shutdown()

	checked := make(chan struct{}, 1)
	cm := NewConnectionMonitor("osm-api", hc, func(ctx context.Context) error {
		select {
		case checked <- struct{}{}:
		default:
		}
		return errors.New("down")
	}, time.Hour)
	cm.Start()
	defer cm.Stop()

	select {
	case <-checked:
	case <-time.After(2 * time.Second):
		t.Fatal("check was not run")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hc.GetHealth().Connections["osm-api"].Status == StatusError {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Expected connection to be marked as error")
}
