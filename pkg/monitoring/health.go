package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/NERVsystems/osmxml/pkg/version"
)

// Connection states
const (
	StatusConnected = "connected"
	StatusDegraded  = "degraded"
	StatusError     = "error"
)

// ServiceHealth is the body served by the health endpoint
type ServiceHealth struct {
	Service       string                `json:"service"`
	Version       string                `json:"version"`
	Status        string                `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	Connections   map[string]ConnStatus `json:"connections"`
	Metrics       map[string]any        `json:"metrics,omitempty"`
}

// ConnStatus is the last observed state of an upstream document source
type ConnStatus struct {
	Status    string `json:"status"`
	Latency   int64  `json:"latency_ms,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// HealthChecker tracks upstream sources and process state
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]ConnStatus

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHealthChecker creates a health checker and starts collecting system metrics
func NewHealthChecker(serviceName, version string) *HealthChecker {
	ctx, cancel := context.WithCancel(context.Background())

	hc := &HealthChecker{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		connections: make(map[string]ConnStatus),
		ctx:         ctx,
		cancel:      cancel,
	}
	hc.updateSystemMetrics()
	go hc.collectSystemMetrics()

	return hc
}

// UpdateConnection records the result of a check against a named source
func (h *HealthChecker) UpdateConnection(name, status string, latencyMs int64, err error) {
	cs := ConnStatus{Status: status, Latency: latencyMs}
	if err != nil {
		cs.LastError = err.Error()
	}

	h.mu.Lock()
	h.connections[name] = cs
	h.mu.Unlock()
}

// GetHealth returns the current health status. Failing sources only
// degrade the service: local files can still be parsed without them.
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	connections := make(map[string]ConnStatus, len(h.connections))
	failing := 0
	for k, v := range h.connections {
		connections[k] = v
		if v.Status != StatusConnected {
			failing++
		}
	}
	h.mu.RUnlock()

	status := "healthy"
	if failing > 0 {
		status = "degraded"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ServiceHealth{
		Service:       h.serviceName,
		Version:       h.version,
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StartTime:     h.startTime,
		Connections:   connections,
		Metrics: map[string]any{
			"goroutines":      runtime.NumGoroutine(),
			"memory_alloc_mb": m.Alloc / 1024 / 1024,
			"gc_runs":         m.NumGC,
		},
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.GetHealth())
	}
}

// LivenessHandler returns a simple liveness check
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"alive":  true,
			"uptime": time.Since(h.startTime).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *HealthChecker) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.updateSystemMetrics()
		}
	}
}

func (h *HealthChecker) updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	GoRoutines.Set(float64(runtime.NumGoroutine()))
	MemoryUsage.Set(float64(m.Alloc))

	info := version.Info()
	SystemInfo.WithLabelValues(info["version"], info["go_version"], info["commit"], info["build_date"]).Set(1)
}

// Shutdown stops background collection
func (h *HealthChecker) Shutdown() {
	h.cancel()
}

// ConnectionMonitor periodically runs a check against one source
type ConnectionMonitor struct {
	name          string
	healthChecker *HealthChecker
	checkFunc     func(ctx context.Context) error
	interval      time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionMonitor creates a new connection monitor
func NewConnectionMonitor(name string, hc *HealthChecker, checkFunc func(ctx context.Context) error, interval time.Duration) *ConnectionMonitor {
	ctx, cancel := context.WithCancel(hc.ctx)
	return &ConnectionMonitor{
		name:          name,
		healthChecker: hc,
		checkFunc:     checkFunc,
		interval:      interval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins monitoring the connection
func (cm *ConnectionMonitor) Start() {
	go cm.monitor()
}

// Stop stops monitoring the connection
func (cm *ConnectionMonitor) Stop() {
	cm.cancel()
}

func (cm *ConnectionMonitor) monitor() {
	cm.performCheck()

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.performCheck()
		}
	}
}

func (cm *ConnectionMonitor) performCheck() {
	ctx, cancel := context.WithTimeout(cm.ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	err := cm.checkFunc(ctx)
	latency := time.Since(start).Milliseconds()

	status := StatusConnected
	if err != nil {
		status = StatusError
	}
	cm.healthChecker.UpdateConnection(cm.name, status, latency, err)
}
