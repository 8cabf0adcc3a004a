// Package registration announces the server to a service registry and keeps
// the entry alive with heartbeats. The registry is optional: failures are
// logged and the server keeps working without it.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/NERVsystems/osmxml/pkg/tracing"
)

const (
	// DefaultHeartbeatInterval is the default interval between heartbeats
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultTimeout bounds each registry request
	DefaultTimeout = 5 * time.Second
)

// Capabilities advertised for this server
var Capabilities = []string{"osm-xml", "reference-resolution", "area-classification"}

// Config holds the configuration for service registration.
type Config struct {
	RegistryURL string // e.g. http://registry:7083
	ServiceName string
	ServiceURL  string
	HealthURL   string
	Version     string
	Tools       []string
	Transports  []string

	HeartbeatInterval time.Duration
	Timeout           time.Duration
}

// Request is the body posted to the registry
type Request struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	URL          string         `json:"url"`
	HealthURL    string         `json:"health_url"`
	Version      string         `json:"version"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Tools        []string       `json:"tools,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Response is the registry's answer to a registration
type Response struct {
	Status     string `json:"status"`
	Name       string `json:"name"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Client registers the service and sends heartbeats until stopped.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	registered bool
}

// NewClient creates a registration client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		logger:     logger.With("component", "registration"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Start registers and begins heartbeats. It returns immediately.
func (c *Client) Start(ctx context.Context) {
	if c.cfg.RegistryURL == "" {
		c.logger.Warn("service registration enabled but no registry URL configured")
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.heartbeatLoop(ctx)
}

// Stop deregisters and ends the heartbeat loop
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.deregister()
}

// IsRegistered reports whether the last heartbeat succeeded
func (c *Client) IsRegistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

func (c *Client) setRegistered(v bool) {
	c.mu.Lock()
	c.registered = v
	c.mu.Unlock()
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	c.register(ctx)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.register(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) register(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "registration.heartbeat")
	defer span.End()

	body, err := json.Marshal(Request{
		Name:         c.cfg.ServiceName,
		Type:         "mcp",
		URL:          c.cfg.ServiceURL,
		HealthURL:    c.cfg.HealthURL,
		Version:      c.cfg.Version,
		Capabilities: Capabilities,
		Tools:        c.cfg.Tools,
		Metadata:     map[string]any{"transports": c.cfg.Transports},
	})
	if err != nil {
		c.logger.Error("failed to marshal registration request", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RegistryURL+"/api/register", bytes.NewReader(body))
	if err != nil {
		c.logger.Error("failed to create registration request", "error", err)
		c.setRegistered(false)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("registration failed (registry may be unavailable)", "error", err)
		span.RecordError(err)
		c.setRegistered(false)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("registration failed", "status", resp.StatusCode, "body", string(msg))
		c.setRegistered(false)
		return
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Warn("failed to decode registration response", "error", err)
		c.setRegistered(false)
		return
	}

	if !c.IsRegistered() {
		c.logger.Info("registered with service registry",
			"name", c.cfg.ServiceName,
			"ttl_seconds", out.TTLSeconds)
	}
	c.setRegistered(true)
}

func (c *Client) deregister() {
	if !c.IsRegistered() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/api/register/%s", c.cfg.RegistryURL, url.PathEscape(c.cfg.ServiceName))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("deregistration failed", "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.logger.Info("deregistered from service registry", "name", c.cfg.ServiceName)
	}
	c.setRegistered(false)
}
