package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/monitoring"
)

// HTTPTransportConfig holds configuration for the HTTP transport
type HTTPTransportConfig struct {
	Addr           string        // listen address, e.g. ":7082"
	BaseURL        string        // public URL announced to SSE clients
	AuthType       core.AuthType // none, bearer or basic
	AuthToken      string        // bearer token, or user:password for basic
	SSEEndpoint    string
	MsgEndpoint    string
	RateLimit      float64 // requests per second per client, 0 disables
	RateBurst      int
	MaxRequestSize int64
	TLSCertFile    string
	TLSKeyFile     string
}

// DefaultHTTPTransportConfig returns the defaults used by the binary
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		AuthType:       core.AuthNone,
		SSEEndpoint:    "/sse",
		MsgEndpoint:    "/message",
		RateLimit:      10,
		RateBurst:      20,
		MaxRequestSize: 10 << 20,
	}
}

// HTTPTransport serves an MCP server over HTTP+SSE
type HTTPTransport struct {
	config        HTTPTransportConfig
	logger        *slog.Logger
	sseServer     *mcpserver.SSEServer
	mux           *http.ServeMux
	httpSrv       *http.Server
	rateLimiter   *RateLimiter
	healthChecker *monitoring.HealthChecker
	mu            sync.RWMutex
}

// NewHTTPTransport creates a new HTTP transport instance
func NewHTTPTransport(mcpServer *mcpserver.MCPServer, config HTTPTransportConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultHTTPTransportConfig()
	if config.SSEEndpoint == "" {
		config.SSEEndpoint = def.SSEEndpoint
	}
	if config.MsgEndpoint == "" {
		config.MsgEndpoint = def.MsgEndpoint
	}
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = def.MaxRequestSize
	}
	if config.AuthType == "" {
		config.AuthType = core.AuthNone
	}

	if config.AuthType != core.AuthNone {
		if err := core.ValidateAuthToken(config.AuthToken); err != nil {
			logger.Warn("weak authentication token", "error", err.Error())
		}
	}

	t := &HTTPTransport{
		config: config,
		logger: logger.With("component", "http"),
		sseServer: mcpserver.NewSSEServer(mcpServer,
			mcpserver.WithSSEEndpoint(config.SSEEndpoint),
			mcpserver.WithMessageEndpoint(config.MsgEndpoint),
			mcpserver.WithBaseURL(config.BaseURL),
		),
		mux: http.NewServeMux(),
	}
	if config.RateLimit > 0 {
		t.rateLimiter = NewRateLimiter(rate.Limit(config.RateLimit), max(config.RateBurst, 1))
	}
	t.setupRoutes()
	return t
}

// SetHealthChecker sets the health checker behind /health and /live
func (t *HTTPTransport) SetHealthChecker(hc *monitoring.HealthChecker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthChecker = hc
}

func (t *HTTPTransport) setupRoutes() {
	t.mux.HandleFunc("GET /{$}", t.handleServiceDiscovery)
	t.mux.HandleFunc("GET /health", t.handleHealth)
	t.mux.HandleFunc("GET /live", t.handleLive)

	t.mux.Handle(t.config.SSEEndpoint, t.protect(t.sseServer.SSEHandler()))
	t.mux.Handle(t.config.MsgEndpoint, t.protect(t.sseServer.MessageHandler()))
}

// protect applies rate limiting and authentication to an MCP endpoint
func (t *HTTPTransport) protect(next http.Handler) http.Handler {
	h := t.authMiddleware(next)
	if t.rateLimiter != nil {
		h = t.rateLimiter.Middleware(h)
	}
	return h
}

func (t *HTTPTransport) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := core.Authenticate(r, t.config.AuthType, t.config.AuthToken)
		if !res.Authorized {
			t.logger.Warn("authentication failed",
				"remote_addr", clientIP(r),
				"path", r.URL.Path,
				"auth_type", t.config.AuthType,
				"error", res.Error)

			if t.config.AuthType == core.AuthBasic {
				w.Header().Set("WWW-Authenticate", `Basic realm="osmxml"`)
			} else {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			writeJSONRPCError(w, http.StatusUnauthorized, -32001, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	baseURL := t.config.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":   ServerName,
		"transport": "HTTP+SSE",
		"endpoints": map[string]string{
			"sse":     baseURL + t.config.SSEEndpoint,
			"message": baseURL + t.config.MsgEndpoint,
		},
		"auth": map[string]any{
			"required": t.config.AuthType != core.AuthNone,
		},
	})
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	hc := t.healthChecker
	t.mu.RUnlock()

	if hc != nil {
		hc.HealthHandler()(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (t *HTTPTransport) handleLive(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	hc := t.healthChecker
	t.mu.RUnlock()

	if hc != nil {
		hc.LivenessHandler()(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alive": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// Handler returns the transport's routes wrapped in its middleware chain
func (t *HTTPTransport) Handler() http.Handler {
	h := http.Handler(t.mux)
	h = TracingMiddleware()(h)
	h = LoggingMiddleware(t.logger)(h)
	h = SecurityHeaders(h)
	h = RequestSizeLimiter(t.config.MaxRequestSize)(h)
	return h
}

// Start serves HTTP requests. It blocks until the transport is shut down.
func (t *HTTPTransport) Start() error {
	t.mu.Lock()
	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started").
			WithGuidance("Stop the transport before starting it again.")
	}

	// No write timeout: SSE streams stay open.
	t.httpSrv = &http.Server{
		Addr:              t.config.Addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := t.httpSrv
	t.mu.Unlock()

	tls := t.config.TLSCertFile != "" && t.config.TLSKeyFile != ""
	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"sse_endpoint", t.config.SSEEndpoint,
		"message_endpoint", t.config.MsgEndpoint,
		"auth_type", t.config.AuthType,
		"tls", tls)

	var err error
	if tls {
		err = srv.ListenAndServeTLS(t.config.TLSCertFile, t.config.TLSKeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP transport
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.httpSrv == nil {
		return nil
	}
	t.logger.Info("shutting down HTTP transport")

	if err := t.sseServer.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shutdown SSE server", "error", err)
	}
	err := t.httpSrv.Shutdown(ctx)
	t.httpSrv = nil
	return err
}

// GetConfig returns the transport configuration
func (t *HTTPTransport) GetConfig() HTTPTransportConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}
