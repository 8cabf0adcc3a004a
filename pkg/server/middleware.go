package server

import (
	"bufio"
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmxml/pkg/tracing"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// maxVisitors bounds the number of clients tracked by a RateLimiter
const maxVisitors = 10000

// RateLimiter limits requests per client IP. The least recently seen
// clients are forgotten once maxVisitors is reached.
type RateLimiter struct {
	visitors *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing r requests per second with
// bursts of b for each client
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return newRateLimiter(r, b, maxVisitors)
}

func newRateLimiter(r rate.Limit, b, size int) *RateLimiter {
	visitors, _ := lru.New[string, *rate.Limiter](size) // size is always positive
	return &RateLimiter{visitors: visitors, rate: r, burst: b}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	if l, ok := rl.visitors.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	if prev, ok, _ := rl.visitors.PeekOrAdd(ip, l); ok {
		return prev
	}
	return l
}

// Middleware returns an HTTP middleware that rate limits requests
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", retryAfter(rl.rate))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the number of whole seconds until a drained limiter
// refills one token
func retryAfter(r rate.Limit) string {
	if r <= 0 {
		return "60"
	}
	return strconv.Itoa(max(int(math.Ceil(1/float64(r))), 1))
}

// clientIP extracts the client IP, trusting X-Forwarded-For and X-Real-IP
// when they hold a valid address
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RequestSizeLimiter returns middleware that limits request body size
func RequestSizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	return time.Now().Format("20060102150405.000000000")
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = generateRequestID()
			}
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, reqID))

			next.ServeHTTP(wrapped, r)

			logger.Info("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", clientIP(r),
				"status", wrapped.statusCode,
				"duration", time.Since(start),
				"bytes", wrapped.bytesWritten)
		})
	}
}

// responseWriter captures the status code and size of a response. It keeps
// the Flusher and Hijacker behavior SSE streams rely on.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int64
	headerWritten bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.headerWritten {
		rw.statusCode = code
		rw.headerWritten = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// TracingMiddleware adds OpenTelemetry tracing to HTTP requests
func TracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithAttributes(
					attribute.String(tracing.AttrHTTPMethod, r.Method),
					attribute.String(tracing.AttrHTTPPath, r.URL.Path),
				),
			)
			defer span.End()

			sessionID := r.URL.Query().Get("sessionId")
			if sessionID == "" {
				sessionID = r.Header.Get("X-Session-ID")
			}
			if sessionID != "" {
				span.SetAttributes(attribute.String(tracing.AttrHTTPSessionID, sessionID))
			}

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			span.SetAttributes(attribute.Int(tracing.AttrHTTPStatusCode, wrapped.statusCode))
			if wrapped.statusCode >= 400 {
				span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}
