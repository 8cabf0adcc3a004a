package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/osmxml/pkg/cache"
	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/loader"
	"github.com/NERVsystems/osmxml/pkg/monitoring"
	"github.com/NERVsystems/osmxml/pkg/osm"
	"github.com/NERVsystems/osmxml/pkg/registration"
	"github.com/NERVsystems/osmxml/pkg/server"
	"github.com/NERVsystems/osmxml/pkg/tools"
	"github.com/NERVsystems/osmxml/pkg/tracing"
	ver "github.com/NERVsystems/osmxml/pkg/version"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	showVersion bool
	debug       bool
	summary     string
	strict      bool

	apiURL      string
	overpassURL string
	userAgent   string
	apiRPS      float64
	apiBurst    int

	cacheSize int
	cacheTTL  time.Duration

	tagOnlyPolygons bool

	// HTTP transport
	enableHTTP    bool
	httpOnly      bool
	httpAddr      string
	httpBaseURL   string
	httpAuthType  string
	httpAuthToken string
	httpRateLimit float64

	// Monitoring
	enableMonitoring bool
	monitoringAddr   string

	// Registration
	enableRegistration bool
	registryURL        string
	serviceURL         string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("osmxml", flag.ContinueOnError)

	fs.BoolVar(&o.showVersion, "version", false, "Display version information")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&o.summary, "summary", "", "Parse a source (path, api:bbox or overpass:bbox), print its summary and exit")
	fs.BoolVar(&o.strict, "strict", false, "With -summary, fail on the first malformed element")

	fs.StringVar(&o.apiURL, "api-url", envOr("OSMXML_API_URL", loader.DefaultAPIURL), "OSM API base URL")
	fs.StringVar(&o.overpassURL, "overpass-url", envOr("OSMXML_OVERPASS_URL", loader.DefaultOverpassURL), "Overpass interpreter URL")
	fs.StringVar(&o.userAgent, "user-agent", envOr("OSMXML_USER_AGENT", loader.DefaultUserAgent), "User-Agent string for upstream requests")
	fs.Float64Var(&o.apiRPS, "api-rps", envFloat("OSMXML_API_RPS", 1.0), "Upstream rate limit in requests per second")
	fs.IntVar(&o.apiBurst, "api-burst", 1, "Upstream rate limit burst size")

	fs.IntVar(&o.cacheSize, "cache-size", cache.DefaultSize, "Maximum number of parsed maps kept in memory")
	fs.DurationVar(&o.cacheTTL, "cache-ttl", cache.DefaultTTL, "Lifetime of fetched maps (files are revalidated by mtime)")

	fs.BoolVar(&o.tagOnlyPolygons, "tag-only-polygons", false, "Classify areas by tags alone, without requiring a closed way")

	fs.BoolVar(&o.enableHTTP, "enable-http", false, "Enable HTTP+SSE transport (in addition to stdio)")
	fs.BoolVar(&o.httpOnly, "http-only", false, "Run HTTP transport only, skip stdio (requires --enable-http)")
	fs.StringVar(&o.httpAddr, "http-addr", ":7082", "HTTP server address")
	fs.StringVar(&o.httpBaseURL, "http-base-url", "", "Base URL for HTTP transport (auto-detected if empty)")
	fs.StringVar(&o.httpAuthType, "http-auth-type", envOr("OSMXML_HTTP_AUTH_TYPE", "none"), "HTTP authentication type: none, bearer, basic")
	fs.StringVar(&o.httpAuthToken, "http-auth-token", os.Getenv("OSMXML_HTTP_AUTH_TOKEN"), "HTTP authentication token")
	fs.Float64Var(&o.httpRateLimit, "http-rate-limit", 10, "HTTP requests per second per client")

	fs.BoolVar(&o.enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health endpoints")
	fs.StringVar(&o.monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	fs.BoolVar(&o.enableRegistration, "enable-registration", false, "Announce this server to a service registry")
	fs.StringVar(&o.registryURL, "registry-url", os.Getenv("OSMXML_REGISTRY_URL"), "Service registry URL (e.g., http://registry:7083)")
	fs.StringVar(&o.serviceURL, "service-url", "", "External URL where this service is accessible")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.httpOnly && !o.enableHTTP {
		return o, errors.New("--http-only requires --enable-http")
	}
	if _, err := core.ParseAuthType(o.httpAuthType); err != nil {
		return o, err
	}
	return o, nil
}

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Println(ver.String())
		return
	}

	logLevel := slog.LevelInfo
	if opts.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(opts, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, ver.BuildVersion)
	if err != nil {
		// Tracing is optional
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
	}

	cfg := loader.DefaultConfig()
	cfg.APIURL = opts.apiURL
	cfg.OverpassURL = opts.overpassURL
	cfg.UserAgent = opts.userAgent
	cfg.RPS = opts.apiRPS
	cfg.Burst = opts.apiBurst
	ld := loader.New(cfg, logger)

	models, err := cache.NewModelCache(ld, opts.cacheSize, opts.cacheTTL, logger)
	if err != nil {
		return err
	}

	classifier := osm.DefaultClassifier
	if opts.tagOnlyPolygons {
		classifier = osm.TagOnlyClassifier
	}
	registry := tools.NewRegistry(logger, ld, models, classifier)

	if opts.summary != "" {
		return printSummary(ctx, registry, opts.summary, opts.strict, os.Stdout)
	}

	logger.Info("starting OSM XML MCP server",
		"version", ver.BuildVersion,
		"log_level", levelName(opts),
		"api_url", opts.apiURL,
		"overpass_url", opts.overpassURL,
		"api_rps", opts.apiRPS,
		"cache_size", opts.cacheSize,
		"tag_only_polygons", opts.tagOnlyPolygons,
		"http_enabled", opts.enableHTTP,
		"monitoring_enabled", opts.enableMonitoring)

	var healthChecker *monitoring.HealthChecker
	if opts.enableMonitoring {
		osm.SetMonitoringHooks(monitoring.ParseHooks())

		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()

		apiMonitor := monitoring.NewConnectionMonitor("osm_api", healthChecker, ld.Ping, 30*time.Second)
		apiMonitor.Start()
		defer apiMonitor.Stop()

		startMonitoringServer(ctx, opts.monitoringAddr, healthChecker, logger)
	}

	s := server.NewServer(registry, logger)

	if opts.enableRegistration {
		svcURL := opts.serviceURL
		if svcURL == "" && opts.enableHTTP {
			svcURL = "http://localhost" + opts.httpAddr
		}
		transports := []string{"stdio"}
		if opts.enableHTTP {
			transports = append(transports, "http")
		}
		regClient := registration.NewClient(registration.Config{
			RegistryURL: opts.registryURL,
			ServiceName: monitoring.ServiceName,
			ServiceURL:  svcURL,
			HealthURL:   svcURL + "/health",
			Version:     ver.BuildVersion,
			Tools:       registry.GetToolNames(),
			Transports:  transports,
		}, logger)
		regClient.Start(ctx)
		defer regClient.Stop()
	}

	if opts.enableHTTP {
		authType, _ := core.ParseAuthType(opts.httpAuthType)
		config := server.DefaultHTTPTransportConfig()
		config.Addr = opts.httpAddr
		config.BaseURL = opts.httpBaseURL
		config.AuthType = authType
		config.AuthToken = opts.httpAuthToken
		config.RateLimit = opts.httpRateLimit

		httpTransport := server.NewHTTPTransport(s.GetMCPServer(), config, logger)
		if healthChecker != nil {
			httpTransport.SetHealthChecker(healthChecker)
		}

		go func() {
			logger.Info("starting HTTP+SSE transport", "addr", opts.httpAddr)
			if err := httpTransport.Start(); err != nil {
				logger.Error("HTTP transport error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpTransport.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown HTTP transport", "error", err)
			}
		}()
	}

	// stdio blocks unless HTTP is enabled; with HTTP it runs alongside
	switch {
	case !opts.enableHTTP:
		logger.Info("transport_enabled", "type", "stdio", "mode", "blocking")
		if err := s.Run(ctx); err != nil {
			return err
		}
	case opts.httpOnly:
		logger.Info("server_ready", "transports", []string{"http"}, "http_only", true)
		<-ctx.Done()
	default:
		go func() {
			if err := s.Run(ctx); err != nil {
				logger.Error("stdio transport error", "error", err)
			}
		}()
		logger.Info("server_ready", "transports", []string{"stdio", "http"})
		<-ctx.Done()
	}

	logger.Info("server stopped")
	return nil
}

func levelName(opts options) string {
	if opts.debug {
		return slog.LevelDebug.String()
	}
	return slog.LevelInfo.String()
}

func startMonitoringServer(ctx context.Context, addr string, hc *monitoring.HealthChecker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/health", hc.HealthHandler())
	mux.Handle("/live", hc.LivenessHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting monitoring server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitoring server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}()
}

// printSummary runs the osm_summary tool once and writes its JSON to out.
func printSummary(ctx context.Context, registry *tools.Registry, source string, strict bool, out io.Writer) error {
	var req mcp.CallToolRequest
	req.Params.Name = "osm_summary"
	req.Params.Arguments = map[string]any{"source": source}

	handler := registry.HandleSummary
	if strict {
		req.Params.Name = "osm_load"
		req.Params.Arguments = map[string]any{"source": source, "strict": true}
		handler = registry.HandleLoad
	}

	res, err := handler(ctx, req)
	if err != nil {
		return err
	}
	text := tools.ResultText(res)
	if res.IsError {
		return errors.New(text)
	}
	_, err = fmt.Fprintln(out, text)
	return err
}
