// Package server runs the OSM XML tools as an MCP server over stdio or
// HTTP+SSE.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmxml/pkg/core"
	"github.com/NERVsystems/osmxml/pkg/tools"
	"github.com/NERVsystems/osmxml/pkg/version"
)

// ServerName is the name reported to MCP clients
const ServerName = "osmxml"

// Server encapsulates the MCP server with the OSM XML tools.
type Server struct {
	srv    *mcpserver.MCPServer
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer creates an MCP server with every tool of registry registered.
func NewServer(registry *tools.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing OSM XML MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)
	registry.RegisterTools(srv)

	srv.AddPrompt(mcp.NewPrompt("osm_xml_guide",
		mcp.WithPromptDescription("How to inspect OpenStreetMap XML documents with these tools"),
	), func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return mcp.NewGetPromptResult(
			"OSM XML Guide",
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(guidePrompt)),
			},
		), nil
	})

	return &Server{
		srv:    srv,
		logger: logger,
		done:   make(chan struct{}),
	}
}

const guidePrompt = `You can read OpenStreetMap XML documents.

Every tool that reads a document takes a "source":
- a local path such as data/city.osm or data/city.osm.gz
- api:min_lon,min_lat,max_lon,max_lat to download a small area from the OSM API
- overpass:min_lon,min_lat,max_lon,max_lat to download it from Overpass

Start with osm_load or osm_summary to see what a document contains, or
osm_fetch to download an area by bounding box. Parsed documents stay in
memory, so later calls on the same source are fast. osm_validate checks
several documents at once and reports the first malformed element of each.

Node, way and relation ids are separate: node 5 and way 5 are different
elements. References to elements outside the document are normal in
extracts; tools report them as missing rather than failing.

Use osm_classify_way to decide whether a way is an area (a building, a park)
or a line (a road, a river). osm_polygon_rules lists the tag rules behind it.`

// Run serves MCP over stdin and stdout until ctx is canceled, Shutdown is
// called or stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams. A Server can be served once.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return core.NewError(core.ErrInternalError, "server already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	stdio := mcpserver.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Shutdown stops a running server. It does not block.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// WaitForShutdown blocks until Serve has returned.
func (s *Server) WaitForShutdown() {
	<-s.done
}

// GetMCPServer returns the underlying MCP server instance for HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}
