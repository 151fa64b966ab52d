// Package server exposes the search pipeline as an MCP tool and a metadata
// resource, over streamable HTTP, SSE or stdio.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/FranksOps/websearch/internal/pipeline"
)

const (
	// ToolName is the search tool exposed to clients.
	ToolName = "search_web"
	// InfoURI addresses the service metadata resource.
	InfoURI = "resource://search_info"

	// DefaultPath serves the streamable HTTP transport.
	DefaultPath = "/mcp"
	// SSEPath serves the legacy SSE transport.
	SSEPath = "/sse"
)

// Info describes the service to clients.
type Info struct {
	Name                   string   `json:"name" yaml:"name"`
	Description            string   `json:"description" yaml:"description"`
	Version                string   `json:"version" yaml:"version"`
	SupportedSearchEngines []string `json:"supported_search_engines" yaml:"supported_search_engines"`
	MaxResultsPerQuery     int      `json:"max_results_per_query" yaml:"max_results_per_query"`
	Features               []string `json:"features" yaml:"features"`
}

var engineNames = map[string]string{
	"duckduckgo": "DuckDuckGo",
	"google":     "Google",
}

// NewInfo derives the descriptor from the pipeline's chain. The static
// placeholder strategy is not listed as an engine.
func NewInfo(p *pipeline.Pipeline, version string) Info {
	engines := []string{}
	for _, s := range p.Strategies() {
		if name, ok := engineNames[s]; ok {
			engines = append(engines, name)
		}
	}
	return Info{
		Name:                   "Web Search Service",
		Description:            "Searches the web for information on various topics",
		Version:                version,
		SupportedSearchEngines: engines,
		MaxResultsPerQuery:     p.MaxResults(),
		Features: []string{
			"Real-time web search",
			"Multiple search engines",
			"Fallback mechanisms",
			"Search time tracking",
		},
	}
}

// SearchInput is the search_web argument object.
type SearchInput struct {
	Topic      string `json:"topic" jsonschema:"the topic to search the web for"`
	NumResults *int   `json:"num_results,omitempty" jsonschema:"maximum number of results to return, default 10"`
}

// Server hosts the MCP surface for one pipeline.
type Server struct {
	mcp    *mcp.Server
	pipe   *pipeline.Pipeline
	info   Info
	logger *slog.Logger
}

// New registers the search tool and metadata resource.
func New(p *pipeline.Pipeline, info Info, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{Name: "websearch", Version: info.Version},
			&mcp.ServerOptions{Logger: logger.With("component", "mcp")},
		),
		pipe:   p,
		info:   info,
		logger: logger,
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolName,
		Description: "Search the web for information on a topic and return titles, URLs and snippets.",
	}, s.search)

	s.mcp.AddResource(&mcp.Resource{
		URI:         InfoURI,
		Name:        "search_info",
		Description: "Information about the web search service",
		MIMEType:    "application/json",
	}, s.readInfo)

	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// search never returns a Go error for search failures; they are carried in
// the outcome's error field.
func (s *Server) search(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, pipeline.Outcome, error) {
	out := s.pipe.Execute(ctx, pipeline.Request{Topic: in.Topic, NumResults: in.NumResults})

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, pipeline.Outcome{}, fmt.Errorf("encoding outcome: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, out, nil
}

func (s *Server) readInfo(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	raw, err := json.Marshal(s.info)
	if err != nil {
		return nil, fmt.Errorf("encoding search info: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(raw),
		}},
	}, nil
}

// Handler routes streamable HTTP on path, SSE on /sse and a liveness probe on
// /healthz.
func (s *Server) Handler(path string) http.Handler {
	if path == "" {
		path = DefaultPath
	}
	get := func(*http.Request) *mcp.Server { return s.mcp }

	mux := http.NewServeMux()
	mux.Handle(path, mcp.NewStreamableHTTPHandler(get, nil))
	if path != SSEPath {
		mux.Handle(SSEPath, mcp.NewSSEHandler(get, nil))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// HTTPConfig tunes Serve.
type HTTPConfig struct {
	Path            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Serve serves the HTTP transports on ln until ctx is done, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener, cfg HTTPConfig) error {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Handler:           s.Handler(cfg.Path),
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "addr", ln.Addr().String(), "path", cfg.Path)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down mcp server", "timeout", cfg.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string, cfg HTTPConfig) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return s.Serve(ctx, ln, cfg)
}

// RunStdio serves one session over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp server running on stdio")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: stdio: %w", err)
	}
	return nil
}
