package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/FranksOps/websearch/internal/pipeline"
	"github.com/FranksOps/websearch/internal/serp"
	"github.com/FranksOps/websearch/internal/server"
)

type failing struct{}

func (failing) Name() string { return "duckduckgo" }

func (failing) Search(context.Context, string, int) ([]serp.Result, error) {
	return nil, errors.New("connection reset")
}

func newServer(t *testing.T, providers ...serp.Provider) *server.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := pipeline.New(providers, pipeline.Config{}, logger)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return server.New(p, server.NewInfo(p, "test"), logger)
}

func connect(t *testing.T, s *server.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go func() {
		_ = s.MCP().Run(ctx, serverTransport)
	}()

	c, err := ConnectWithTransport(ctx, clientTransport)
	if err != nil {
		t.Fatalf("ConnectWithTransport: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSearchOutcome(t *testing.T) {
	c := connect(t, newServer(t, failing{}, serp.Static{}))

	n := 3
	out, err := c.SearchOutcome(context.Background(), "xyz123nonexistent", &n)
	if err != nil {
		t.Fatalf("SearchOutcome: %v", err)
	}
	if out.Count != 3 || out.Strategy != "static" {
		t.Errorf("expected 3 static results, got %d via %q", out.Count, out.Strategy)
	}
	if out.Results[0].Title != "Result 1 for xyz123nonexistent" {
		t.Errorf("unexpected first result: %+v", out.Results[0])
	}
}

func TestSearch_RawJSON(t *testing.T) {
	c := connect(t, newServer(t, serp.Static{}))

	raw, err := c.Search(context.Background(), "golang", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		t.Errorf("expected a JSON object, got %s", raw)
	}
}

func TestSearch_ExhaustedChain(t *testing.T) {
	c := connect(t, newServer(t, failing{}))

	out, err := c.SearchOutcome(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("search failures must not surface as call errors: %v", err)
	}
	if out.Error == "" || out.Count != 0 || out.Results == nil {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestInfo(t *testing.T) {
	c := connect(t, newServer(t, failing{}, serp.Static{}))

	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Version != "test" || len(info.SupportedSearchEngines) != 1 || info.SupportedSearchEngines[0] != "DuckDuckGo" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestTransport(t *testing.T) {
	if _, ok := Transport("http://localhost:8001/sse", nil).(*mcp.SSEClientTransport); !ok {
		t.Error("expected SSE transport for /sse")
	}
	if _, ok := Transport("http://localhost:8001/sse/", nil).(*mcp.SSEClientTransport); !ok {
		t.Error("expected SSE transport for /sse/")
	}
	if _, ok := Transport("http://localhost:8001/mcp", nil).(*mcp.StreamableClientTransport); !ok {
		t.Error("expected streamable transport for /mcp")
	}
}

func TestDial_HTTP(t *testing.T) {
	s := newServer(t, serp.Static{})
	ts := httptest.NewServer(s.Handler(server.DefaultPath))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, path := range []string{server.DefaultPath, server.SSEPath} {
		c, err := Dial(ctx, ts.URL+path)
		if err != nil {
			t.Fatalf("Dial %s: %v", path, err)
		}
		out, err := c.SearchOutcome(ctx, "golang", nil)
		if err != nil {
			t.Fatalf("SearchOutcome over %s: %v", path, err)
		}
		if out.Count != 5 {
			t.Errorf("expected 5 results over %s, got %d", path, out.Count)
		}
		_ = c.Close()
	}
}

func TestDial_SSESessionFollowsDialContext(t *testing.T) {
	s := newServer(t, serp.Static{})
	ts := httptest.NewServer(s.Handler(server.DefaultPath))
	defer ts.Close()

	dialCtx, cancelDial := context.WithCancel(context.Background())
	defer cancelDial()
	c, err := Dial(dialCtx, ts.URL+server.SSEPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := c.SearchOutcome(ctx, "golang", nil)
		cancel()
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
	}

	cancelDial()
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := c.SearchOutcome(ctx, "golang", nil)
		cancel()
		if err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected the session to end with the dial context")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, "http://127.0.0.1:1/mcp"); err == nil {
		t.Error("expected error dialing a closed port")
	}
}
