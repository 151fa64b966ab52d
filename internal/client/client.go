// Package client calls a running websearch MCP server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/FranksOps/websearch/internal/pipeline"
	"github.com/FranksOps/websearch/internal/server"
)

// ErrToolFailed is returned when the server reports a tool-level error.
var ErrToolFailed = errors.New("tool call failed")

// Client holds one MCP session.
type Client struct {
	session *mcp.ClientSession
}

// Transport picks the transport for endpoint: SSE when the path ends in
// /sse, streamable HTTP otherwise. A nil httpClient uses the default.
func Transport(endpoint string, httpClient *http.Client) mcp.Transport {
	if strings.HasSuffix(strings.TrimRight(endpoint, "/"), server.SSEPath) {
		return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}
	}
	return &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: httpClient}
}

// Dial connects to the server at endpoint. Over SSE the event stream is
// tied to ctx, so ctx must outlive the session; cancelling it ends the
// session.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	return ConnectWithTransport(ctx, Transport(endpoint, nil))
}

// ConnectWithTransport performs the MCP handshake over transport.
func ConnectWithTransport(ctx context.Context, transport mcp.Transport) (*Client, error) {
	c := mcp.NewClient(&mcp.Implementation{Name: "websearch-client", Version: "1.0.0"}, nil)
	session, err := c.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("client: connecting: %w", err)
	}
	return &Client{session: session}, nil
}

// Search calls search_web and returns the JSON text the tool produced.
func (c *Client) Search(ctx context.Context, topic string, numResults *int) ([]byte, error) {
	args := map[string]any{"topic": topic}
	if numResults != nil {
		args["num_results"] = *numResults
	}

	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: server.ToolName, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("client: calling %s: %w", server.ToolName, err)
	}

	var text strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return nil, fmt.Errorf("client: %w: %s", ErrToolFailed, text.String())
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("client: %s returned no text content", server.ToolName)
	}
	return []byte(text.String()), nil
}

// SearchOutcome calls search_web and decodes the outcome.
func (c *Client) SearchOutcome(ctx context.Context, topic string, numResults *int) (pipeline.Outcome, error) {
	raw, err := c.Search(ctx, topic, numResults)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	var out pipeline.Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return pipeline.Outcome{}, fmt.Errorf("client: decoding outcome: %w", err)
	}
	return out, nil
}

// Info reads the search_info resource.
func (c *Client) Info(ctx context.Context) (server.Info, error) {
	res, err := c.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: server.InfoURI})
	if err != nil {
		return server.Info{}, fmt.Errorf("client: reading %s: %w", server.InfoURI, err)
	}
	if len(res.Contents) == 0 {
		return server.Info{}, fmt.Errorf("client: %s is empty", server.InfoURI)
	}
	var info server.Info
	if err := json.Unmarshal([]byte(res.Contents[0].Text), &info); err != nil {
		return server.Info{}, fmt.Errorf("client: decoding %s: %w", server.InfoURI, err)
	}
	return info, nil
}

// Close ends the session.
func (c *Client) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	return c.session.Close()
}
