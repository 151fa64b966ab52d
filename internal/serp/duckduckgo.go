package serp

import (
	"context"
	"fmt"

	"github.com/FranksOps/websearch/pkg/ddgs"
)

// TextSearcher is the structured search API behind DuckDuckGo.
type TextSearcher interface {
	Text(ctx context.Context, query string, maxResults int) ([]ddgs.TextResult, error)
}

// DuckDuckGo maps ddgs text results into Results.
type DuckDuckGo struct {
	client TextSearcher
}

// NewDuckDuckGo wraps client.
func NewDuckDuckGo(client TextSearcher) *DuckDuckGo {
	return &DuckDuckGo{client: client}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search runs one query without retries.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = clampLimit(limit)
	if limit == 0 {
		return []Result{}, nil
	}

	raw, err := d.client.Text(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("serp: duckduckgo: %w", err)
	}

	out := make([]Result, 0, min(len(raw), limit))
	for _, r := range raw {
		if len(out) == limit {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.Href, Snippet: r.Body})
	}
	return out, nil
}
