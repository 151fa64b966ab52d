package serp

import (
	"context"
	"fmt"
)

const staticMaxResults = 5

// Static returns deterministic placeholder results. It never fails and is the
// last resort of the chain.
type Static struct{}

func (Static) Name() string { return "static" }

// Search returns min(5, limit) placeholders built from query.
func (Static) Search(_ context.Context, query string, limit int) ([]Result, error) {
	n := min(staticMaxResults, clampLimit(limit))
	out := make([]Result, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Result{
			Title:   fmt.Sprintf("Result %d for %s", i, query),
			URL:     fmt.Sprintf("https://example.com/result%d", i),
			Snippet: fmt.Sprintf("This is a sample snippet for search result %d related to %s.", i, query),
		})
	}
	return out, nil
}
