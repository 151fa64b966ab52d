// Package serp holds the search strategies. Each strategy implements Provider
// and returns results in one uniform shape.
package serp

import (
	"context"
	"errors"

	"github.com/FranksOps/websearch/internal/scraper"
)

var (
	// ErrBlocked is returned when the engine served a bot challenge instead of results.
	ErrBlocked = scraper.ErrBlocked
	// ErrDisallowed is returned when robots.txt forbids the result page.
	ErrDisallowed = errors.New("serp: disallowed by robots.txt")
	// ErrStatus is returned for a non-2xx result page.
	ErrStatus = errors.New("serp: unexpected status")
)

// Result is one search hit. Fields are never absent; missing values are "".
type Result struct {
	Title   string `json:"title" yaml:"title"`
	URL     string `json:"url" yaml:"url"`
	Snippet string `json:"snippet" yaml:"snippet"`
}

// Provider is a search strategy. Search returns at most limit results in rank
// order; limit <= 0 yields an empty slice. An empty slice with a nil error
// means the strategy ran and found nothing.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Trace receives notifications from composite providers. It is attached to a
// search with WithTrace.
type Trace struct {
	// Fallback is called when from failed and to is about to serve the search.
	Fallback func(from, to string, err error)
}

type traceKey struct{}

// WithTrace returns a context carrying t.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

func traceFrom(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

func clampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	return limit
}
