package serp

import (
	"context"
	"log/slog"

	"github.com/FranksOps/websearch/internal/metrics"
)

// Fallback serves a search from Primary and switches to Secondary only when
// Primary returns an error. An empty successful Primary result is returned
// as-is.
type Fallback struct {
	Primary   Provider
	Secondary Provider
	Logger    *slog.Logger
}

func (f *Fallback) Name() string { return f.Primary.Name() }

func (f *Fallback) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	results, err := f.Primary.Search(ctx, query, limit)
	if err == nil {
		return results, nil
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	from, to := f.Primary.Name(), f.Secondary.Name()
	logger.Warn("strategy failed, falling back", "strategy", from, "fallback", to, "err", err)
	metrics.RecordFallback(from, to)
	if t := traceFrom(ctx); t != nil && t.Fallback != nil {
		t.Fallback(from, to, err)
	}

	return f.Secondary.Search(ctx, query, limit)
}
