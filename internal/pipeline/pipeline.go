// Package pipeline runs a search through an ordered chain of strategies and
// shapes the outcome returned to tool callers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/websearch/internal/metrics"
	"github.com/FranksOps/websearch/internal/serp"
)

// Defaults applied to zero Config fields.
const (
	DefaultResults         = 10
	DefaultMaxResults      = 10
	DefaultStrategyTimeout = 15 * time.Second
)

var (
	// ErrExhausted is reported when every strategy in the chain failed.
	ErrExhausted = errors.New("all search strategies failed")
	// ErrPanic is reported when a strategy panicked.
	ErrPanic = errors.New("search strategy panicked")
)

// Config tunes a Pipeline.
type Config struct {
	// DefaultResults applies when a request does not set a limit.
	DefaultResults int
	// MaxResults caps every request.
	MaxResults int
	// StrategyTimeout bounds each strategy attempt.
	StrategyTimeout time.Duration
}

// Request is one search.
type Request struct {
	Topic string
	// NumResults is the requested limit; nil selects Config.DefaultResults.
	NumResults *int
}

// Outcome is the result of one search. Count always equals len(Results) and
// Results is never nil.
type Outcome struct {
	Topic             string        `json:"topic" yaml:"topic"`
	Results           []serp.Result `json:"results" yaml:"results"`
	Count             int           `json:"count" yaml:"count"`
	SearchTimeSeconds float64       `json:"search_time_seconds" yaml:"search_time_seconds"`
	Strategy          string        `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Error             string        `json:"error,omitempty" yaml:"error,omitempty"`

	RequestID string        `json:"-" yaml:"-"`
	Elapsed   time.Duration `json:"-" yaml:"-"`
}

// Pipeline walks its providers in order until one returns results. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	providers []serp.Provider
	cfg       Config
	logger    *slog.Logger
}

// New creates a Pipeline over providers, tried in order.
func New(providers []serp.Provider, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("pipeline: at least one provider is required")
	}
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("pipeline: provider %d is nil", i)
		}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = DefaultResults
	}
	cfg.DefaultResults = min(cfg.DefaultResults, cfg.MaxResults)
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = DefaultStrategyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{providers: providers, cfg: cfg, logger: logger}, nil
}

// Strategies returns the provider names in chain order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.providers))
	for i, pr := range p.providers {
		names[i] = pr.Name()
	}
	return names
}

// MaxResults is the per-request cap.
func (p *Pipeline) MaxResults() int { return p.cfg.MaxResults }

// Limit resolves a requested limit: nil selects the default, the rest is
// clamped to [0, MaxResults].
func (p *Pipeline) Limit(n *int) int {
	if n == nil {
		return p.cfg.DefaultResults
	}
	return min(max(*n, 0), p.cfg.MaxResults)
}

// Execute runs req through the chain. Strategy failures fall through to the
// next strategy; only a panic or an exhausted chain sets Outcome.Error.
func (p *Pipeline) Execute(ctx context.Context, req Request) Outcome {
	start := time.Now()
	id := uuid.NewString()
	logger := p.logger.With("request_id", id, "topic", req.Topic)
	limit := p.Limit(req.NumResults)

	logger.Info("searching", "limit", limit)

	results, strategy, err := p.run(ctx, logger, req.Topic, limit)
	elapsed := time.Since(start)

	out := Outcome{
		Topic:             req.Topic,
		Results:           results,
		SearchTimeSeconds: math.Round(elapsed.Seconds()*100) / 100,
		Strategy:          strategy,
		RequestID:         id,
		Elapsed:           elapsed,
	}
	if err != nil {
		logger.Error("search failed", "err", err)
		out.Error = err.Error()
		out.Results = nil
		out.Strategy = ""
	}
	if out.Results == nil {
		out.Results = []serp.Result{}
	}
	out.Count = len(out.Results)

	metrics.RecordSearch(out.Strategy, err != nil, elapsed)
	logger.Info("search completed", "count", out.Count, "strategy", out.Strategy, "elapsed", elapsed)
	return out
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, topic string, limit int) (results []serp.Result, strategy string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	var errs []error
	for _, prov := range p.providers {
		res, served, perr := p.attempt(ctx, prov, topic, limit)
		if perr != nil {
			logger.Warn("strategy failed", "strategy", served, "err", perr)
			errs = append(errs, perr)
			continue
		}
		if len(res) > 0 {
			if len(res) > limit {
				res = res[:limit]
			}
			return res, served, nil
		}
		logger.Info("strategy returned no results", "strategy", served)
		strategy = served
	}

	if len(errs) == len(p.providers) {
		return nil, "", fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
	}
	return []serp.Result{}, strategy, nil
}

// attempt runs one provider under the strategy timeout and reports the name
// of the strategy that actually served it.
func (p *Pipeline) attempt(ctx context.Context, prov serp.Provider, topic string, limit int) ([]serp.Result, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StrategyTimeout)
	defer cancel()

	served := prov.Name()
	ctx = serp.WithTrace(ctx, &serp.Trace{
		Fallback: func(from, to string, err error) {
			metrics.RecordStrategy(from, metrics.OutcomeError, 0)
			served = to
		},
	})

	start := time.Now()
	res, err := prov.Search(ctx, topic, limit)
	d := time.Since(start)

	switch {
	case err != nil:
		metrics.RecordStrategy(served, metrics.OutcomeError, d)
	case len(res) == 0:
		metrics.RecordStrategy(served, metrics.OutcomeEmpty, d)
	default:
		metrics.RecordStrategy(served, metrics.OutcomeSuccess, d)
	}
	return res, served, err
}
