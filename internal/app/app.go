// Package app assembles the search service from configuration.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/FranksOps/websearch/internal/config"
	"github.com/FranksOps/websearch/internal/fingerprint"
	"github.com/FranksOps/websearch/internal/pipeline"
	"github.com/FranksOps/websearch/internal/scraper"
	"github.com/FranksOps/websearch/internal/serp"
	"github.com/FranksOps/websearch/pkg/ddgs"
	"github.com/FranksOps/websearch/pkg/proxy"
	"github.com/FranksOps/websearch/pkg/ratelimit"
	"github.com/FranksOps/websearch/pkg/useragent"
)

// NewLogger builds the slog handler selected by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Service is the assembled search stack.
type Service struct {
	Pipeline *pipeline.Pipeline
	Fetcher  *scraper.Fetcher

	limiter *ratelimit.Limiter
}

// Close releases the rate limiter.
func (s *Service) Close() {
	s.limiter.Stop()
}

// Build wires the fetcher, the strategies and the pipeline.
func Build(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fetcher, limiter, err := newFetcher(cfg.Fetch, logger)
	if err != nil {
		return nil, err
	}

	providers, err := Providers(cfg, fetcher, logger)
	if err != nil {
		limiter.Stop()
		return nil, err
	}

	p, err := pipeline.New(providers, pipeline.Config{
		DefaultResults:  cfg.Search.DefaultResults,
		MaxResults:      cfg.Search.MaxResults,
		StrategyTimeout: cfg.Search.StrategyTimeout,
	}, logger)
	if err != nil {
		limiter.Stop()
		return nil, fmt.Errorf("app: %w", err)
	}

	logger.Info("search chain ready", "strategies", p.Strategies(), "static_fallback", cfg.Search.StaticFallback)
	return &Service{Pipeline: p, Fetcher: fetcher, limiter: limiter}, nil
}

func newFetcher(cfg config.FetchConfig, logger *slog.Logger) (*scraper.Fetcher, *ratelimit.Limiter, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}

	var pool *proxy.Pool
	if len(cfg.Proxies) > 0 || cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{MaxFailures: cfg.ProxyMaxFailures, Cooldown: cfg.ProxyCooldown})
		if err := pool.Add(cfg.Proxies...); err != nil {
			return nil, nil, fmt.Errorf("app: proxies: %w", err)
		}
		if cfg.ProxyFile != "" {
			if err := pool.LoadFile(cfg.ProxyFile); err != nil {
				return nil, nil, fmt.Errorf("app: proxy file: %w", err)
			}
		}
		logger.Info("proxy pool loaded", "proxies", pool.Len())
	}

	limiter := ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter)
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: true,
		ProxyPool:    pool,
		UAPool:       useragent.NewPool(cfg.UserAgents),
		Fingerprint:  profile,
		Limiter:      limiter,
		Logger:       logger.With("component", "fetcher"),
	})
	if err != nil {
		limiter.Stop()
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	return fetcher, limiter, nil
}

// Providers builds the strategy chain in configured order. With the static
// fallback enabled the last strategy falls through to it on error; an empty
// strategy list leaves static alone.
func Providers(cfg *config.Config, fetcher *scraper.Fetcher, logger *slog.Logger) ([]serp.Provider, error) {
	var chain []serp.Provider
	for _, name := range cfg.Search.Strategies {
		var (
			p   serp.Provider
			err error
		)
		switch name {
		case config.StrategyDuckDuckGo:
			p, err = newDuckDuckGo(cfg, fetcher)
		case config.StrategyGoogle:
			p, err = newGoogle(cfg, fetcher, logger)
		default:
			err = fmt.Errorf("unknown strategy %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("app: %s: %w", name, err)
		}
		if cfg.Breaker.Enabled {
			p = serp.NewBreaker(p, serp.BreakerConfig{
				MaxFailures: cfg.Breaker.MaxFailures,
				Timeout:     cfg.Breaker.Timeout,
				Interval:    cfg.Breaker.Interval,
			}, logger)
		}
		chain = append(chain, p)
	}

	if !cfg.Search.StaticFallback {
		return chain, nil
	}
	if len(chain) == 0 {
		return []serp.Provider{serp.Static{}}, nil
	}
	last := len(chain) - 1
	chain[last] = &serp.Fallback{Primary: chain[last], Secondary: serp.Static{}, Logger: logger}
	return chain, nil
}

func newDuckDuckGo(cfg *config.Config, fetcher *scraper.Fetcher) (serp.Provider, error) {
	client, err := ddgs.New(ddgs.Config{
		BaseURL:    cfg.DuckDuckGo.URL,
		Region:     cfg.DuckDuckGo.Region,
		HTTP:       fetcher,
		UserAgents: useragent.NewPool(cfg.Fetch.UserAgents),
	})
	if err != nil {
		return nil, err
	}
	return serp.NewDuckDuckGo(client), nil
}

func newGoogle(cfg *config.Config, fetcher *scraper.Fetcher, logger *slog.Logger) (serp.Provider, error) {
	gc := serp.GoogleConfig{
		BaseURL: cfg.Google.URL,
		Fetcher: fetcher,
		Delay:   ratelimit.Range{Min: cfg.Google.DelayMin, Max: cfg.Google.DelayMax},
		Logger:  logger.With("strategy", config.StrategyGoogle),
	}
	if cfg.Google.RespectRobots {
		gc.Robots = scraper.NewRobotsAuditor(fetcher, cfg.Google.RobotsTTL, logger)
	}
	return serp.NewGoogle(gc)
}
