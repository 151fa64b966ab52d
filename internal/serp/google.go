package serp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/websearch/internal/scraper"
	"github.com/FranksOps/websearch/pkg/httpclient"
	"github.com/FranksOps/websearch/pkg/ratelimit"
)

// DefaultGoogleURL is the Google web front end.
const DefaultGoogleURL = "https://www.google.com"

// PageFetcher fetches a result page. *scraper.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*httpclient.Response, error)
	UserAgent() string
}

// RobotsChecker answers robots.txt queries. *scraper.RobotsAuditor satisfies it.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error)
}

var (
	_ PageFetcher   = (*scraper.Fetcher)(nil)
	_ RobotsChecker = (*scraper.RobotsAuditor)(nil)
)

// GoogleConfig configures Google.
type GoogleConfig struct {
	// BaseURL overrides DefaultGoogleURL.
	BaseURL string
	Fetcher PageFetcher
	// Robots enables the robots.txt check when set.
	Robots RobotsChecker
	// Delay is the pause after each accepted result.
	Delay  ratelimit.Range
	Logger *slog.Logger
}

// Google scrapes the Google HTML result page.
type Google struct {
	baseURL string
	fetcher PageFetcher
	robots  RobotsChecker
	delay   ratelimit.Range
	logger  *slog.Logger
}

// NewGoogle creates a Google provider.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("serp: google: fetcher is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGoogleURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("serp: google base url: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Google{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetcher: cfg.Fetcher,
		robots:  cfg.Robots,
		delay:   cfg.Delay,
		logger:  cfg.Logger,
	}, nil
}

func (g *Google) Name() string { return "google" }

// SearchURL builds the result page URL for query.
func (g *Google) SearchURL(query string, limit int) string {
	return g.baseURL + "/search?q=" + url.QueryEscape(query) + "&num=" + strconv.Itoa(limit)
}

// Search fetches and parses one result page, pausing after each accepted
// result until limit is reached. Any failure is returned as an error.
func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = clampLimit(limit)
	if limit == 0 {
		return []Result{}, nil
	}

	target := g.SearchURL(query, limit)
	ua := g.fetcher.UserAgent()

	if g.robots != nil {
		allowed, err := g.robots.IsAllowed(ctx, target, ua)
		if err != nil {
			return nil, fmt.Errorf("serp: google robots check: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, target)
		}
	}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("serp: google request: %w", err)
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	res, err := g.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("serp: google: %w", err)
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: google returned %d", ErrStatus, res.StatusCode)
	}

	results, err := parseGoogle(res.Body, limit, func() error { return g.delay.Pause(ctx) })
	if err != nil {
		return nil, fmt.Errorf("serp: google: %w", err)
	}
	g.logger.Debug("google results parsed", "query", query, "count", len(results))
	return results, nil
}

// ParseGoogle extracts up to limit results from a Google result page.
func ParseGoogle(page []byte, limit int) ([]Result, error) {
	return parseGoogle(page, clampLimit(limit), nil)
}

// parseGoogle walks div.g blocks in document order. Blocks without a title or
// link are skipped. accepted runs after each kept result that leaves room for
// another; an error from it aborts the parse.
func parseGoogle(page []byte, limit int, accepted func() error) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	out := make([]Result, 0, limit)
	if limit == 0 {
		return out, nil
	}

	var stop error
	doc.Find("div.g").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := s.Find("h3").First()
		if title.Length() == 0 {
			return true
		}
		href, _ := s.Find("a").First().Attr("href")
		if href == "" {
			return true
		}

		out = append(out, Result{
			Title:   strings.TrimSpace(title.Text()),
			URL:     UnwrapGoogleURL(href),
			Snippet: strings.TrimSpace(s.Find("div.VwiC3b").First().Text()),
		})

		if len(out) >= limit {
			return false
		}
		if accepted != nil {
			if stop = accepted(); stop != nil {
				return false
			}
		}
		return true
	})
	if stop != nil {
		return nil, stop
	}
	return out, nil
}

// UnwrapGoogleURL turns "/url?q=<target>&..." into <target>. The target is
// returned exactly as it appears, without percent-decoding.
func UnwrapGoogleURL(href string) string {
	const prefix = "/url?q="
	if !strings.HasPrefix(href, prefix) {
		return href
	}
	target, _, _ := strings.Cut(href[len(prefix):], "&")
	return target
}
