// Package ddgs is a DuckDuckGo text search client. It queries the
// JavaScript-free HTML endpoint and returns results as plain records.
package ddgs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/websearch/pkg/httpclient"
	"github.com/FranksOps/websearch/pkg/useragent"
)

// DefaultBaseURL is the DuckDuckGo HTML search endpoint.
const DefaultBaseURL = "https://html.duckduckgo.com/html/"

var (
	// ErrEmptyQuery is returned for a blank query; DuckDuckGo rejects them.
	ErrEmptyQuery = errors.New("ddgs: query is empty")
	// ErrRateLimited is returned when DuckDuckGo answers 202, its throttling signal.
	ErrRateLimited = errors.New("ddgs: rate limited")
	// ErrStatus is returned for any other non-200 response.
	ErrStatus = errors.New("ddgs: unexpected status")
)

// TextResult is one organic text result.
type TextResult struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

// Doer sends a request and reads the response. *httpclient.Client satisfies it.
type Doer interface {
	Fetch(ctx context.Context, req *http.Request) (*httpclient.Response, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL overrides DefaultBaseURL.
	BaseURL string
	// Region is the kl parameter, e.g. "us-en". Defaults to "wt-wt" (no region).
	Region string
	// HTTP sends the requests. A default httpclient.Client is built when nil.
	HTTP Doer
	// UserAgents supplies the User-Agent header. Defaults to useragent.Desktop.
	UserAgents *useragent.Pool
}

// Client performs text searches. It holds no per-query state and is safe for
// concurrent use.
type Client struct {
	baseURL string
	region  string
	http    Doer
	uas     *useragent.Pool
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("ddgs: base url: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "wt-wt"
	}
	if cfg.HTTP == nil {
		hc, err := httpclient.New(httpclient.Config{})
		if err != nil {
			return nil, err
		}
		cfg.HTTP = hc
	}
	if cfg.UserAgents == nil {
		cfg.UserAgents = useragent.NewPool(nil)
	}
	return &Client{
		baseURL: cfg.BaseURL,
		region:  cfg.Region,
		http:    cfg.HTTP,
		uas:     cfg.UserAgents,
	}, nil
}

// Text searches for query and returns at most maxResults results in rank order.
func (c *Client) Text(ctx context.Context, query string, maxResults int) ([]TextResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		return []TextResult{}, nil
	}

	form := url.Values{}
	form.Set("q", query)
	form.Set("b", "")
	form.Set("kl", c.region)

	req, err := http.NewRequest(http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ddgs: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.uas.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Referer", "https://html.duckduckgo.com/")

	res, err := c.http.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ddgs: %w", err)
	}
	switch {
	case res.StatusCode == http.StatusAccepted:
		return nil, ErrRateLimited
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %d", ErrStatus, res.StatusCode)
	}

	return Parse(res.Body, maxResults)
}

// Parse extracts up to maxResults organic results from an HTML result page.
// Ads and duplicate links are skipped.
func Parse(page []byte, maxResults int) ([]TextResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("ddgs: parsing page: %w", err)
	}

	out := make([]TextResult, 0, maxResults)
	if maxResults <= 0 {
		return out, nil
	}

	seen := make(map[string]struct{})
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		raw, _ := link.Attr("href")
		href := unwrapRedirect(raw)
		if href == "" || strings.HasPrefix(href, "https://duckduckgo.com/y.js") {
			return true
		}
		if _, dup := seen[href]; dup {
			return true
		}
		seen[href] = struct{}{}

		out = append(out, TextResult{
			Title: squash(link.Text()),
			Href:  href,
			Body:  squash(s.Find(".result__snippet").First().Text()),
		})
		return len(out) < maxResults
	})
	return out, nil
}

// unwrapRedirect turns DuckDuckGo's //duckduckgo.com/l/?uddg=<target> links
// into the target URL.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
