// Package scraper performs the outbound page fetches behind the HTML search
// strategies: fingerprinted TLS, rotating user agents and proxies, pacing and
// challenge detection.
package scraper

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/websearch/internal/bypass"
	"github.com/FranksOps/websearch/internal/fingerprint"
	"github.com/FranksOps/websearch/internal/metrics"
	"github.com/FranksOps/websearch/pkg/httpclient"
	"github.com/FranksOps/websearch/pkg/proxy"
	"github.com/FranksOps/websearch/pkg/ratelimit"
	"github.com/FranksOps/websearch/pkg/useragent"
)

// ErrBlocked matches any BlockedError.
var ErrBlocked = errors.New("scraper: request blocked")

// BlockedError reports a response recognised as a bot challenge.
type BlockedError struct {
	URL        string
	StatusCode int
	Source     string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("scraper: %s challenge on %s (status %d)", e.Source, e.URL, e.StatusCode)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	MaxBodyBytes int64
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// Detectors defaults to bypass.DefaultDetectors.
	Detectors []bypass.Detector
	// RootCAs replaces the system roots for TLS fingerprints.
	RootCAs *x509.CertPool
	Logger  *slog.Logger
}

// Fetcher sends requests through a single fingerprinted client. It is safe
// for concurrent use.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher builds the transport and client once so connections and the
// cookie jar are shared across fetches.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy is chosen per request and carried in the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:   proxyFunc,
		RootCAs: cfg.RootCAs,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: client: %w", err)
	}

	return &Fetcher{config: cfg, client: client, logger: cfg.Logger}, nil
}

// UserAgent returns the next user agent from the pool.
func (f *Fetcher) UserAgent() string {
	return f.config.UAPool.Next()
}

// Get fetches targetURL with browser-like headers.
func (f *Fetcher) Get(ctx context.Context, targetURL string) (*httpclient.Response, error) {
	req, err := http.NewRequest(http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scraper: building request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	return f.Fetch(ctx, req)
}

// Fetch waits for the limiter, routes req through the next healthy proxy and
// reads the response. A User-Agent is filled in when req has none. Non-2xx
// statuses are returned as responses; a recognised challenge page is returned
// as a *BlockedError.
func (f *Fetcher) Fetch(ctx context.Context, req *http.Request) (*httpclient.Response, error) {
	if err := f.config.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("scraper: rate limiter: %w", err)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.UserAgent())
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}
	if activeProxy != nil {
		ctx = context.WithValue(ctx, proxyKey, activeProxy)
	}

	host := req.URL.Hostname()
	start := time.Now()

	res, err := f.client.Fetch(ctx, req)
	if err != nil {
		f.reportProxy(activeProxy, false)
		metrics.RecordFetch(metrics.FetchSample{Host: host, Err: err, Duration: time.Since(start)})
		return nil, fmt.Errorf("scraper: fetch %s: %w", req.URL.Redacted(), err)
	}

	detected, src := bypass.Analyze(res, f.config.Detectors)
	f.reportProxy(activeProxy, !detected)
	metrics.RecordFetch(metrics.FetchSample{
		Host:         host,
		StatusCode:   res.StatusCode,
		DetectionSrc: src,
		Bytes:        len(res.Body),
		Duration:     time.Since(start),
	})

	if detected {
		f.logger.Warn("challenge page detected", "url", res.URL, "status", res.StatusCode, "source", src)
		return nil, &BlockedError{URL: res.URL, StatusCode: res.StatusCode, Source: src}
	}
	return res, nil
}

func (f *Fetcher) reportProxy(u *url.URL, ok bool) {
	if u == nil {
		return
	}
	if !ok {
		metrics.ProxyFailures.WithLabelValues(u.Redacted()).Inc()
	}
	if err := f.config.ProxyPool.Report(u, ok); err != nil {
		f.logger.Debug("proxy report failed", "proxy", u.Redacted(), "err", err)
	}
}
