package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// DefaultRobotsTTL is how long a fetched robots.txt is trusted.
const DefaultRobotsTTL = time.Hour

type robotsEntry struct {
	data    *robotstxt.RobotsData // nil: no usable robots.txt, everything allowed
	expires time.Time
}

// RobotsAuditor answers whether a search page may be fetched, caching each
// origin's robots.txt for a TTL. It is safe for concurrent use.
type RobotsAuditor struct {
	fetcher *Fetcher
	ttl     time.Duration
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]robotsEntry
}

// NewRobotsAuditor creates an auditor fetching through fetcher. A
// non-positive ttl selects DefaultRobotsTTL.
func NewRobotsAuditor(fetcher *Fetcher, ttl time.Duration, logger *slog.Logger) *RobotsAuditor {
	if ttl <= 0 {
		ttl = DefaultRobotsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsAuditor{
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
		cache:   make(map[string]robotsEntry),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. A missing,
// unparsable or unreachable robots.txt allows everything.
func (r *RobotsAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("scraper: invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return false, fmt.Errorf("scraper: url %q is not absolute", targetURL)
	}

	data := r.lookup(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.Path, userAgent), nil
}

// lookup returns the cached robots.txt for origin, fetching it on a miss.
// Concurrent misses for one origin share a single request; each caller stops
// waiting when its own ctx ends.
func (r *RobotsAuditor) lookup(ctx context.Context, origin string) *robotstxt.RobotsData {
	if data, ok := r.cached(origin); ok {
		return data
	}

	// The shared fetch outlives any one caller; the fetcher timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(origin, func() (any, error) {
		if data, ok := r.cached(origin); ok {
			return data, nil
		}
		return r.fetch(fetchCtx, origin), nil
	})
	select {
	case res := <-ch:
		data, _ := res.Val.(*robotstxt.RobotsData)
		return data
	case <-ctx.Done():
		r.logger.Debug("robots.txt wait abandoned, allowing", "origin", origin, "err", ctx.Err())
		return nil
	}
}

func (r *RobotsAuditor) cached(origin string) (*robotstxt.RobotsData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[origin]
	if !ok || !time.Now().Before(e.expires) {
		return nil, false
	}
	return e.data, true
}

func (r *RobotsAuditor) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	res, err := r.fetcher.Get(ctx, origin+"/robots.txt")
	if err != nil {
		// Left uncached so the next search retries.
		r.logger.Debug("robots.txt unavailable, allowing", "origin", origin, "err", err)
		return nil
	}

	var data *robotstxt.RobotsData
	switch {
	case res.StatusCode >= 400:
		r.logger.Debug("no robots.txt", "origin", origin, "status", res.StatusCode)
	default:
		if data, err = robotstxt.FromBytes(res.Body); err != nil {
			r.logger.Warn("robots.txt unparsable, allowing", "origin", origin, "err", err)
			data = nil
		}
	}

	r.mu.Lock()
	r.cache[origin] = robotsEntry{data: data, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return data
}
