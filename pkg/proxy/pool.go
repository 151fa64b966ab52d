// Package proxy rotates outbound requests across a set of egress proxies and
// benches the ones that keep failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy that is not in the pool.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type entry struct {
	url       *url.URL
	failures  int
	successes int
	benchedAt time.Time
	benched   bool
}

// Config defines settings for the proxy Pool.
type Config struct {
	// MaxFailures is the number of net failures that benches a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out before it is retried.
	Cooldown time.Duration
}

// Pool hands out proxies round-robin, skipping benched ones. It is safe for
// concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	byURL   map[string]*entry
	next    int
	cfg     Config
	now     func() time.Time
}

// NewPool creates an empty pool. Zero config values get defaults of three
// failures and a five minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		byURL: make(map[string]*entry),
		cfg:   cfg,
		now:   time.Now,
	}
}

// LoadFile adds the proxies listed in path, one URL per line. Blank lines and
// lines starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()

	var raws []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: reading %s: %w", path, err)
	}
	return p.Add(raws...)
}

// Add parses and appends proxy URLs. A missing scheme defaults to http.
// Duplicates are ignored.
func (p *Pool) Add(raws ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range raws {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parsing %q: %w", raw, err)
		}
		key := u.String()
		if _, dup := p.byURL[key]; dup {
			continue
		}
		e := &entry{url: u}
		p.entries = append(p.entries, e)
		p.byURL[key] = e
	}
	return nil
}

// Len reports how many proxies the pool holds, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next usable proxy, or nil when the pool is empty or every
// proxy is benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if e.benched && now.Sub(e.benchedAt) >= p.cfg.Cooldown {
			e.benched = false
			e.failures = 0
		}
		if !e.benched {
			return e.url
		}
	}
	return nil
}

// Report records the result of a request made through u. Enough consecutive
// net failures bench the proxy for the configured cooldown.
func (p *Pool) Report(u *url.URL, ok bool) error {
	if u == nil {
		return ErrUnknownProxy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, found := p.byURL[u.String()]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownProxy, u.Redacted())
	}

	if ok {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
		return nil
	}

	e.failures++
	if e.failures >= p.cfg.MaxFailures && !e.benched {
		e.benched = true
		e.benchedAt = p.now()
	}
	return nil
}
