package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Limiter spaces outbound operations at a fixed interval, optionally stretched
// by a random jitter. It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	ticker   *time.Ticker
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
}

// NewLimiter creates a limiter allowing rps operations per second. Jitter is
// clamped to [0, 1]. If rps <= 0 the limiter never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	jitter = min(max(jitter, 0), 1)
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}

	interval := time.Duration(float64(time.Second) / rps)
	return &Limiter{
		ticker:   time.NewTicker(interval),
		interval: interval,
		jitter:   jitter,
	}
}

// Every returns a limiter that lets one operation through per interval.
// A non-positive interval yields a limiter that never blocks.
func Every(interval time.Duration, jitter float64) *Limiter {
	if interval <= 0 {
		return NewLimiter(0, jitter)
	}
	return NewLimiter(float64(time.Second)/float64(interval), jitter)
}

// Wait blocks until the next slot or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.ticker == nil {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ticker.C:
	}

	if l.jitter == 0 {
		return nil
	}
	// Ticks cannot arrive early, so only the positive half of the jitter window applies.
	extra := time.Duration(float64(l.interval) * l.jitter * (rand.Float64()*2 - 1))
	if extra <= 0 {
		return nil
	}
	return Sleep(ctx, extra)
}

// Stop releases the underlying ticker.
func (l *Limiter) Stop() {
	if l != nil && l.ticker != nil {
		l.ticker.Stop()
	}
}

// Range is a closed interval of durations used for randomized pauses.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a uniformly distributed duration in [Min, Max]. A range with
// Max <= Min always returns Min.
func (r Range) Pick() time.Duration {
	if r.Max <= r.Min {
		return max(r.Min, 0)
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

// Pause sleeps for a random duration drawn from r, returning early with the
// context error if ctx is cancelled first.
func (r Range) Pause(ctx context.Context) error {
	return Sleep(ctx, r.Pick())
}

// Sleep waits for d without blocking past ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
