// Package ratelimit implements the admission controller gating every
// outbound provider call. A limiter bounds queries per minute with a sliding
// window of call timestamps and bounds concurrently in-flight calls with a
// counting semaphore. Limits apply per platform (a provider group sharing one
// API key and quota), not per individual provider, because the backend bills
// them jointly.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
)

// Config holds the per-platform admission limits.
type Config struct {
	// QPM is the query-per-minute budget. Zero or negative disables the
	// window check.
	QPM int

	// Concurrency is the maximum number of in-flight calls. Zero or
	// negative disables the semaphore.
	Concurrency int

	// Enabled turns admission control on. When false, Acquire is a
	// pass-through and calls run unthrottled.
	Enabled bool
}

// DefaultConfig returns the default admission limits.
func DefaultConfig() Config {
	return Config{
		QPM:         60,
		Concurrency: 10,
		Enabled:     true,
	}
}

// Limiter is the admission gate for one platform. Many concurrent tasks
// share one limiter; the window is mutex-protected and the semaphore is a
// buffered channel.
type Limiter struct {
	mu     sync.Mutex
	window []time.Time
	sem    chan struct{}
	cfg    Config
	now    func() time.Time
}

// NewLimiter creates a limiter for one platform.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg: cfg,
		now: time.Now,
	}
	if cfg.Concurrency > 0 {
		l.sem = make(chan struct{}, cfg.Concurrency)
	}
	return l
}

// Acquire blocks until both the QPM sliding window has room and the
// concurrency semaphore has a free slot, then returns a release function.
// The release function must be called on every exit path; it is safe to call
// exactly once. Acquire respects context cancellation while waiting.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if !l.cfg.Enabled {
		return func() {}, nil
	}

	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := l.waitForWindow(ctx); err != nil {
		if l.sem != nil {
			<-l.sem
		}
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if l.sem != nil {
				<-l.sem
			}
		})
	}
	return release, nil
}

// waitForWindow blocks until the sliding one-minute window drops below the
// QPM budget, then records the admission timestamp.
func (l *Limiter) waitForWindow(ctx context.Context) error {
	if l.cfg.QPM <= 0 {
		return nil
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.window) < l.cfg.QPM {
			l.window = append(l.window, now)
			l.mu.Unlock()
			return nil
		}

		// Oldest entry decides how long until a slot frees up.
		wait := l.window[0].Add(time.Minute).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		slog.Debug("rate limit window full, waiting",
			slog.Duration("wait", wait),
			slog.Int("qpm", l.cfg.QPM))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// prune drops window entries older than one minute. Caller holds the lock.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	idx := 0
	for idx < len(l.window) && !l.window[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.window = append(l.window[:0], l.window[idx:]...)
	}
}

// InFlight returns the number of currently admitted calls.
func (l *Limiter) InFlight() int {
	if l.sem == nil {
		return 0
	}
	return len(l.sem)
}

// WindowSize returns the number of admissions in the current sliding window.
func (l *Limiter) WindowSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.window)
}

// Group holds one limiter per platform, created lazily with a shared config.
type Group struct {
	limiters *haxmap.Map[string, *Limiter]
	cfg      Config
}

// NewGroup creates a limiter group with the given per-platform config.
func NewGroup(cfg Config) *Group {
	return &Group{
		limiters: haxmap.New[string, *Limiter](),
		cfg:      cfg,
	}
}

// For returns the limiter for a platform, creating it on first use.
func (g *Group) For(platform string) *Limiter {
	l, _ := g.limiters.GetOrCompute(platform, func() *Limiter {
		return NewLimiter(g.cfg)
	})
	return l
}
