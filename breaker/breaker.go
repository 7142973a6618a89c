// Package breaker implements the per-provider circuit breaker and
// performance tracker. Repeated transient failure escalates into a
// provider-wide fail-fast state, independent of any single call's retry
// budget, so a degraded provider stops consuming retry budget and latency on
// every caller. Every call outcome is recorded with its duration for metrics
// regardless of breaker state.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
)

// State is the breaker state for one provider.
type State string

const (
	// Closed is normal operation.
	Closed State = "closed"
	// Open rejects all calls without attempting the network.
	Open State = "open"
	// HalfOpen lets calls through to probe recovery.
	HalfOpen State = "half_open"
)

// ErrOpen is returned when the breaker rejects a call.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes the breaker state machine.
type Config struct {
	// FailureThreshold is the number of failures inside FailureWindow that
	// trips Closed -> Open.
	FailureThreshold int

	// SuccessThreshold is the number of successes in HalfOpen that closes
	// the breaker again.
	SuccessThreshold int

	// OpenDuration is how long the breaker stays Open before probing.
	OpenDuration time.Duration

	// FailureWindow bounds how far back failures count toward the
	// threshold.
	FailureWindow time.Duration

	// ErrorSamples caps how many recent errors the tracker retains.
	ErrorSamples int
}

// DefaultConfig returns the default breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenDuration:     30 * time.Second,
		FailureWindow:    time.Minute,
		ErrorSamples:     10,
	}
}

// ErrorSample is one retained failure for inspection.
type ErrorSample struct {
	At      time.Time
	Message string
}

// Stats is a point-in-time snapshot of one provider's tracker.
type Stats struct {
	Provider       string
	State          State
	TotalCalls     int64
	TotalSuccesses int64
	TotalFailures  int64
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	LastOpened     time.Time
	RecentErrors   []ErrorSample
}

// SuccessRate returns the fraction of successful calls, 1 when no calls
// have been recorded yet.
func (s Stats) SuccessRate() float64 {
	if s.TotalCalls == 0 {
		return 1
	}
	return float64(s.TotalSuccesses) / float64(s.TotalCalls)
}

// Breaker is the three-state circuit breaker for one provider. The rolling
// failure window is bounded to the failure threshold and the success window
// to the success threshold; both are cleared when the breaker closes.
type Breaker struct {
	mu       sync.Mutex
	provider string
	cfg      Config

	state     State
	failures  []time.Time
	successes []time.Time
	openedAt  time.Time

	totalCalls     int64
	totalSuccesses int64
	totalFailures  int64
	latencySum     time.Duration
	latencyMin     time.Duration
	latencyMax     time.Duration
	recentErrors   []ErrorSample

	now func() time.Time
}

// New creates a breaker for one provider.
func New(providerName string, cfg Config) *Breaker {
	return &Breaker{
		provider: providerName,
		cfg:      cfg,
		state:    Closed,
		now:      time.Now,
	}
}

// Allow reports whether a call may be attempted. When the breaker is Open it
// returns ErrOpen without any network activity, unless the open duration has
// elapsed, in which case it transitions to HalfOpen and lets the call
// through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cfg.OpenDuration {
			return ErrOpen
		}
		b.transition(HalfOpen)
	}
	return nil
}

// Record registers one call outcome. Metrics are updated for every outcome,
// success or failure, regardless of breaker state.
func (b *Breaker) Record(err error, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	b.totalCalls++
	b.latencySum += duration
	if b.latencyMin == 0 || duration < b.latencyMin {
		b.latencyMin = duration
	}
	if duration > b.latencyMax {
		b.latencyMax = duration
	}

	if err != nil {
		b.totalFailures++
		b.recentErrors = append(b.recentErrors, ErrorSample{At: now, Message: err.Error()})
		if len(b.recentErrors) > b.cfg.ErrorSamples {
			b.recentErrors = b.recentErrors[len(b.recentErrors)-b.cfg.ErrorSamples:]
		}
		b.recordFailure(now)
		return
	}

	b.totalSuccesses++
	b.recordSuccess(now)
}

func (b *Breaker) recordFailure(now time.Time) {
	switch b.state {
	case HalfOpen:
		// A single probe failure reopens the breaker.
		b.openedAt = now
		b.transition(Open)
	case Closed:
		cutoff := now.Add(-b.cfg.FailureWindow)
		kept := b.failures[:0]
		for _, t := range b.failures {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		b.failures = append(kept, now)
		if len(b.failures) > b.cfg.FailureThreshold {
			b.failures = b.failures[len(b.failures)-b.cfg.FailureThreshold:]
		}
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.openedAt = now
			b.transition(Open)
		}
	}
}

func (b *Breaker) recordSuccess(now time.Time) {
	if b.state != HalfOpen {
		return
	}
	b.successes = append(b.successes, now)
	if len(b.successes) > b.cfg.SuccessThreshold {
		b.successes = b.successes[len(b.successes)-b.cfg.SuccessThreshold:]
	}
	if len(b.successes) >= b.cfg.SuccessThreshold {
		b.transition(Closed)
	}
}

// transition changes state and clears windows when closing. Caller holds
// the lock.
func (b *Breaker) transition(next State) {
	prev := b.state
	b.state = next

	if next == Closed {
		b.failures = b.failures[:0]
		b.successes = b.successes[:0]
	}
	if next == HalfOpen {
		b.successes = b.successes[:0]
	}

	slog.Debug("circuit breaker state change",
		slog.String("provider", b.provider),
		slog.String("from", string(prev)),
		slog.String("to", string(next)))
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the tracker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var avg time.Duration
	if b.totalCalls > 0 {
		avg = b.latencySum / time.Duration(b.totalCalls)
	}
	samples := make([]ErrorSample, len(b.recentErrors))
	copy(samples, b.recentErrors)

	return Stats{
		Provider:       b.provider,
		State:          b.state,
		TotalCalls:     b.totalCalls,
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
		AvgLatency:     avg,
		MinLatency:     b.latencyMin,
		MaxLatency:     b.latencyMax,
		LastOpened:     b.openedAt,
		RecentErrors:   samples,
	}
}

// Group manages one breaker per provider with a shared config.
type Group struct {
	breakers *haxmap.Map[string, *Breaker]
	cfg      Config
}

// NewGroup creates a breaker group.
func NewGroup(cfg Config) *Group {
	return &Group{
		breakers: haxmap.New[string, *Breaker](),
		cfg:      cfg,
	}
}

// For returns the breaker for a provider, creating it on first use.
func (g *Group) For(providerName string) *Breaker {
	b, _ := g.breakers.GetOrCompute(providerName, func() *Breaker {
		return New(providerName, g.cfg)
	})
	return b
}

// AllStats snapshots every registered breaker.
func (g *Group) AllStats() map[string]Stats {
	stats := make(map[string]Stats)
	g.breakers.ForEach(func(name string, b *Breaker) bool {
		stats[name] = b.Stats()
		return true
	})
	return stats
}

// Available lists providers whose breaker currently admits calls.
func (g *Group) Available() []string {
	var names []string
	g.breakers.ForEach(func(name string, b *Breaker) bool {
		if b.State() != Open {
			names = append(names, name)
		}
		return true
	})
	return names
}
