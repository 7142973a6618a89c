// Package retry implements the bounded-retry engine wrapping a single
// logical provider call. Transient failures are retried with exponential
// backoff; kinds that retrying cannot fix propagate immediately. Rate limit
// rejections use a longer, separate schedule because they signal
// platform-level throttling rather than a transient fault.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/aviary/pkg/slogx"
	"github.com/casualjim/aviary/provider"
)

// Config tunes the retry engine.
type Config struct {
	// MaxRetries is the maximum number of attempts.
	MaxRetries int

	// BaseDelay seeds the exponential backoff: base * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// AttemptTimeout bounds each attempt when the request carries no
	// timeout of its own. Timeouts apply per attempt, not per logical call;
	// a call with retries may run substantially longer than one timeout.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the default retry bounds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

// rateLimitSchedule is the dedicated backoff for RateLimited failures.
var rateLimitSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

const rateLimitMaxDelay = 30 * time.Second

// Func is one call attempt. The context carries the per-attempt deadline.
type Func func(ctx context.Context) (provider.Result, error)

// Do runs fn up to cfg.MaxRetries times. Non-retryable error kinds
// (ContentFiltered, InvalidParameter, QuotaExhausted, ModelNotFound,
// AccessDenied) propagate on first occurrence; only the last attempt's
// result is surfaced otherwise. A timeout on the final attempt becomes the
// surfaced error.
func Do(ctx context.Context, cfg Config, timeout time.Duration, fn Func) (provider.Result, error) {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if timeout <= 0 {
		timeout = cfg.AttemptTimeout
	}

	var (
		res     provider.Result
		lastErr error
	)

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		res, lastErr = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return res, nil
		}

		kind := provider.KindOf(lastErr)
		if !kind.Retryable() {
			return res, lastErr
		}

		// The caller gave up, do not burn the remaining budget.
		if ctx.Err() != nil {
			return res, lastErr
		}

		if attempt == cfg.MaxRetries-1 {
			break
		}

		delay := Backoff(cfg, kind, attempt)
		slog.Debug("retrying provider call",
			slog.Int("attempt", attempt+1),
			slog.String("kind", kind.String()),
			slog.Duration("delay", delay),
			slogx.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return res, lastErr
		}
	}

	return res, lastErr
}

// Backoff returns the delay before the attempt following the given
// zero-based attempt number. The delay is strictly increasing until it hits
// the cap.
func Backoff(cfg Config, kind provider.ErrorKind, attempt int) time.Duration {
	if kind == provider.RateLimited {
		if attempt < len(rateLimitSchedule) {
			return rateLimitSchedule[attempt]
		}
		return rateLimitMaxDelay
	}

	delay := cfg.BaseDelay << uint(attempt)
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}
