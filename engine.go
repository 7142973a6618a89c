package aviary

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/casualjim/aviary/breaker"
	"github.com/casualjim/aviary/pkg/slogx"
	"github.com/casualjim/aviary/provider"
	"github.com/casualjim/aviary/provider/models"
	"github.com/casualjim/aviary/ratelimit"
	"github.com/casualjim/aviary/retry"
	"github.com/casualjim/aviary/usage"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

// Engine is the front door for model calls. Every call passes through the
// same pipeline: resolve the client, consult the circuit breaker, take a
// rate limit slot, run the call under the retry policy, then feed the
// outcome back to the breaker and the usage tracker.
type Engine struct {
	registry *models.Registry
	limits   *ratelimit.Group
	breakers *breaker.Group
	retry    retry.Config
	tracker  usage.Tracker
	timeout  time.Duration
}

// Options collects the knobs New accepts. Zero values fall back to the
// package defaults of the corresponding subsystem.
type Options struct {
	RateLimit      ratelimit.Config
	Breaker        breaker.Config
	Retry          retry.Config
	Tracker        usage.Tracker
	DefaultTimeout time.Duration
}

var (
	// WithRateLimit overrides the per platform rate limit configuration.
	WithRateLimit = opts.ForName[Options, ratelimit.Config]("RateLimit")
	// WithBreakerConfig overrides the circuit breaker thresholds.
	WithBreakerConfig = opts.ForName[Options, breaker.Config]("Breaker")
	// WithRetryConfig overrides the retry policy.
	WithRetryConfig = opts.ForName[Options, retry.Config]("Retry")
	// WithTracker installs a usage tracker. The default discards records.
	WithTracker = opts.ForName[Options, usage.Tracker]("Tracker")
	// WithDefaultTimeout sets the per attempt timeout used when a request
	// does not carry its own.
	WithDefaultTimeout = opts.ForName[Options, time.Duration]("DefaultTimeout")
)

// New builds an engine over an initialized registry.
func New(registry *models.Registry, options ...opts.Option[Options]) (*Engine, error) {
	o := Options{
		RateLimit: ratelimit.DefaultConfig(),
		Breaker:   breaker.DefaultConfig(),
		Retry:     retry.DefaultConfig(),
		Tracker:   usage.Nop{},
	}
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = o.Retry.AttemptTimeout
	}

	return &Engine{
		registry: registry,
		limits:   ratelimit.NewGroup(o.RateLimit),
		breakers: breaker.NewGroup(o.Breaker),
		retry:    o.Retry,
		tracker:  o.Tracker,
		timeout:  o.DefaultTimeout,
	}, nil
}

// Providers lists the names the registry knows about.
func (e *Engine) Providers() []string {
	return e.registry.Names()
}

// Available lists the providers whose breaker currently admits traffic.
func (e *Engine) Available() []string {
	return e.breakers.Available()
}

// Health reports breaker statistics per provider.
func (e *Engine) Health() map[string]breaker.Stats {
	return e.breakers.AllStats()
}

// Call runs a blocking completion against the named provider.
func (e *Engine) Call(ctx context.Context, name string, req provider.Request) (provider.Result, error) {
	client, br, release, err := e.admit(ctx, name)
	if err != nil {
		return provider.Result{Err: err}, err
	}
	defer release()

	res, err := retry.Do(ctx, e.retry, e.attemptTimeout(req), func(ctx context.Context) (provider.Result, error) {
		return client.Complete(ctx, req)
	})
	if callerCanceled(ctx, err) {
		// The caller hung up or the fan-out race was decided elsewhere.
		// That is not a provider failure, so the breaker and the usage
		// ledger never see it.
		return res, err
	}
	br.Record(err, res.Duration)
	e.track(ctx, client, req, res)

	if err != nil {
		slog.Warn("provider call failed", slogx.Provider(name), slogx.Elapsed(res.Duration), slogx.Error(err))
	}
	return res, err
}

// Stream opens a streaming completion against the named provider. The
// returned channel carries the provider's events unchanged; the terminal
// event additionally feeds the breaker and the usage tracker before the
// channel closes. Streams are not retried, a broken stream surfaces as an
// Error event.
func (e *Engine) Stream(ctx context.Context, name string, req provider.Request) (<-chan provider.StreamEvent, error) {
	client, br, release, err := e.admit(ctx, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	inner, err := client.Stream(ctx, req)
	if err != nil {
		br.Record(err, time.Since(start))
		release()
		return nil, err
	}

	out := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(out)
		defer release()

		for ev := range inner {
			e.observe(ctx, br, client, req, ev)
			select {
			case out <- ev:
			case <-ctx.Done():
				// The consumer is gone. Keep consuming so the provider
				// goroutine can finish; the terminal event still feeds
				// the breaker and the tracker.
				for ev := range inner {
					e.observe(ctx, br, client, req, ev)
				}
				return
			}
		}
	}()
	return out, nil
}

// observe feeds a terminal stream event to the breaker and the usage
// tracker. Cancellation by the caller is not a provider failure and leaves
// both untouched.
func (e *Engine) observe(ctx context.Context, br *breaker.Breaker, client provider.Provider, req provider.Request, ev provider.StreamEvent) {
	switch term := ev.(type) {
	case provider.Complete:
		br.Record(nil, term.Duration)
		e.track(ctx, client, req, provider.Result{
			Usage:    term.Usage,
			Duration: term.Duration,
			Success:  true,
		})
	case provider.Error:
		if callerCanceled(ctx, term.Err) {
			return
		}
		br.Record(term.Err, term.Elapsed)
		e.track(ctx, client, req, provider.Result{
			Duration: term.Elapsed,
			Err:      term.Err,
		})
	}
}

// callerCanceled reports whether err is the caller's own cancellation
// rather than something the provider did.
func callerCanceled(ctx context.Context, err error) bool {
	return err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil
}

// admit resolves the client and claims breaker and rate limit capacity.
// The returned release func is non-nil exactly when err is nil.
func (e *Engine) admit(ctx context.Context, name string) (provider.Provider, *breaker.Breaker, func(), error) {
	client, err := e.registry.Get(name)
	if err != nil {
		return nil, nil, nil, err
	}

	br := e.breakers.For(name)
	if err := br.Allow(); err != nil {
		apiErr := provider.NewAPIError(provider.ServiceError, name, "circuit_open", 0,
			"the provider is temporarily suspended after repeated failures").WithCause(err)
		return nil, nil, nil, apiErr
	}

	release, err := e.limits.For(client.Platform()).Acquire(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return client, br, release, nil
}

func (e *Engine) attemptTimeout(req provider.Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return e.timeout
}

func (e *Engine) track(ctx context.Context, client provider.Provider, req provider.Request, res provider.Result) {
	e.tracker.Track(ctx, usage.Record{
		Provider:  client.Name(),
		Model:     req.Model,
		Category:  req.Meta.Category,
		CallerID:  req.Meta.CallerID,
		Usage:     res.Usage,
		Duration:  res.Duration,
		Success:   res.Success,
		Timestamp: strfmt.DateTime(time.Now()),
	})
}
