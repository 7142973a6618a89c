package aviary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/casualjim/aviary/provider"
	"github.com/go-openapi/strfmt"
)

// Outcome is the per provider result of a fan-out call.
type Outcome struct {
	Provider string
	Result   provider.Result
	Err      error
}

// CallAll runs the request against every named provider in parallel and
// waits for all of them. The returned map has one entry per name, failures
// included; a provider failing never aborts its siblings.
func (e *Engine) CallAll(ctx context.Context, names []string, req provider.Request) map[string]Outcome {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make(map[string]Outcome, len(names))
	)

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res, err := e.Call(ctx, name, req)
			mu.Lock()
			outcomes[name] = Outcome{Provider: name, Result: res, Err: err}
			mu.Unlock()
		}(name)
	}

	wg.Wait()
	return outcomes
}

// CallFirst races the request across the named providers and returns the
// first success. The losers are cancelled as soon as a winner lands; their
// cancellation is an internal affair and never surfaces to the caller. When
// every provider fails the errors are joined.
func (e *Engine) CallFirst(ctx context.Context, names []string, req provider.Request) (Outcome, error) {
	if len(names) == 0 {
		return Outcome{}, errors.New("no providers to race")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		outcome Outcome
		won     bool
	}
	results := make(chan attempt, len(names))

	for _, name := range names {
		go func(name string) {
			res, err := e.Call(raceCtx, name, req)
			results <- attempt{
				outcome: Outcome{Provider: name, Result: res, Err: err},
				won:     err == nil,
			}
		}(name)
	}

	failures := make([]error, 0, len(names))
	for range names {
		a := <-results
		if a.won {
			cancel()
			return a.outcome, nil
		}
		// A loser cancelled by the race reports context.Canceled; that is
		// our doing, not the provider's, so it does not join the failures.
		if errors.Is(a.outcome.Err, context.Canceled) && ctx.Err() == nil {
			continue
		}
		failures = append(failures, fmt.Errorf("%s: %w", a.outcome.Provider, a.outcome.Err))
	}

	if len(failures) == 0 {
		failures = append(failures, ctx.Err())
	}
	return Outcome{}, errors.Join(failures...)
}

// CallProgressive runs the request against every named provider and emits
// each outcome as it lands, fastest first. The channel closes once every
// provider has reported.
func (e *Engine) CallProgressive(ctx context.Context, names []string, req provider.Request) <-chan Outcome {
	out := make(chan Outcome, len(names))

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res, err := e.Call(ctx, name, req)
			out <- Outcome{Provider: name, Result: res, Err: err}
		}(name)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// StreamAll opens a stream against every named provider and merges the
// events onto one channel. Each event names its provider, so consumers can
// demultiplex. A provider that fails to open contributes a single Error
// event instead of aborting the rest. The merged channel closes when every
// provider has delivered its terminal event.
func (e *Engine) StreamAll(ctx context.Context, names []string, req provider.Request) <-chan provider.StreamEvent {
	out := make(chan provider.StreamEvent, 10*len(names))

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			start := time.Now()
			events, err := e.Stream(ctx, name, req)
			if err != nil {
				select {
				case out <- provider.Error{
					Provider:  name,
					Err:       err,
					Elapsed:   time.Since(start),
					Timestamp: strfmt.DateTime(time.Now()),
				}:
				case <-ctx.Done():
				}
				return
			}
			for ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					for range events {
					}
					return
				}
			}
		}(name)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
