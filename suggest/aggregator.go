package suggest

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/casualjim/aviary/pkg/slogx"
	"github.com/casualjim/aviary/pkg/uuidx"
	"github.com/casualjim/aviary/provider"
	"github.com/google/uuid"
)

// Streamer is the slice of the engine the aggregator needs. It is
// satisfied by aviary.Engine.
type Streamer interface {
	Stream(ctx context.Context, name string, req provider.Request) (<-chan provider.StreamEvent, error)
}

// Suggestion is one deduplicated line produced by the aggregator.
type Suggestion struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Provider string    `json:"provider"`
	Batch    int       `json:"batch"`
	Score    float64   `json:"score,omitempty"`
	Selected bool      `json:"selected,omitempty"`
}

// Aggregator fans a prompt out to several providers' token streams and
// merges the results into suggestion lines. Lines are deduplicated through
// a shared Session, so repeated batches against the same aggregator never
// resurface a suggestion a previous batch already produced.
type Aggregator struct {
	streamer Streamer
	session  *Session
}

// NewAggregator builds an aggregator over the given streamer with a fresh
// dedup session.
func NewAggregator(streamer Streamer) *Aggregator {
	return &Aggregator{streamer: streamer, session: NewSession()}
}

// Session exposes the aggregator's dedup session.
func (a *Aggregator) Session() *Session {
	return a.session
}

// line is one complete text line attributed to its provider. done marks a
// provider's terminal event instead of carrying text.
type line struct {
	provider string
	text     string
	done     bool
}

// Suggest opens a stream per provider and emits deduplicated suggestion
// lines as they complete. Partial lines are buffered until a newline
// arrives or the provider's stream ends; emission is interleaved round
// robin across providers so a fast stream cannot flood the channel. The
// returned channel closes once every provider has finished.
func (a *Aggregator) Suggest(ctx context.Context, names []string, req provider.Request) <-chan Suggestion {
	out := make(chan Suggestion, 10)
	batch := a.session.NextBatch()

	intake := make(chan line, 10*len(names))
	active := 0
	for _, name := range names {
		events, err := a.streamer.Stream(ctx, name, req)
		if err != nil {
			slog.Warn("suggestion stream failed to open", slogx.Provider(name), slogx.Error(err))
			continue
		}
		active++
		go collectLines(ctx, name, events, intake)
	}

	if active == 0 {
		close(out)
		return out
	}

	go a.mux(ctx, names, active, batch, intake, out)
	return out
}

// mux owns the per provider queues. Every arriving line is queued, then one
// line is popped in rotation order, so the queues act as a fairness buffer
// between bursty producers and the consumer.
func (a *Aggregator) mux(ctx context.Context, names []string, active, batch int, intake <-chan line, out chan<- Suggestion) {
	defer close(out)
	mux := newFairMux(names)

	ordinal := 0
	emit := func(providerName, text string) bool {
		if !a.session.Admit(text) {
			return true
		}
		select {
		case out <- Suggestion{
			ID:       uuidx.New(),
			Text:     text,
			Provider: providerName,
			Batch:    batch,
			Score:    score(ordinal, text),
		}:
			ordinal++
			return true
		case <-ctx.Done():
			return false
		}
	}

	queue := func(ln line) {
		if ln.done {
			active--
			return
		}
		mux.push(ln.provider, ln.text)
	}

	for active > 0 {
		select {
		case <-ctx.Done():
			return
		case ln := <-intake:
			queue(ln)
			// Take everything else already waiting before emitting, so a
			// backlog that several providers produced at once comes out
			// round robin instead of in intake arrival order.
			for backlog := true; backlog; {
				select {
				case ln := <-intake:
					queue(ln)
				default:
					backlog = false
				}
			}
			if name, text, ok := mux.pop(); ok {
				if !emit(name, text) {
					return
				}
			}
		}
	}

	// Every provider finished, drain what is still queued.
	for {
		name, text, ok := mux.pop()
		if !ok {
			return
		}
		if !emit(name, text) {
			return
		}
	}
}

// collectLines turns a provider's token events into complete lines. Tokens
// split lines at arbitrary points, so text accumulates until a newline; the
// terminal event flushes whatever remains in the buffer. On cancellation it
// stops sending and drains the event channel so the upstream forwarder can
// finish.
func collectLines(ctx context.Context, name string, events <-chan provider.StreamEvent, intake chan<- line) {
	var buf strings.Builder

	send := func(ln line) bool {
		select {
		case intake <- ln:
			return true
		case <-ctx.Done():
			return false
		}
	}

	flush := func() bool {
		ok := true
		if candidate := cleanLine(buf.String()); candidate != "" {
			ok = send(line{provider: name, text: candidate})
		}
		buf.Reset()
		return ok
	}

	for ev := range events {
		tok, isToken := ev.(provider.Token)
		if !isToken {
			continue
		}
		for {
			idx := strings.IndexByte(tok.Text, '\n')
			if idx < 0 {
				buf.WriteString(tok.Text)
				break
			}
			buf.WriteString(tok.Text[:idx])
			if !flush() {
				for range events {
				}
				return
			}
			tok.Text = tok.Text[idx+1:]
		}
	}

	if flush() {
		send(line{provider: name, done: true})
	}
}

// score ranks a suggestion within its batch. Earlier arrivals rank higher,
// and lines too short or too long to read as a usable suggestion are
// discounted. Selected is left to the consumer.
func score(ordinal int, text string) float64 {
	s := 1.0 / float64(1+ordinal)
	if n := len(text); n < 3 || n > 120 {
		s /= 2
	}
	return s
}

// enumeration markers the models like to prefix list items with.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// cleanLine trims whitespace and strips a leading list marker so "1. apple"
// and "- apple" both come out as "apple".
func cleanLine(text string) string {
	return strings.TrimSpace(listMarker.ReplaceAllString(text, ""))
}
