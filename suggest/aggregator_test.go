package suggest

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/aviary/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamer scripts per-provider token streams without a network.
type fakeStreamer struct {
	scripts map[string][]string
	errs    map[string]error
}

func (f *fakeStreamer) Stream(_ context.Context, name string, _ provider.Request) (<-chan provider.StreamEvent, error) {
	if err, ok := f.errs[name]; ok {
		return nil, err
	}

	out := make(chan provider.StreamEvent, len(f.scripts[name])+1)
	go func() {
		defer close(out)
		for _, text := range f.scripts[name] {
			out <- provider.Token{Provider: name, Text: text}
		}
		out <- provider.Complete{Provider: name, TokenCount: len(f.scripts[name])}
	}()
	return out, nil
}

func collect(t *testing.T, ch <-chan Suggestion) []Suggestion {
	t.Helper()

	var all []Suggestion
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return all
			}
			all = append(all, s)
		case <-deadline:
			t.Fatal("suggestion channel never closed")
		}
	}
}

func TestSuggestReassemblesLines(t *testing.T) {
	streamer := &fakeStreamer{scripts: map[string][]string{
		// Tokens split mid-word and mid-line, the way real streams arrive.
		"alpha": {"app", "le pie\nban", "ana bread\n"},
	}}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"alpha"}, provider.Request{Prompt: "bake"}))

	require.Len(t, got, 2)
	assert.Equal(t, "apple pie", got[0].Text)
	assert.Equal(t, "banana bread", got[1].Text)
	for _, s := range got {
		assert.Equal(t, "alpha", s.Provider)
		assert.Equal(t, 1, s.Batch)
		assert.NotEqual(t, s.ID.String(), "00000000-0000-0000-0000-000000000000")
	}
}

func TestSuggestFlushesTrailingPartialLine(t *testing.T) {
	streamer := &fakeStreamer{scripts: map[string][]string{
		"alpha": {"first\n", "no trailing newline"},
	}}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"alpha"}, provider.Request{}))

	require.Len(t, got, 2)
	assert.Equal(t, "no trailing newline", got[1].Text)
}

func TestSuggestStripsListMarkers(t *testing.T) {
	streamer := &fakeStreamer{scripts: map[string][]string{
		"alpha": {"1. apple\n2) banana\n- cherry\n* damson\n"},
	}}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"alpha"}, provider.Request{}))

	require.Len(t, got, 4)
	assert.Equal(t, "apple", got[0].Text)
	assert.Equal(t, "banana", got[1].Text)
	assert.Equal(t, "cherry", got[2].Text)
	assert.Equal(t, "damson", got[3].Text)
}

func TestSuggestDeduplicatesAcrossProviders(t *testing.T) {
	streamer := &fakeStreamer{scripts: map[string][]string{
		"alpha": {"  Apple! \n"},
		"bravo": {"apple\nbanana\n"},
	}}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"alpha", "bravo"}, provider.Request{}))

	texts := make(map[string]bool, len(got))
	for _, s := range got {
		texts[normalize(s.Text)] = true
	}
	assert.Len(t, got, 2, "the apple variants collapse into one suggestion")
	assert.True(t, texts["apple"])
	assert.True(t, texts["banana"])
}

func TestSuggestDeduplicatesAcrossBatches(t *testing.T) {
	streamer := &fakeStreamer{scripts: map[string][]string{
		"alpha": {"apple\nbanana\n"},
	}}
	a := NewAggregator(streamer)

	first := collect(t, a.Suggest(context.Background(), []string{"alpha"}, provider.Request{}))
	require.Len(t, first, 2)
	assert.Equal(t, 1, first[0].Batch)

	second := collect(t, a.Suggest(context.Background(), []string{"alpha"}, provider.Request{}))
	assert.Empty(t, second, "a later batch never resurfaces earlier suggestions")
	assert.Equal(t, 2, a.Session().Len())
}

func TestSuggestSkipsBrokenProviders(t *testing.T) {
	boom := provider.NewAPIError(provider.AccessDenied, "broken", "invalid_api_key", 401, "who")
	streamer := &fakeStreamer{
		scripts: map[string][]string{"alpha": {"apple\n"}},
		errs:    map[string]error{"broken": boom},
	}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"alpha", "broken"}, provider.Request{}))

	require.Len(t, got, 1)
	assert.Equal(t, "apple", got[0].Text)
}

func TestSuggestAllProvidersBroken(t *testing.T) {
	boom := provider.NewAPIError(provider.AccessDenied, "broken", "invalid_api_key", 401, "who")
	streamer := &fakeStreamer{errs: map[string]error{"broken": boom}}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"broken"}, provider.Request{}))
	assert.Empty(t, got)
}

func TestMuxInterleavesBackloggedProviders(t *testing.T) {
	// All of alpha's lines land on the intake before anyone else's, the way
	// a fast stream beats slow ones. Emission must still rotate across
	// providers instead of following arrival order.
	scripts := map[string][]string{
		"alpha":   {"amaranth", "asparagus", "artichoke"},
		"bravo":   {"blueberry", "broccoli", "plantain"},
		"charlie": {"cranberry", "cauliflower", "tangerine"},
	}
	names := []string{"alpha", "bravo", "charlie"}

	intake := make(chan line, 12)
	for _, name := range names {
		for _, text := range scripts[name] {
			intake <- line{provider: name, text: text}
		}
	}
	for _, name := range names {
		intake <- line{provider: name, done: true}
	}

	a := NewAggregator(nil)
	out := make(chan Suggestion, 12)
	go a.mux(context.Background(), names, len(names), 1, intake, out)

	got := collect(t, out)
	require.Len(t, got, 9)

	var order []string
	for _, s := range got {
		order = append(order, s.Provider)
	}
	assert.Equal(t,
		[]string{"alpha", "bravo", "charlie", "alpha", "bravo", "charlie", "alpha", "bravo", "charlie"},
		order, "a provider whose lines arrive first must not flood the head of the stream")
}

func TestSuggestHaltsWhenCancelled(t *testing.T) {
	// Far more lines than the internal buffers hold, all mutually distinct
	// so dedup lets them through.
	fruits := []string{"mango", "kumquat", "papaya", "lychee", "durian"}
	animals := []string{"heron", "otter", "badger", "wombat", "gecko"}
	var sb []byte
	for _, f := range fruits {
		for _, a := range animals {
			sb = append(sb, f+" "+a+"\n"...)
		}
	}
	streamer := &fakeStreamer{scripts: map[string][]string{"alpha": {string(sb)}}}
	a := NewAggregator(streamer)

	ctx, cancel := context.WithCancel(context.Background())
	ch := a.Suggest(ctx, []string{"alpha"}, provider.Request{})

	first, ok := <-ch
	require.True(t, ok)
	require.NotEmpty(t, first.Text)
	cancel()

	// The channel must close even though nobody drains the backlog; a
	// blocked internal send would keep it open forever.
	got := collect(t, ch)
	assert.Less(t, len(got), 24)
}

func TestScore(t *testing.T) {
	t.Run("earlier arrivals rank higher", func(t *testing.T) {
		assert.Greater(t, score(0, "apple pie"), score(1, "banana bread"))
		assert.Greater(t, score(1, "banana bread"), score(4, "cherry tart"))
	})

	t.Run("degenerate lengths are discounted", func(t *testing.T) {
		assert.Equal(t, score(0, "apple")/2, score(0, "ab"))
	})
}

func TestSuggestScoresInArrivalOrder(t *testing.T) {
	streamer := &fakeStreamer{scripts: map[string][]string{
		"alpha": {"apple pie\nbanana bread\n"},
	}}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"alpha"}, provider.Request{}))

	require.Len(t, got, 2)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestSuggestEmitsEverythingBeforeClosing(t *testing.T) {
	streamer := &fakeStreamer{scripts: map[string][]string{
		"alpha": {"a one\na two\na three\n"},
		"bravo": {"b one\nb two\n"},
	}}
	a := NewAggregator(streamer)

	got := collect(t, a.Suggest(context.Background(), []string{"alpha", "bravo"}, provider.Request{}))
	assert.Len(t, got, 5, "no queued line is lost when the streams finish")
}
