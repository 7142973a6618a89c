package usage

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/aviary/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTrackerDeliversRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker, topic := NewLocal(ctx)

	received := make(chan Record, 1)
	sub, err := topic.Subscribe(ctx, func(_ context.Context, rec Record) {
		received <- rec
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	tracker.Track(ctx, Record{
		Provider: "alpha",
		Model:    "alpha-large",
		Usage:    provider.Usage{Input: 10, Output: 5, Total: 40},
		Success:  true,
	})

	select {
	case rec := <-received:
		assert.Equal(t, "alpha", rec.Provider)
		assert.Equal(t, int64(40), rec.Usage.Total, "the resolved total passes through untouched")
	case <-time.After(time.Second):
		t.Fatal("usage record never arrived")
	}
}

func TestTrackNeverBlocksCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker, _ := NewLocal(ctx)

	// No subscriber exists; publishing a pile of records must still return
	// promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			tracker.Track(ctx, Record{Provider: "alpha"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracking blocked the caller")
	}
}

func TestMemoryTracker(t *testing.T) {
	m := &Memory{}
	m.Track(context.Background(), Record{Provider: "alpha", Success: true})
	m.Track(context.Background(), Record{Provider: "bravo", Success: false})

	records := m.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].Provider)
	assert.False(t, records[1].Success)

	records[0].Provider = "mutated"
	assert.Equal(t, "alpha", m.Records()[0].Provider, "Records returns a copy")
}
