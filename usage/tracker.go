// Package usage implements the token-accounting side channel. Every
// completed call, success or failure, emits one record to a tracker. The
// side channel is fire-and-forget: publishing never blocks and never fails
// the primary call path.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/aviary/internal/broker"
	"github.com/casualjim/aviary/pkg/slogx"
	"github.com/casualjim/aviary/provider"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Topic is the subject usage records are published on.
const Topic = "aviary.usage"

// Record is one call's accounting entry. Usage.Total is passed through
// exactly as the provider resolved it, even when it differs from
// Input+Output.
type Record struct {
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Category  string          `json:"category,omitempty"`
	CallerID  uuid.UUID       `json:"caller_id,omitempty"`
	Usage     provider.Usage  `json:"usage"`
	Duration  time.Duration   `json:"duration"`
	Success   bool            `json:"success"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

// Tracker receives one record per completed call.
type Tracker interface {
	Track(ctx context.Context, rec Record)
}

// Nop discards every record.
type Nop struct{}

func (Nop) Track(context.Context, Record) {}

type brokerTracker struct {
	topic broker.Topic[Record]
}

// NewLocal creates a tracker publishing to an in-process broker topic and
// returns both the tracker and the topic for subscribers.
func NewLocal(ctx context.Context) (Tracker, broker.Topic[Record]) {
	topic := broker.Local[Record]().Topic(ctx, Topic)
	return &brokerTracker{topic: topic}, topic
}

// NewNATS creates a tracker publishing records to NATS for an external
// accounting collaborator.
func NewNATS(ctx context.Context, conn *nats.Conn) Tracker {
	return &brokerTracker{topic: broker.NATS[Record](conn).Topic(ctx, Topic)}
}

// Track publishes the record on a detached goroutine. A publish failure is
// logged and dropped; the call path never observes it.
func (t *brokerTracker) Track(ctx context.Context, rec Record) {
	go func() {
		if err := t.topic.Publish(context.WithoutCancel(ctx), rec); err != nil {
			slog.Warn("failed to publish usage record",
				slogx.Provider(rec.Provider),
				slogx.Error(err))
		}
	}()
}

// Memory retains records in memory, primarily for tests and local
// inspection.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func (m *Memory) Track(_ context.Context, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

// Records returns a copy of everything tracked so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
