package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// NewClient connects to the NATS server named by the NATS_URL environment
// variable. Without explicit options the connection identifies itself as
// "aviary", enables compression, and keeps reconnecting indefinitely so the
// usage side channel survives broker restarts.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts,
			nats.Name("aviary"),
			nats.Compression(true),
			nats.MaxReconnects(-1),
		)
	}
	return nats.Connect(os.Getenv("NATS_URL"), opts...)
}
