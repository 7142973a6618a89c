package broker

import "context"

// Broker hands out named topics carrying values of type T.
type Broker[T any] interface {
	Topic(context.Context, string) Topic[T]
}

// Topic is one named pub/sub channel. Publish must not block the caller
// beyond the slow-subscriber timeout; subscribers that cannot keep up are
// dropped rather than backpressuring the publisher.
type Topic[T any] interface {
	Publish(context.Context, T) error
	Subscribe(context.Context, Handler[T]) (Subscription, error)
}

// Handler consumes published values on a subscriber goroutine.
type Handler[T any] func(context.Context, T)

type Subscription interface {
	ID() string
	Unsubscribe()
}
