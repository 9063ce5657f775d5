// Package bus defines the pub/sub boundary the Signal actors communicate
// over. The transport implementation of the bus itself is an external
// collaborator; this package only fixes the contract (reliable,
// FIFO-per-(publisher,topic), best-effort delivery) and the request/reply
// convenience built on top of it, plus one in-memory reference
// implementation under bus/memory for tests and single-process deployments.
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrRequestTimeout is returned by Request when no reply arrives before the
// deadline.
var ErrRequestTimeout = errors.New("bus: request timed out")

// ErrClosed is returned by bus operations performed after Close.
var ErrClosed = errors.New("bus: closed")

// Message is one payload delivered on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// RequestHandler answers a request published on a topic registered via
// HandleRequests. Returning an error causes the requester's Request call to
// fail with that error.
type RequestHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Bus is the pub/sub boundary every Signal actor and command depends on.
// Implementations must guarantee FIFO delivery on any (publisher, topic)
// pair; there is no ordering guarantee across topics.
type Bus interface {
	// Publish delivers payload to every current subscriber of topic.
	// Delivery is best-effort: a slow or absent subscriber never blocks or
	// errors the publisher.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers interest in topic and returns a channel of
	// deliveries plus an unsubscribe function. The channel is closed after
	// unsubscribe returns.
	Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error)

	// Request publishes payload to topic and waits up to timeout for the
	// registered handler's reply. Returns ErrRequestTimeout if no handler
	// answers in time.
	Request(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error)

	// HandleRequests registers handler to answer Request calls on topic.
	// Returns an unregister function. At most one handler is active per
	// topic at a time in the reference implementation.
	HandleRequests(ctx context.Context, topic string, handler RequestHandler) (func(), error)
}
