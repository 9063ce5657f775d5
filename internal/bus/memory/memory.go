// Package memory is an in-process reference implementation of bus.Bus,
// grounded on the nil-safe broadcast-bus idiom used across the example
// pack's event buses: a topic-keyed subscriber map, non-blocking sends to
// bounded per-subscriber channels, and explicit unsubscribe funcs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/signalrt/internal/bus"
)

// subscriberChanSize bounds how many undelivered messages a slow subscriber
// may accumulate before Publish starts dropping for that subscriber,
// preserving the best-effort-delivery contract of bus.Bus.
const subscriberChanSize = 64

// handlerPollInterval is how often Request rechecks for a handler
// registration while none is present yet.
const handlerPollInterval = 5 * time.Millisecond

type subscriber struct {
	id string
	ch chan bus.Message
}

// Bus is a goroutine-safe, in-process bus.Bus. Publish is FIFO per
// (publisher, topic) because deliveries for one Publish call are sent to
// each subscriber channel in the order the publisher made its calls and
// subscriber channels are themselves FIFO.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	handlers    map[string]bus.RequestHandler
	closed      bool
	nextSubID   uint64
	subChanSize int
}

// New returns a ready-to-use in-memory Bus with the default subscriber
// channel capacity.
func New() *Bus {
	return NewWithChannelSize(subscriberChanSize)
}

// NewWithChannelSize returns a ready-to-use in-memory Bus whose per-subscriber
// channels hold up to size undelivered messages before Publish starts
// dropping for that subscriber.
func NewWithChannelSize(size int) *Bus {
	if size <= 0 {
		size = subscriberChanSize
	}

	return &Bus{
		subscribers: make(map[string][]*subscriber),
		handlers:    make(map[string]bus.RequestHandler),
		subChanSize: size,
	}
}

// Publish delivers payload to every current subscriber of topic. A
// subscriber whose channel is full has the message dropped for it, matching
// the best-effort delivery contract.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return bus.ErrClosed
	}

	msg := bus.Message{Topic: topic, Payload: payload}

	for _, sub := range b.subscribers[topic] {
		select {
		case sub.ch <- msg:
		default:
		}
	}

	return nil
}

// Subscribe registers interest in topic.
func (b *Bus) Subscribe(_ context.Context, topic string) (<-chan bus.Message, func(), error) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return nil, nil, bus.ErrClosed
	}

	b.nextSubID++
	sub := &subscriber{id: fmt.Sprintf("sub-%d", b.nextSubID), ch: make(chan bus.Message, b.subChanSize)}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[topic]
		for i, s := range subs {
			if s.id == sub.id {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)

				break
			}
		}

		close(sub.ch)
	}

	return sub.ch, unsubscribe, nil
}

// HandleRequests registers handler to answer Request calls on topic,
// replacing any previously registered handler for the same topic.
func (b *Bus) HandleRequests(_ context.Context, topic string, handler bus.RequestHandler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, bus.ErrClosed
	}

	b.handlers[topic] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.handlers[topic] != nil {
			delete(b.handlers, topic)
		}
	}, nil
}

// Request waits up to timeout for a handler to be registered for topic —
// a spawning signal's sendGraph responder may not have installed its
// handler yet when a dependent races to resolve it — then invokes that
// handler and returns its reply, or bus.ErrRequestTimeout if none answers
// in time.
func (b *Bus) Request(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handler, err := b.awaitHandler(reqCtx, topic)
	if err != nil {
		return nil, err
	}

	type result struct {
		reply []byte
		err   error
	}

	resultCh := make(chan result, 1)

	go func() {
		reply, err := handler(reqCtx, payload)
		resultCh <- result{reply: reply, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("bus: request to %q: %w", topic, res.err)
		}

		return res.reply, nil
	case <-reqCtx.Done():
		return nil, fmt.Errorf("%w: %q", bus.ErrRequestTimeout, topic)
	}
}

// awaitHandler polls for topic's registered handler until one appears, the
// bus closes, or ctx is done.
func (b *Bus) awaitHandler(ctx context.Context, topic string) (bus.RequestHandler, error) {
	for {
		b.mu.RLock()
		handler := b.handlers[topic]
		closed := b.closed
		b.mu.RUnlock()

		if closed {
			return nil, bus.ErrClosed
		}

		if handler != nil {
			return handler, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %q", bus.ErrRequestTimeout, topic)
		case <-time.After(handlerPollInterval):
		}
	}
}

// Close marks the bus closed, closes every subscriber channel, and rejects
// further operations.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
	}

	b.subscribers = make(map[string][]*subscriber)
	b.handlers = make(map[string]bus.RequestHandler)

	return nil
}
