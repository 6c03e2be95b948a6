// Package pubsub provides an in-process publish/subscribe bus used to fan out
// notification updates to live client connections.
//
// Delivery is best-effort and at-most-once: Publish never blocks, and a
// subscriber whose buffer is full misses the payload. Subscriptions end when
// the context passed to Subscribe is cancelled, which ties their lifetime to
// the client connection that owns them.
package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultBufferSize = 16

type options struct {
	bufferSize int
	onDrop     func(topic string)
	onChange   func(delta int)
}

// Option configures a Bus.
type Option func(*options)

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithDropHook is called whenever a payload is dropped for a slow subscriber.
func WithDropHook(fn func(topic string)) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

// WithSubscriberHook is called with +1 and -1 as subscriptions open and close.
func WithSubscriberHook(fn func(delta int)) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

type subscriber[T any] struct {
	id    string
	topic string
	ch    chan T
	once  sync.Once
}

// Bus is a topic-keyed fan-out bus. Construct one per process with New and
// hand it to every producer and consumer.
//
// Thread Safety: Bus is safe for concurrent use.
type Bus[T any] struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscriber[T]
	closed bool
	opts   options
}

// New creates a Bus.
func New[T any](opts ...Option) *Bus[T] {
	o := options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus[T]{
		topics: make(map[string]map[string]*subscriber[T]),
		opts:   o,
	}
}

// Subscribe returns a channel of payloads published to topic after this call.
// The channel is closed once ctx is done or the bus is closed.
func (b *Bus[T]) Subscribe(ctx context.Context, topic string) <-chan T {
	sub := &subscriber[T]{
		id:    uuid.NewString(),
		topic: topic,
		ch:    make(chan T, b.opts.bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*subscriber[T])
	}
	b.topics[topic][sub.id] = sub
	b.mu.Unlock()

	if b.opts.onChange != nil {
		b.opts.onChange(1)
	}

	go func() {
		<-ctx.Done()
		b.remove(sub)
	}()

	return sub.ch
}

// remove unregisters sub and closes its channel. Taking the write lock first
// guarantees no Publish is mid-send on the channel being closed.
func (b *Bus[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	b.mu.Unlock()

	sub.once.Do(func() {
		close(sub.ch)
		if b.opts.onChange != nil {
			b.opts.onChange(-1)
		}
	})
}

// Publish hands payload to every current subscriber of topic without
// blocking and returns how many received it.
func (b *Bus[T]) Publish(topic string, payload T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.topics[topic] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			if b.opts.onDrop != nil {
				b.opts.onDrop(topic)
			}
		}
	}
	return delivered
}

// Subscribers reports the number of live subscriptions on topic.
func (b *Bus[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close ends every subscription. Later Subscribe calls get a closed channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*subscriber[T]
	for _, subs := range b.topics {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	b.topics = make(map[string]map[string]*subscriber[T])
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() {
			close(sub.ch)
			if b.opts.onChange != nil {
				b.opts.onChange(-1)
			}
		})
	}
}
