// Package pubsub fans ingestion events out to in-process listeners such as
// server-sent event streams and notifiers.
package pubsub

import (
	"context"
	"sync"
)

// EventType describes the kind of event.
type EventType string

const (
	Progress  EventType = "progress"
	Completed EventType = "completed"
	Failed    EventType = "failed"
)

// Terminal reports whether no further events follow for the same subject.
func (t EventType) Terminal() bool {
	return t == Completed || t == Failed
}

// Event wraps a typed payload with an event type.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// subscriberBufferSize is the channel buffer size for each subscriber.
const subscriberBufferSize = 64

type subscriber[T any] struct {
	keep func(T) bool
}

// Broker is a generic, thread-safe publish/subscribe broker.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[chan Event[T]]subscriber[T]
}

// NewBroker creates a new Broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]subscriber[T]),
	}
}

// Subscribe receives every event until ctx is cancelled, at which point the
// channel is closed and the subscription removed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return b.SubscribeFunc(ctx, nil)
}

// SubscribeFunc is like Subscribe but only delivers payloads for which keep
// returns true. A nil keep accepts everything.
func (b *Broker[T]) SubscribeFunc(ctx context.Context, keep func(T) bool) <-chan Event[T] {
	ch := make(chan Event[T], subscriberBufferSize)

	b.mu.Lock()
	b.subs[ch] = subscriber[T]{keep: keep}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish broadcasts an event to all matching subscribers. If a
// subscriber's buffer is full, the event is dropped for that subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	evt := Event[T]{Type: eventType, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, sub := range b.subs {
		if sub.keep != nil && !sub.keep(payload) {
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
