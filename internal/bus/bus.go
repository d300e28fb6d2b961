// Package bus is the in-process publish/subscribe fabric connecting the
// stream client to the conversation store and the notification dispatcher.
package bus

import (
	"strings"
	"sync"
	"time"
)

// Topic prefixes used across the engine. Subscribers match by prefix, so
// "stream.event." receives every parsed frame while "stream.event.new_message"
// receives only one kind.
const (
	TopicStreamEvent  = "stream.event."
	TopicStreamState  = "stream.state."
	TopicConversation = "convo."
	TopicNotify       = "notify."
)

// Event is a published notification with an opaque payload.
type Event struct {
	Topic   string
	At      time.Time
	Payload any
}

type subscriber struct {
	id     int
	prefix string
	ch     chan Event
}

// Bus fans events out to prefix-matched subscribers. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs []subscriber
	next int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Topic.
// Never blocks.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Topic, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Slow subscriber: drop rather than stall the publisher.
			}
		}
	}
}

// Subscribe registers a prefix subscription with the given channel buffer.
// The returned func removes the subscription; the channel is not closed.
func (b *Bus) Subscribe(prefix string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscriber{id: id, prefix: prefix, ch: ch})
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}
