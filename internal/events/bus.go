// Package events fans configuration changes out to SSE clients.
package events

import (
	"sync"
	"time"

	"github.com/micro-nova/laserguard/internal/state"
)

const subBufferSize = 8

// Kinds of events, one per configuration domain plus the radio.
const (
	KindDevice       = "device"
	KindCredentials  = "credentials"
	KindNotification = "notification"
	KindSchedule     = "schedule"
	KindWifi         = "wifi"
)

// Event is one change notification.
type Event struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Bus is a non-blocking publish-subscribe event bus.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan Event),
	}
}

// Subscribe creates a new subscription with the given ID.
// Call Unsubscribe when done to clean up.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped (non-blocking).
func (b *Bus) Publish(kind string, data any) {
	ev := Event{Kind: kind, At: time.Now().UTC(), Data: data}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Forward returns a state subscriber that publishes every new value of a
// configuration domain as an event of the given kind. redact, if set, maps
// the value before it leaves the process.
func Forward[C any](b *Bus, kind string, redact func(C) any) state.Subscriber[C] {
	return func(_, next C) {
		var data any = next
		if redact != nil {
			data = redact(next)
		}
		b.Publish(kind, data)
	}
}
