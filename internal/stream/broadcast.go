// Package stream implements the resilient log-stream client (C2) and the
// generic bounded broadcast bus every cross-analyzer channel in PumpGuard
// rides on (the log-event bus, the new-token bus, and — via internal/alerts
// — the alert bus). The fan-out and non-blocking-send shape is grounded on
// adred-codev-ws_poc/go-server/pkg/websocket/hub.go's broadcastMessage,
// adapted to report how many messages a lagging subscriber missed instead
// of disconnecting it — spec.md §4.2/§5 wants bounded, reported loss, not a
// disconnect policy. The dashboard's /ws feed subscribes to this same
// broadcast and also keeps a lagging client connected.
package stream

import (
	"sync"
)

// Lag is delivered to a subscriber in place of a message when its channel
// was full and the broadcaster had to drop messages for it. Mirrors the
// tokio::sync::broadcast::error::RecvError::Lagged(n) signal the Rust
// original relies on (pumpguard-rs/src/main.rs::link_modules matches on it).
type Lag struct {
	Skipped uint64
}

// Broadcast is a bounded, multi-subscriber fan-out bus for values of type T.
// Slow subscribers lose messages rather than slow down the publisher or
// other subscribers — spec.md §5's explicit backpressure policy.
type Broadcast[T any] struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber[T]
	nextID      int
	capacity    int
	onLag       func(subscriberID int, skipped uint64)
}

type subscriber[T any] struct {
	ch      chan any // delivers either T or Lag
	skipped uint64
}

// NewBroadcast constructs a bus where each subscriber's channel holds up to
// capacity undelivered messages before further sends start dropping for it.
func NewBroadcast[T any](capacity int) *Broadcast[T] {
	return &Broadcast[T]{
		subscribers: make(map[int]*subscriber[T]),
		capacity:    capacity,
	}
}

// OnLag installs a callback invoked whenever a subscriber falls behind,
// used by callers that want to log/count lag without polling.
func (b *Broadcast[T]) OnLag(fn func(subscriberID int, skipped uint64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLag = fn
}

// Subscribe registers a new subscriber and returns its receive channel and
// an id usable with Unsubscribe. Messages arrive as either T (a value) or
// Lag (a loss notification) — callers type-switch on receipt.
func (b *Broadcast[T]) Subscribe() (<-chan any, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber[T]{ch: make(chan any, b.capacity)}
	b.subscribers[id] = sub
	return sub.ch, id
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcast[T]) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Publish fans value out to every current subscriber, non-blocking: a
// subscriber whose channel is full has its skip counter incremented and a
// best-effort Lag message queued for it instead of value.
func (b *Broadcast[T]) Publish(value T) {
	b.mu.Lock()
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	ids := make([]int, 0, len(b.subscribers))
	for id, sub := range b.subscribers {
		subs = append(subs, sub)
		ids = append(ids, id)
	}
	onLag := b.onLag
	b.mu.Unlock()

	for i, sub := range subs {
		select {
		case sub.ch <- value:
		default:
			sub.skipped++
			if onLag != nil {
				onLag(ids[i], sub.skipped)
			}
			select {
			case sub.ch <- Lag{Skipped: sub.skipped}:
			default:
				// even the lag notification couldn't be queued; the
				// subscriber is far enough behind that the next
				// successfully delivered value will simply look like a
				// gap to it.
			}
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Broadcast[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
