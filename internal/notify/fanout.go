package notify

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 64

// Fanout broadcasts notifications to every subscriber.
//
// Each subscriber gets its own buffered queue, filled in publish order, so
// per-call ordering is preserved across the fanout boundary. A subscriber
// that falls subscriberBuffer notifications behind starts losing the oldest
// ones; call volume per process is low enough that this never happens in
// practice, and it keeps Publish non-blocking.
type Fanout struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	next   int
	closed bool
	log    *slog.Logger
}

func NewFanout(log *slog.Logger) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{
		subs: make(map[int]chan Notification),
		log:  log,
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release the queue; the channel closes after cancel or Close.
func (f *Fanout) Subscribe() (<-chan Notification, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan Notification, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers n to every subscriber without blocking.
func (f *Fanout) Publish(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- n:
		default:
			// Drop oldest to make room; the subscriber is too far behind.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- n:
			default:
			}
			f.log.Warn("fanout subscriber lagging, dropped notification",
				"subscriber", id, "kind", n.Kind, "call_id", n.CallID)
		}
	}
}

// Close shuts down all subscriber channels.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
