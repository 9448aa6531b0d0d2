package observer

import (
	"context"
	"log/slog"
	"sync"

	"call-relay/internal/notify"
)

// Hub tracks every connected observer session and pushes each fanout
// notification to all of them, in the order the engine produced them.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		sessions: make(map[*Session]struct{}),
		log:      log,
	}
}

// Run consumes the fanout until ctx is done, forwarding every notification
// to every session. A single consumer goroutine keeps per-call ordering.
func (h *Hub) Run(ctx context.Context, fanout *notify.Fanout) {
	ch, cancel := fanout.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case n, ok := <-ch:
			if !ok {
				h.closeAll()
				return
			}
			h.mu.Lock()
			for s := range h.sessions {
				s.handleNotification(n)
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an already-built envelope to every session.
func (h *Hub) Broadcast(ev Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.enqueue(ev)
	}
}

// Sessions reports how many observers are connected.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
