package notify

import "sync"

// Recorder is a Publisher that stores everything published, for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// All returns a copy of every notification published so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// ByKind returns published notifications of the given kind.
func (r *Recorder) ByKind(k Kind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.sent {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// EndedCount returns how many KindEnded notifications were published for id.
func (r *Recorder) EndedCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.sent {
		if n.Kind == KindEnded && n.CallID == id {
			count++
		}
	}
	return count
}
