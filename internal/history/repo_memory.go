package history

import (
	"context"
	"sync"
)

// MemoryRepo is the default in-process repository. It is also the test
// double; nothing here is durable.
type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
