// Package registry holds the authoritative in-memory table of known calls,
// merged from the platform's realtime push stream and HTTP status webhooks.
package registry

import (
	"sync"
	"time"

	"call-relay/internal/telephony"
)

// Source identifies which ingestion path owns a call record.
type Source string

const (
	// SourceRealtime calls arrived over the platform push API. They carry a
	// live capability handle and can be commanded.
	SourceRealtime Source = "realtime"
	// SourceWebhook calls are known only from passive HTTP notifications.
	// Metadata-only, not commandable.
	SourceWebhook Source = "webhook"
)

// Call is one tracked telephony session.
//
// Invariants:
// - At most one record exists per ID regardless of source.
// - Handle is only non-nil while Source is realtime.
// - From/To are immutable once set.
type Call struct {
	ID     string
	From   string
	To     string
	State  telephony.State
	Source Source

	// CreatedAt is when the record was first inserted.
	CreatedAt time.Time

	// LastSeen is refreshed on every event or poll referencing the call.
	// Webhook records have no reliable terminal push; the staleness sweep
	// retires them once LastSeen is old enough.
	LastSeen time.Time

	Handle telephony.CallHandle
}

// Update is a partial-field merge applied by Upsert.
// Zero-valued fields leave the existing record unchanged.
type Update struct {
	ID     string
	Source Source
	From   string
	To     string
	State  telephony.State
	Handle telephony.CallHandle
}

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Registry is the mutex-guarded call table. Callers that need
// "decide + mutate + notify" atomicity serialize above this type; the
// internal lock only keeps individual operations race-free.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Call
	clock Clock
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		calls: make(map[string]*Call),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert inserts or merges u into the record for u.ID, refreshing LastSeen.
// It returns the record after the merge and whether it already existed.
//
// Merge rules: From/To stick once set; a realtime record keeps its source and
// handle even when a webhook write arrives for the same id (realtime wins on
// capability ownership); a webhook record is promoted when a realtime write
// arrives.
func (r *Registry) Upsert(u Update) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	c, existed := r.calls[u.ID]
	if !existed {
		c = &Call{ID: u.ID, Source: u.Source, CreatedAt: now}
		r.calls[u.ID] = c
	}

	if c.From == "" {
		c.From = u.From
	}
	if c.To == "" {
		c.To = u.To
	}
	if u.State != "" {
		c.State = u.State
	}
	if u.Source == SourceRealtime {
		c.Source = SourceRealtime
		if u.Handle != nil {
			c.Handle = u.Handle
		}
	}
	c.LastSeen = now

	return *c, existed
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

// Touch refreshes LastSeen for id, if present.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[id]; ok {
		c.LastSeen = r.clock()
	}
}

// Remove deletes the record for id and reports whether one existed.
// The return value is the idempotence guard for retirement: whoever gets
// true owns emitting the termination notification.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[id]; !ok {
		return false
	}
	delete(r.calls, id)
	return true
}

// Snapshot returns copies of all records, for the staleness sweep.
func (r *Registry) Snapshot() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, *c)
	}
	return out
}

// Len reports how many calls are tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
