// Package history records one immutable call detail record per retired call.
// It is reporting-only: the live registry is never persisted and nothing is
// read back at startup.
package history

import "time"

// Record is an append-only call detail record.
//
// Invariants:
// - Records are never updated or deleted.
// - One record per retirement; retirement idempotence upstream guarantees
//   at most one per call id per process lifetime.
type Record struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	From string `json:"from" db:"from_endpoint"`
	To   string `json:"to" db:"to_endpoint"`

	// Source is the ingestion path that owned the call when it retired.
	Source string `json:"source" db:"source"`

	// EndedState is the last observed state, or "ended" when retirement came
	// from a path with no state information (stale sweep, unknown hangup).
	EndedState string `json:"ended_state" db:"ended_state"`

	FirstSeenAt time.Time `json:"first_seen_at" db:"first_seen_at"`
	EndedAt     time.Time `json:"ended_at" db:"ended_at"`
}
