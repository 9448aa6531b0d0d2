// Package notify fans canonical call lifecycle notifications out to every
// connected observer surface.
package notify

// Kind identifies a lifecycle notification.
type Kind string

const (
	KindIncoming Kind = "incoming"
	KindActive   Kind = "active"
	KindEnded    Kind = "ended"
)

// Notification is one canonical lifecycle event produced by the
// reconciliation engine. At most one KindEnded is ever published per call id
// in this process.
type Notification struct {
	Kind   Kind   `json:"kind"`
	CallID string `json:"call_id"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	State  string `json:"state,omitempty"`
}

// Publisher is the engine-facing side of the fanout.
type Publisher interface {
	Publish(n Notification)
}
