package telephony

// EventKind identifies a platform push event.
type EventKind string

const (
	// EventIncomingCall is the first sighting of a call: the platform hands
	// over a live CallHandle along with endpoint metadata.
	EventIncomingCall EventKind = "incoming_call"
	// EventStateChange reports a per-call state transition.
	EventStateChange EventKind = "state_change"
	// EventCallAnswered and EventCallFailed are terminal-specific duplicates
	// the platform sends alongside state changes; kept for redundancy.
	EventCallAnswered EventKind = "call_answered"
	EventCallFailed   EventKind = "call_failed"
	EventCallEnded    EventKind = "call_ended"
)

// Event is the tagged variant consumed from the platform's push stream.
// Exactly which fields are set depends on Kind; CallID is always set.
type Event struct {
	Kind   EventKind
	CallID string

	// Incoming-call fields.
	From   string
	To     string
	Handle CallHandle

	// State-change field.
	State State
}

// EventSource is a platform adapter that pushes call events.
// The channel closes when the adapter shuts down.
type EventSource interface {
	Events() <-chan Event
}
