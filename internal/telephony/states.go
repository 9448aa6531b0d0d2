package telephony

// State is a call lifecycle state as reported by the voice platform.
//
// The relay collapses the platform's enumeration into two classes:
// live (anything not explicitly terminal) and terminal (no further
// progress possible, retirement-eligible).
type State string

const (
	StateCreated  State = "created"
	StateRinging  State = "ringing"
	StateAnswered State = "answered"
	StateActive   State = "active"

	StateEnded     State = "ended"
	StateEnding    State = "ending"
	StateCompleted State = "completed"
	StateBusy      State = "busy"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

var terminalStates = map[State]struct{}{
	StateEnded:     {},
	StateEnding:    {},
	StateCompleted: {},
	StateBusy:      {},
	StateFailed:    {},
	StateCanceled:  {},
}

// IsTerminal reports whether s is a terminal state.
// Unknown states are treated as live.
func IsTerminal(s State) bool {
	_, ok := terminalStates[s]
	return ok
}

// CanHangup reports whether a platform hangup may be issued for a call
// in state s. Issuing hangup outside this set is wasted or errors upstream.
func CanHangup(s State) bool {
	switch s {
	case StateCreated, StateRinging, StateAnswered, StateActive:
		return true
	default:
		return false
	}
}
