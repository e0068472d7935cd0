// Package state defines the streaming connection state machine.
package state

import "fmt"

// ConnState represents the lifecycle state of a stream subscriber.
type ConnState int32

const (
	// StateIdle is the initial state before Start is called.
	StateIdle ConnState = iota
	// StateConnecting indicates the WebSocket handshake is in progress.
	StateConnecting
	// StateStreaming indicates the connection is open and frames are being received.
	StateStreaming
	// StateClosed indicates the connection has ended, normally or abnormally.
	StateClosed
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateStreaming:
		return "Streaming"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines the allowed state transitions.
// Key is the current state, value is a list of valid target states.
var validTransitions = map[ConnState][]ConnState{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateStreaming, StateClosed},
	StateStreaming:  {StateClosed},
	StateClosed:     {}, // Terminal, a new subscriber is required to reconnect
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s ConnState) CanTransitionTo(target ConnState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTransitions returns the list of valid target states from the current state.
func (s ConnState) ValidTransitions() []ConnState {
	return validTransitions[s]
}

// IsTerminal returns true if the state is a terminal state (no further transitions).
func (s ConnState) IsTerminal() bool {
	return s == StateClosed
}

// IsActive returns true while a connection is being opened or is open.
func (s ConnState) IsActive() bool {
	return s == StateConnecting || s == StateStreaming
}

// CanStart returns true if Start may be called in this state.
func (s ConnState) CanStart() bool {
	return s == StateIdle
}

// StateError represents an invalid state transition attempt, such as
// calling Start on a subscriber that already ran.
type StateError struct {
	From   ConnState
	To     ConnState
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewStateError creates a new StateError.
func NewStateError(from, to ConnState, reason string) *StateError {
	return &StateError{From: from, To: to, Reason: reason}
}
