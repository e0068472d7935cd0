// Package event defines the values delivered to stream subscribers.
// Events are created by the receive loop and are read-only afterwards.
package event

import "time"

// Event is the base interface for all events.
type Event interface {
	// EventName returns the name of the event for logging/debugging
	EventName() string
}

// ConnectionEvent is an event that originates from a specific streaming connection.
type ConnectionEvent interface {
	Event
	// ConnectionID returns the source connection ID
	ConnectionID() string
}

// StreamEvent wraps one inbound frame together with its arrival order.
// The zero value is not useful; construct with NewStreamEvent.
type StreamEvent struct {
	index        uint64
	payload      string
	action       string
	connectionID string
	receivedAt   time.Time
}

// NewStreamEvent creates a StreamEvent. The payload is kept verbatim.
func NewStreamEvent(connectionID, action string, index uint64, payload string, receivedAt time.Time) StreamEvent {
	return StreamEvent{
		index:        index,
		payload:      payload,
		action:       action,
		connectionID: connectionID,
		receivedAt:   receivedAt,
	}
}

func (e StreamEvent) EventName() string {
	return "StreamEvent"
}

func (e StreamEvent) ConnectionID() string {
	return e.connectionID
}

// Index is the 1-based arrival position of the frame on its connection.
func (e StreamEvent) Index() uint64 {
	return e.index
}

// Payload returns the raw frame text. It may be empty or malformed.
func (e StreamEvent) Payload() string {
	return e.payload
}

// Action returns the subscription action of the connection that received the frame.
func (e StreamEvent) Action() string {
	return e.action
}

// ReceivedAt returns the arrival timestamp.
func (e StreamEvent) ReceivedAt() time.Time {
	return e.receivedAt
}

// IsEmpty reports whether the frame carried no payload.
func (e StreamEvent) IsEmpty() bool {
	return e.payload == ""
}

var (
	_ Event           = StreamEvent{}
	_ ConnectionEvent = StreamEvent{}
)
