// Package eventbus provides ordered, synchronous fan-out of stream events
// to registered handlers.
package eventbus

import (
	"fmt"

	"bux-stream/core/event"
)

// EventBus is the interface for the event bus.
type EventBus interface {
	// Subscribe appends a handler to the registry.
	// Handlers are invoked in registration order; duplicates are allowed.
	// Returns a subscription ID that can be used to unsubscribe.
	Subscribe(handler Handler) string

	// Unsubscribe removes a subscription by its ID. Unknown IDs are ignored.
	Unsubscribe(subscriptionID string)

	// Dispatch invokes every handler registered when the call begins, in order,
	// on the calling goroutine. Handler failures are returned as *DeliveryFault
	// values and never stop the remaining handlers.
	Dispatch(e event.StreamEvent) []error

	// Len returns the number of registered handlers.
	Len() int
}

// Handler handles one stream event. A returned error is reported as a
// delivery fault for that handler only.
type Handler func(e event.StreamEvent) error

// Func adapts a handler that cannot fail.
func Func(fn func(e event.StreamEvent)) Handler {
	return func(e event.StreamEvent) error {
		fn(e)
		return nil
	}
}

// DeliveryFault reports that one handler failed for one event.
type DeliveryFault struct {
	SubscriptionID string
	// Position is the handler's index within the dispatch snapshot.
	Position   int
	EventIndex uint64
	Panicked   bool
	Err        error
}

func (f *DeliveryFault) Error() string {
	kind := "failed"
	if f.Panicked {
		kind = "panicked"
	}
	return fmt.Sprintf("handler %s (position %d) %s on event %d: %v",
		f.SubscriptionID, f.Position, kind, f.EventIndex, f.Err)
}

func (f *DeliveryFault) Unwrap() error {
	return f.Err
}
