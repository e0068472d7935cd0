package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"bux-stream/core/event"
)

// subscription represents a single event subscription.
type subscription struct {
	id      string
	handler Handler
}

// orderedEventBus is a slice-backed implementation of EventBus.
// The subscription slice is copy-on-write: Dispatch reads a snapshot
// without holding the lock while handlers run.
type orderedEventBus struct {
	subscriptions []subscription
	mu            sync.RWMutex
	nextID        atomic.Uint64
}

// New creates a new EventBus.
func New() EventBus {
	return &orderedEventBus{}
}

// Subscribe appends a handler to the registry.
func (b *orderedEventBus) Subscribe(handler Handler) string {
	id := b.generateID()

	b.mu.Lock()
	next := make([]subscription, len(b.subscriptions), len(b.subscriptions)+1)
	copy(next, b.subscriptions)
	b.subscriptions = append(next, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription by its ID.
func (b *orderedEventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscriptions {
		if sub.id != subscriptionID {
			continue
		}
		next := make([]subscription, 0, len(b.subscriptions)-1)
		next = append(next, b.subscriptions[:i]...)
		b.subscriptions = append(next, b.subscriptions[i+1:]...)
		return
	}
}

// Len returns the number of registered handlers.
func (b *orderedEventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Dispatch delivers an event to all handlers in registration order.
func (b *orderedEventBus) Dispatch(e event.StreamEvent) []error {
	b.mu.RLock()
	subs := b.subscriptions
	b.mu.RUnlock()

	var faults []error
	for i, sub := range subs {
		if fault := deliver(i, sub, e); fault != nil {
			faults = append(faults, fault)
		}
	}
	return faults
}

// deliver calls one handler, converting a returned error or a panic into a DeliveryFault.
func deliver(position int, sub subscription, e event.StreamEvent) (fault *DeliveryFault) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			fault = &DeliveryFault{
				SubscriptionID: sub.id,
				Position:       position,
				EventIndex:     e.Index(),
				Panicked:       true,
				Err:            err,
			}
		}
	}()

	if sub.handler == nil {
		return nil
	}
	if err := sub.handler(e); err != nil {
		return &DeliveryFault{
			SubscriptionID: sub.id,
			Position:       position,
			EventIndex:     e.Index(),
			Err:            err,
		}
	}
	return nil
}

func (b *orderedEventBus) generateID() string {
	return fmt.Sprintf("sub-%d", b.nextID.Add(1))
}
