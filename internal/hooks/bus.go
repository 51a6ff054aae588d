// Package hooks implements the typed Observer bus used to replace the
// dynamic hooks / event emitters the source relied on (§9 Design Notes).
// Components publish a single well-known Event type to a Bus; callers wire
// concrete Subscriber implementations at construction instead of a
// reflection-based or string-keyed emitter. Observer errors are isolated
// per the spec's requirement that hook failures never affect the underlying
// state transition (§4.4 Notification; §7 Propagation policy).
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus publishes control-plane events to registered subscribers in a
	// fan-out pattern. It is safe for concurrent Publish, Register, and
	// Close.
	Bus interface {
		// Publish delivers the event to every currently registered
		// subscriber; the order of delivery across subscribers is not
		// defined. Unlike a critical-path event bus, Publish never returns a
		// subscriber error to the caller: observer failures are passed to
		// the bus's OnObserverError callback (if one was supplied) and
		// otherwise swallowed, because state
		// transitions (breaker flips, plugin quarantines, step completions)
		// must never be undone by a failing observer.
		Publish(ctx context.Context, event Event)

		// Register adds a subscriber and returns a Subscription that can be
		// closed to unregister. Returns an error if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published events.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a plain function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration. Close is idempotent
	// and safe to call multiple times.
	Subscription interface {
		Close() error
	}

	// OnObserverError is invoked, if non-nil, whenever a Subscriber returns
	// an error from HandleEvent. It is itself never allowed to panic the
	// bus: panics from this callback are recovered and discarded.
	OnObserverError func(ctx context.Context, event Event, err error)

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
		onError     OnObserverError
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent implements Subscriber for SubscriberFunc.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// NewBus constructs an in-memory event bus. onError, if non-nil, is called
// whenever a subscriber's HandleEvent returns an error; it never blocks
// delivery to the remaining subscribers.
func NewBus(onError OnObserverError) Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber), onError: onError}
}

// Publish delivers event to every currently registered subscriber. A
// snapshot of subscribers is taken before iteration, so registrations or
// unregistrations during Publish do not affect the current delivery.
// Subscriber errors are reported via onError and do not stop delivery to
// other subscribers, and never propagate to the publisher.
func (b *bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		func() {
			defer func() { recover() }() //nolint:errcheck // an observer panic must not affect the publisher
			if err := sub.HandleEvent(ctx, event); err != nil && b.onError != nil {
				b.onError(ctx, event, err)
			}
		}()
	}
}

// Register adds sub to the bus. Returns an error if sub is nil.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscription from the bus. Idempotent.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
