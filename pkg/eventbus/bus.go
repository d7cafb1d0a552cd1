// Package eventbus provides the in-process event channel Lyra components
// communicate over: a typed-by-name publish/subscribe registry with
// synchronous, registration-ordered dispatch. A Bus is an explicit
// collaborator passed to whoever needs one; there is no package-level
// default.
package eventbus

import (
	"log/slog"
	"sync"
)

// Bus maps event names to ordered subscriber lists.
// The zero value is not usable; call New.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]*Subscription
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report recovered handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string][]*Subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription identifies one registration on the bus. Cancelling it
// removes exactly that registration; other subscribers to the same event
// are unaffected.
type Subscription struct {
	bus   *Bus
	event string
	fn    func(payload any)
}

// Subscribe registers fn for event and returns its cancellation handle.
// The same function value may be registered any number of times; each
// registration is invoked independently.
func (b *Bus) Subscribe(event string, fn func(payload any)) *Subscription {
	s := &Subscription{bus: b, event: event, fn: fn}
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], s)
	b.mu.Unlock()
	return s
}

// Cancel removes the registration. Idempotent; cancelling during a
// publish does not affect deliveries already in flight.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.event]
	for i, cur := range list {
		if cur == s {
			b.subs[s.event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[s.event]) == 0 {
		delete(b.subs, s.event)
	}
}

// Publish invokes every subscriber registered for event at the moment of
// the call, synchronously and in registration order. Publishing with no
// subscribers is a no-op. A panicking subscriber is recovered and logged;
// the remaining subscribers still run and the publisher never observes
// the panic.
func (b *Bus) Publish(event string, payload any) {
	b.mu.Lock()
	list := b.subs[event]
	snapshot := make([]*Subscription, len(list))
	copy(snapshot, list)
	b.mu.Unlock()

	for _, s := range snapshot {
		b.invoke(s, payload)
	}
}

func (b *Bus) invoke(s *Subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "event", s.event, "panic", r)
		}
	}()
	s.fn(payload)
}
