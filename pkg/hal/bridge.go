package hal

import (
	"sync/atomic"
)

// Dispatcher serializes work onto the platform's main thread.
type Dispatcher interface {
	Dispatch(fn func()) Status
}

// Bridge holds the single registered handler of one capability and delivers
// backend events to it through a Dispatcher.
//
// The handler is resolved when the event is delivered, not when it is raised,
// so a handler replaced by a later Register never sees further events.
type Bridge[H any] struct {
	dispatcher Dispatcher
	slot       atomic.Pointer[handlerSlot[H]]
}

type handlerSlot[H any] struct {
	handler H
}

// NewBridge creates a Bridge delivering through d.
func NewBridge[H any](d Dispatcher) *Bridge[H] {
	return &Bridge[H]{dispatcher: d}
}

// Register replaces the current handler. A nil handler clears the slot.
func (b *Bridge[H]) Register(h H) {
	if any(h) == nil {
		b.slot.Store(nil)
		return
	}
	b.slot.Store(&handlerSlot[H]{handler: h})
}

// Registered reports whether a handler is currently installed.
func (b *Bridge[H]) Registered() bool {
	return b.slot.Load() != nil
}

// Emit delivers an event to the current handler on the main thread.
// Events raised while no handler is registered are dropped.
func (b *Bridge[H]) Emit(deliver func(H)) Status {
	if b.slot.Load() == nil {
		return StatusOK
	}
	return b.dispatcher.Dispatch(func() {
		s := b.slot.Load()
		if s == nil {
			return
		}
		deliver(s.handler)
	})
}
