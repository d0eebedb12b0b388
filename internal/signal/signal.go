// Package signal implements the named-callback table jobs use to publish
// lifecycle events (output, errors, finished) to other jobs.
//
// Signals must be registered before callbacks can be attached, so a typo in a
// signal name fails at wiring time instead of silently never firing.
package signal

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSignal is returned when a callback is attached to, or an event is
// emitted on, a signal that was never registered.
var ErrUnknownSignal = errors.New("unknown signal")

// ErrDuplicateSignal is returned when a signal name is registered twice.
var ErrDuplicateSignal = errors.New("signal already registered")

// Name identifies a signal.
type Name string

// Callback receives the arguments passed to Emit.
type Callback func(args ...any)

// Emitter maps signal names to ordered callback lists.
//
// Callbacks run synchronously in the goroutine calling Emit, in registration
// order. Emit snapshots the callback list before invoking it, so a callback
// may register further callbacks without deadlocking; those only see later
// emissions.
type Emitter struct {
	mu        sync.RWMutex
	callbacks map[Name][]Callback
	order     []Name
}

// NewEmitter returns an emitter with the given signals registered.
func NewEmitter(names ...Name) *Emitter {
	e := &Emitter{callbacks: make(map[Name][]Callback, len(names))}
	for _, name := range names {
		_ = e.Register(name)
	}
	return e
}

// Register adds a new signal.
func (e *Emitter) Register(name Name) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.callbacks == nil {
		e.callbacks = make(map[Name][]Callback)
	}
	if _, ok := e.callbacks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSignal, name)
	}
	e.callbacks[name] = nil
	e.order = append(e.order, name)
	return nil
}

// Names returns the registered signals in registration order.
func (e *Emitter) Names() []Name {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Name(nil), e.order...)
}

// On appends fn to the callbacks of name.
func (e *Emitter) On(name Name, fn Callback) error {
	if fn == nil {
		return fmt.Errorf("signal %s: nil callback", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cbs, ok := e.callbacks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	e.callbacks[name] = append(cbs, fn)
	return nil
}

// Emit calls every callback registered for name with args.
func (e *Emitter) Emit(name Name, args ...any) error {
	e.mu.RLock()
	cbs, ok := e.callbacks[name]
	snapshot := append([]Callback(nil), cbs...)
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	for _, cb := range snapshot {
		cb(args...)
	}
	return nil
}
