// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"reflect"
	"sync"

	"github.com/luxfi/log"
)

// Listener receives the arguments passed to Emit.
type Listener func(args ...any)

type registration struct {
	id   uint64
	fn   Listener
	ptr  uintptr
	once bool
}

// Emitter is a named-event dispatcher. Listeners for an event are invoked in
// registration order against a snapshot of the listener list taken at Emit
// time, so listeners added or removed during delivery do not affect the
// in-flight emission. A panicking listener is recovered and logged without
// suppressing delivery to the remaining listeners.
type Emitter struct {
	log log.Logger

	mu        sync.Mutex
	seq       uint64
	listeners map[string][]registration
}

// NewEmitter returns an Emitter that logs listener panics to logger.
func NewEmitter(logger log.Logger) *Emitter {
	return &Emitter{
		log:       logger,
		listeners: make(map[string][]registration),
	}
}

// On registers listener for event. The returned function removes exactly
// this registration, which Off cannot always do: distinct closures built
// from the same function literal share a code pointer.
func (e *Emitter) On(event string, listener Listener) (off func()) {
	return e.add(event, listener, false)
}

// Once registers listener for event and removes it after its first delivery.
// The returned function removes the registration before that.
func (e *Emitter) Once(event string, listener Listener) (off func()) {
	return e.add(event, listener, true)
}

func (e *Emitter) add(event string, listener Listener, once bool) func() {
	if listener == nil {
		return func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	id := e.seq
	e.listeners[event] = append(e.listeners[event], registration{
		id:   id,
		fn:   listener,
		ptr:  reflect.ValueOf(listener).Pointer(),
		once: once,
	})
	return func() { e.remove(event, id) }
}

func (e *Emitter) remove(event string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.listeners[event]
	for i, reg := range regs {
		if reg.id == id {
			e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Off removes the first registration for event whose function value matches
// listener. Identity is the code pointer: closures created from the same
// function literal are indistinguishable here, so to remove one of several
// such registrations use the unsubscribe function returned by On.
func (e *Emitter) Off(event string, listener Listener) {
	if listener == nil {
		return
	}
	ptr := reflect.ValueOf(listener).Pointer()

	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.listeners[event]
	for i, reg := range regs {
		if reg.ptr == ptr {
			e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners drops every listener for the named events, or every
// listener on the Emitter when no event is given.
func (e *Emitter) RemoveAllListeners(events ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(events) == 0 {
		e.listeners = make(map[string][]registration)
		return
	}
	for _, event := range events {
		delete(e.listeners, event)
	}
}

// Emit delivers args to every listener currently registered for event and
// reports whether any listener existed.
func (e *Emitter) Emit(event string, args ...any) bool {
	e.mu.Lock()
	regs := e.listeners[event]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)

	// Drop once-listeners before delivery so a re-emit from inside a
	// listener cannot deliver to them twice.
	if len(regs) > 0 {
		kept := regs[:0]
		for _, reg := range regs {
			if !reg.once {
				kept = append(kept, reg)
			}
		}
		e.listeners[event] = kept
	}
	e.mu.Unlock()

	for _, reg := range snapshot {
		e.deliver(event, reg, args)
	}
	return len(snapshot) > 0
}

func (e *Emitter) deliver(event string, reg registration, args []any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("event listener panicked",
				log.String("event", event),
				log.Any("panic", r),
			)
		}
	}()
	reg.fn(args...)
}
