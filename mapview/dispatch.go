// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// CallbackFunc handles a view event. payload is the event's raw
// "message" value as the view sent it.
type CallbackFunc func(m *Map, payload any) error

// Callback is a registered event handler. Callbacks are compared by
// pointer: registering the same *Callback twice has no effect, and two
// Callbacks wrapping the same function are distinct.
type Callback struct {
	name string
	fn   CallbackFunc
}

// NewCallback wraps fn. name appears in log output.
func NewCallback(name string, fn CallbackFunc) *Callback {
	if fn == nil {
		panic("mapview: NewCallback called with a nil function")
	}
	return &Callback{name: name, fn: fn}
}

// Name returns the name given to NewCallback.
func (c *Callback) Name() string { return c.name }

// Dispatcher invokes callbacks in registration order.
type Dispatcher struct {
	event  string
	logger *slog.Logger

	mu        sync.Mutex
	callbacks []*Callback
}

// NewDispatcher creates an empty dispatcher for the named event.
func NewDispatcher(event string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{event: event, logger: logger.With("event", event)}
}

// Register appends callback. It returns false if callback is nil, has no
// function, or is already registered.
func (d *Dispatcher) Register(callback *Callback) bool {
	if callback == nil || callback.fn == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.Contains(d.callbacks, callback) {
		return false
	}
	d.callbacks = append(d.callbacks, callback)
	return true
}

// Remove unregisters callback. It returns false if callback was not
// registered.
func (d *Dispatcher) Remove(callback *Callback) bool {
	if callback == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	index := slices.Index(d.callbacks, callback)
	if index < 0 {
		return false
	}
	d.callbacks = slices.Delete(d.callbacks, index, index+1)
	return true
}

// Len returns the number of registered callbacks.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.callbacks)
}

// Clear removes every callback.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = nil
}

// Dispatch calls every callback registered when Dispatch starts, in
// order. A callback that fails or panics is logged and the rest still
// run. Callbacks may register or remove callbacks; the change applies
// from the next Dispatch. Dispatch returns the number of callbacks that
// completed without error.
func (d *Dispatcher) Dispatch(m *Map, payload any) int {
	d.mu.Lock()
	callbacks := slices.Clone(d.callbacks)
	d.mu.Unlock()

	succeeded := 0
	for _, callback := range callbacks {
		if err := d.invoke(callback, m, payload); err != nil {
			d.logger.Error("event callback failed",
				"callback", callback.name,
				"error", err,
			)
			continue
		}
		succeeded++
	}
	return succeeded
}

func (d *Dispatcher) invoke(callback *Callback, m *Map, payload any) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return callback.fn(m, payload)
}
