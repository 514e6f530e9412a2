// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import "sync"

// Recorder is a [Sink] that keeps every message in memory. Tests use it
// in place of a view.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	notify   chan Message
}

// NewRecorder creates an empty recorder. If buffer is positive, every
// recorded message is also offered on [Recorder.C] without blocking.
func NewRecorder(buffer int) *Recorder {
	recorder := &Recorder{}
	if buffer > 0 {
		recorder.notify = make(chan Message, buffer)
	}
	return recorder
}

// Send records message.
func (r *Recorder) Send(message Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
	if r.notify != nil {
		select {
		case r.notify <- message:
		default:
		}
	}
	return nil
}

// C yields recorded messages when the recorder was created with a
// buffer. It is nil otherwise.
func (r *Recorder) C() <-chan Message { return r.notify }

// Messages returns a copy of every recorded message in order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Values returns, in order, every value published for field name.
func (r *Recorder) Values(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var values []any
	for _, message := range r.messages {
		if value, ok := message.State[name]; ok {
			values = append(values, value)
		}
	}
	return values
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Reset forgets every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
