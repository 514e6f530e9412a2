// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import "fmt"

// Method discriminates comm messages.
type Method string

const (
	// MethodUpdate carries changed field values. Model→view for local
	// mutations, view→model for view-writable fields.
	MethodUpdate Method = "update"

	// MethodCustom carries an event that is not a field change.
	// View→model only; Content holds {"event": ..., "message": ...}.
	MethodCustom Method = "custom"

	// MethodSnapshot carries the complete field set and its digest.
	// Model→view only, sent when a connection attaches.
	MethodSnapshot Method = "snapshot"

	// MethodHello opens a connection. View→model only; Digest holds
	// the digest of the last snapshot the view applied, if any.
	MethodHello Method = "hello"
)

// Message is a single comm protocol message. The same shape is encoded
// as JSON on websockets and as CBOR on streams. Protocol is set on
// snapshots and hellos only.
type Message struct {
	Method   Method         `json:"method" cbor:"method"`
	CommID   string         `json:"comm_id" cbor:"comm_id"`
	Sequence uint64         `json:"sequence,omitempty" cbor:"sequence,omitempty"`
	State    map[string]any `json:"state,omitempty" cbor:"state,omitempty"`
	Content  map[string]any `json:"content,omitempty" cbor:"content,omitempty"`
	Digest   string         `json:"digest,omitempty" cbor:"digest,omitempty"`
	Protocol string         `json:"protocol,omitempty" cbor:"protocol,omitempty"`
}

// Event returns the custom event name and its payload. ok is false for
// non-custom messages or custom messages without a string "event".
func (m Message) Event() (name string, payload any, ok bool) {
	if m.Method != MethodCustom || m.Content == nil {
		return "", nil, false
	}
	name, ok = m.Content["event"].(string)
	if !ok {
		return "", nil, false
	}
	return name, m.Content["message"], true
}

// NewEvent builds a custom event message as a view would send it.
func NewEvent(commID, event string, payload any) Message {
	return Message{
		Method: MethodCustom,
		CommID: commID,
		Content: map[string]any{
			"event":   event,
			"message": payload,
		},
	}
}

// Validate checks the fields every message must carry.
func (m Message) Validate() error {
	switch m.Method {
	case MethodUpdate, MethodCustom, MethodSnapshot, MethodHello:
	case "":
		return fmt.Errorf("comm: message has no method")
	default:
		return fmt.Errorf("comm: unknown method %q", m.Method)
	}
	if m.CommID == "" {
		return fmt.Errorf("comm: %s message has no comm_id", m.Method)
	}
	return nil
}

// Sink receives messages published by a [Store]. Send must not call
// back into the store that published the message.
type Sink interface {
	Send(message Message) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(message Message) error

// Send calls f(message).
func (f SinkFunc) Send(message Message) error { return f(message) }

// Discard is a sink that drops every message. Models constructed
// without a view use it.
var Discard Sink = SinkFunc(func(Message) error { return nil })
