// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/mapview/lib/testutil"
)

// storeEndpoint is a minimal model: it applies view updates to its
// store and records everything it receives.
type storeEndpoint struct {
	*Store

	mu       sync.Mutex
	received []Message
}

func (e *storeEndpoint) HandleMessage(message Message) error {
	if message.Method == MethodUpdate {
		e.Apply(message.State)
	}
	e.mu.Lock()
	e.received = append(e.received, message)
	e.mu.Unlock()
	return nil
}

func (e *storeEndpoint) Received() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Message(nil), e.received...)
}

// fakeConn is a Conn with a fixed-size queue.
type fakeConn struct {
	queue  chan Message
	closed bool
}

func newFakeConn(size int) *fakeConn {
	return &fakeConn{queue: make(chan Message, size)}
}

func (c *fakeConn) Enqueue(message Message) bool {
	if c.closed {
		return false
	}
	select {
	case c.queue <- message:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) drain() []Message {
	var messages []Message
	for {
		select {
		case message := <-c.queue:
			messages = append(messages, message)
		default:
			return messages
		}
	}
}

func newHubWithEndpoint(t *testing.T) (*Hub, *storeEndpoint) {
	t.Helper()
	hub := NewHub(nil)
	endpoint := &storeEndpoint{
		Store: NewStore("map-1", hub.Sink(), map[string]any{"zoom": 2, "mode": "navigate"}, "mode"),
	}
	hub.Register("map-1", endpoint)
	return hub, endpoint
}

func TestHubAttachSendsSnapshotThenUpdates(t *testing.T) {
	hub, endpoint := newHubWithEndpoint(t)
	conn := newFakeConn(16)

	if err := hub.Attach("map-1", conn, ""); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := endpoint.Emit("mode", "point"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := endpoint.Emit("mode", "point"); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	messages := conn.drain()
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want snapshot plus 2 updates", len(messages))
	}
	if messages[0].Method != MethodSnapshot || messages[0].State["zoom"] != 2 {
		t.Errorf("first message = %+v, want snapshot", messages[0])
	}
	if messages[1].Sequence != 1 || messages[2].Sequence != 2 {
		t.Errorf("update sequences = %d, %d", messages[1].Sequence, messages[2].Sequence)
	}
	if hub.Connections("map-1") != 1 {
		t.Errorf("Connections = %d, want 1", hub.Connections("map-1"))
	}
}

func TestHubAttachSkipsSnapshotWhenDigestMatches(t *testing.T) {
	hub, endpoint := newHubWithEndpoint(t)
	snapshot, err := endpoint.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	conn := newFakeConn(16)
	if err := hub.Attach("map-1", conn, snapshot.Digest); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if messages := conn.drain(); len(messages) != 0 {
		t.Errorf("resumed view received %d messages, want none", len(messages))
	}

	stale := newFakeConn(16)
	endpoint.Set("zoom", 5)
	endpoint.Commit()
	if err := hub.Attach("map-1", stale, snapshot.Digest); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	messages := stale.drain()
	if len(messages) != 1 || messages[0].Method != MethodSnapshot {
		t.Errorf("stale view received %v, want one snapshot", messages)
	}
}

func TestHubDropsSlowConnection(t *testing.T) {
	hub, endpoint := newHubWithEndpoint(t)
	slow := newFakeConn(1)
	fast := newFakeConn(16)

	if err := hub.Attach("map-1", slow, ""); err != nil {
		t.Fatalf("Attach slow: %v", err)
	}
	if err := hub.Attach("map-1", fast, ""); err != nil {
		t.Fatalf("Attach fast: %v", err)
	}

	// The slow queue is already full with its snapshot.
	if err := endpoint.Emit("mode", "###remove_layers"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !slow.closed {
		t.Error("slow connection was not closed")
	}
	if hub.Connections("map-1") != 1 {
		t.Errorf("Connections = %d, want 1", hub.Connections("map-1"))
	}
	if messages := fast.drain(); len(messages) != 2 {
		t.Errorf("fast connection got %d messages, want 2", len(messages))
	}

	// The dropped view keeps only what it had queued; later updates are
	// neither coalesced into its queue nor routed to it at all.
	queued := testutil.RequireReceive(t, slow.queue, time.Second, "reading queued snapshot")
	if queued.Method != MethodSnapshot {
		t.Errorf("slow queue held %+v, want its snapshot", queued)
	}
	slow.closed = false
	if err := endpoint.Emit("mode", "point"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	testutil.RequireNoReceive(t, slow.queue, 20*time.Millisecond, "update routed to a dropped connection")
}

func TestHubDeliver(t *testing.T) {
	hub, endpoint := newHubWithEndpoint(t)

	if err := hub.Deliver(NewEvent("map-1", "mouseclick", nil)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if received := endpoint.Received(); len(received) != 1 || received[0].Method != MethodCustom {
		t.Errorf("endpoint received %v", received)
	}

	err := hub.Deliver(Message{Method: MethodCustom, CommID: "map-2"})
	if !errors.Is(err, ErrUnknownComm) {
		t.Errorf("Deliver to unknown comm: %v, want ErrUnknownComm", err)
	}
	if err := hub.Deliver(Message{Method: MethodHello, CommID: "map-1"}); err == nil {
		t.Error("hello delivered to model")
	}
}

func TestHubUnregisterClosesConnections(t *testing.T) {
	hub, _ := newHubWithEndpoint(t)
	conn := newFakeConn(4)
	if err := hub.Attach("map-1", conn, ""); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	hub.Unregister("map-1")
	if !conn.closed {
		t.Error("connection not closed on Unregister")
	}
	if hub.Has("map-1") {
		t.Error("comm still registered")
	}
	if err := hub.Send(Message{Method: MethodUpdate, CommID: "map-1"}); !errors.Is(err, ErrUnknownComm) {
		t.Errorf("Send after Unregister: %v", err)
	}
	if err := hub.Attach("map-1", newFakeConn(1), ""); !errors.Is(err, ErrUnknownComm) {
		t.Errorf("Attach after Unregister: %v", err)
	}
}
