// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrUnknownComm is returned when a message or connection names a comm
// ID with no registered endpoint.
var ErrUnknownComm = errors.New("comm: unknown comm id")

// Endpoint is the model side of a comm: it can describe its full state
// and accepts messages from views.
type Endpoint interface {
	Snapshot() (Message, error)
	HandleMessage(message Message) error
}

// Conn is an attached view connection. Enqueue must not block: it
// returns false when the connection's send buffer is full or the
// connection is closed.
type Conn interface {
	Enqueue(message Message) bool
	Close() error
}

// Hub routes model updates to every connection attached to the same
// comm, and view messages back to the model. Messages for one comm
// reach each connection in the order they were sent. A connection that
// cannot keep up is closed rather than allowed to skip or merge
// updates; it recovers by reconnecting and receiving a snapshot.
type Hub struct {
	logger *slog.Logger

	mu        sync.Mutex
	endpoints map[string]*hubEndpoint
}

type hubEndpoint struct {
	endpoint Endpoint
	peers    []*hubPeer
}

// hubPeer is one attached connection. Until live, updates are held in
// backlog so the snapshot taken during Attach cannot miss an update
// committed while it was being built.
type hubPeer struct {
	conn    Conn
	live    bool
	backlog []Message
}

// NewHub creates an empty hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger,
		endpoints: make(map[string]*hubEndpoint),
	}
}

// Register makes endpoint reachable under commID. Registering an ID
// twice replaces the endpoint and keeps attached connections.
func (h *Hub) Register(commID string, endpoint Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.endpoints[commID]; ok {
		existing.endpoint = endpoint
		return
	}
	h.endpoints[commID] = &hubEndpoint{endpoint: endpoint}
}

// Unregister removes commID and closes its connections.
func (h *Hub) Unregister(commID string) {
	h.mu.Lock()
	entry, ok := h.endpoints[commID]
	delete(h.endpoints, commID)
	h.mu.Unlock()
	if !ok {
		return
	}
	for _, peer := range entry.peers {
		peer.conn.Close()
	}
}

// Has reports whether commID is registered.
func (h *Hub) Has(commID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.endpoints[commID]
	return ok
}

// CommIDs returns the registered comm IDs, sorted.
func (h *Hub) CommIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.endpoints))
	for id := range h.endpoints {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Sink returns a [Sink] that publishes to the connections of commID.
// Models are constructed with it before their comm ID is registered.
func (h *Hub) Sink() Sink {
	return SinkFunc(h.Send)
}

// Send delivers a model message to every connection attached to its
// comm. Connections whose buffers are full are closed and detached.
// Sending to a comm with no connections is not an error; sending to an
// unregistered comm is.
func (h *Hub) Send(message Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.endpoints[message.CommID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComm, message.CommID)
	}
	entry.peers = slices.DeleteFunc(entry.peers, func(peer *hubPeer) bool {
		if !peer.live {
			peer.backlog = append(peer.backlog, message)
			return false
		}
		if peer.conn.Enqueue(message) {
			return false
		}
		h.logger.Warn("dropping slow view connection",
			"comm_id", message.CommID,
			"sequence", message.Sequence,
		)
		peer.conn.Close()
		return true
	})
	return nil
}

// Attach connects conn to commID. The connection first receives a
// snapshot of the model's state, unless helloDigest equals the current
// snapshot digest, and then every update published after the snapshot.
func (h *Hub) Attach(commID string, conn Conn, helloDigest string) error {
	h.mu.Lock()
	entry, ok := h.endpoints[commID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComm, commID)
	}
	peer := &hubPeer{conn: conn}
	entry.peers = append(entry.peers, peer)
	endpoint := entry.endpoint
	h.mu.Unlock()

	// Snapshot takes the model's lock, and the model holds that lock
	// while calling Send, so it must run outside h.mu.
	snapshot, err := endpoint.Snapshot()
	if err != nil {
		h.Detach(commID, conn)
		return fmt.Errorf("comm: snapshot for %s: %w", commID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if helloDigest == "" || helloDigest != snapshot.Digest {
		if !conn.Enqueue(snapshot) {
			h.removePeerLocked(commID, peer)
			return fmt.Errorf("comm: connection for %s rejected its snapshot", commID)
		}
	} else {
		h.logger.Debug("view state current, skipping snapshot",
			"comm_id", commID,
			"sequence", snapshot.Sequence,
		)
	}
	for _, message := range peer.backlog {
		if message.Sequence <= snapshot.Sequence {
			continue
		}
		if !conn.Enqueue(message) {
			h.removePeerLocked(commID, peer)
			return fmt.Errorf("comm: connection for %s overflowed during attach", commID)
		}
	}
	peer.backlog = nil
	peer.live = true
	return nil
}

// Detach removes conn from commID without closing it.
func (h *Hub) Detach(commID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.endpoints[commID]
	if !ok {
		return
	}
	entry.peers = slices.DeleteFunc(entry.peers, func(peer *hubPeer) bool {
		return peer.conn == conn
	})
}

func (h *Hub) removePeerLocked(commID string, target *hubPeer) {
	if entry, ok := h.endpoints[commID]; ok {
		entry.peers = slices.DeleteFunc(entry.peers, func(peer *hubPeer) bool {
			return peer == target
		})
	}
}

// Connections returns the number of live connections on commID.
func (h *Hub) Connections(commID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.endpoints[commID]
	if !ok {
		return 0
	}
	count := 0
	for _, peer := range entry.peers {
		if peer.live {
			count++
		}
	}
	return count
}

// Deliver routes a view message to the model registered under its comm
// ID. Hello and snapshot messages are connection-level and never reach
// the model.
func (h *Hub) Deliver(message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	if message.Method == MethodHello || message.Method == MethodSnapshot {
		return fmt.Errorf("comm: %s is not deliverable to a model", message.Method)
	}
	h.mu.Lock()
	entry, ok := h.endpoints[message.CommID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComm, message.CommID)
	}
	return entry.endpoint.HandleMessage(message)
}
