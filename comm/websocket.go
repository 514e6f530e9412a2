// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/mapview/lib/clock"
	"github.com/bureau-foundation/mapview/lib/netutil"
	"github.com/bureau-foundation/mapview/lib/version"
	"github.com/gorilla/websocket"
)

// helloTimeout bounds how long a fresh connection may take to send its
// hello. Browsers send it from the socket's open handler.
const helloTimeout = 10 * time.Second

// writeTimeout bounds a single frame write.
const writeTimeout = 10 * time.Second

// WebsocketConfig configures a [WebsocketHandler].
type WebsocketConfig struct {
	// Hub routes messages to models. Required.
	Hub *Hub

	// AllowedOrigins lists browser origins allowed to connect. Empty
	// allows every origin. Requests without an Origin header (non-browser
	// clients) are always allowed.
	AllowedOrigins []string

	// Keepalive is the ping interval. Defaults to 30 seconds.
	Keepalive time.Duration

	// SendBuffer is the per-connection queue length. Defaults to 256.
	SendBuffer int

	// Clock drives the keepalive ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// WebsocketHandler upgrades HTTP requests on /comm/{id} to websocket
// comm connections carrying JSON messages.
type WebsocketHandler struct {
	hub        *Hub
	upgrader   websocket.Upgrader
	keepalive  time.Duration
	sendBuffer int
	clock      clock.Clock
	logger     *slog.Logger
}

// NewWebsocketHandler creates a handler. Panics if config.Hub is nil.
func NewWebsocketHandler(config WebsocketConfig) *WebsocketHandler {
	if config.Hub == nil {
		panic("comm.WebsocketHandler: Hub is required")
	}
	handler := &WebsocketHandler{
		hub:        config.Hub,
		keepalive:  config.Keepalive,
		sendBuffer: config.SendBuffer,
		clock:      config.Clock,
		logger:     config.Logger,
	}
	if handler.keepalive <= 0 {
		handler.keepalive = 30 * time.Second
	}
	if handler.sendBuffer <= 0 {
		handler.sendBuffer = 256
	}
	if handler.clock == nil {
		handler.clock = clock.Real()
	}
	if handler.logger == nil {
		handler.logger = slog.Default()
	}
	allowed := slices.Clone(config.AllowedOrigins)
	handler.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			return slices.Contains(allowed, origin)
		},
	}
	return handler
}

// Register installs the handler on mux at GET /comm/{id}.
func (h *WebsocketHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /comm/{id}", h)
}

// ServeHTTP upgrades the request, waits for the view's hello, attaches
// the connection to the hub, and pumps messages until either side
// closes.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	commID := r.PathValue("id")
	if commID == "" || !h.hub.Has(commID) {
		http.Error(w, "unknown comm", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn("websocket upgrade failed", "comm_id", commID, "error", err)
		return
	}

	hello, err := readHello(conn, commID)
	if err != nil {
		h.logger.Warn("websocket hello failed", "comm_id", commID, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	client := &websocketConn{
		conn: conn,
		send: make(chan Message, h.sendBuffer),
		done: make(chan struct{}),
	}
	if err := h.hub.Attach(commID, client, hello.Digest); err != nil {
		h.logger.Warn("attaching websocket view failed", "comm_id", commID, "error", err)
		conn.Close()
		return
	}
	h.logger.Info("view connected",
		"comm_id", commID,
		"transport", "websocket",
		"remote", r.RemoteAddr,
		"resumed", hello.Digest != "",
	)

	go client.writePump(h.clock, h.keepalive, h.logger)
	h.readPump(client, commID)

	h.hub.Detach(commID, client)
	client.Close()
	h.logger.Info("view disconnected", "comm_id", commID, "transport", "websocket")
}

func readHello(conn *websocket.Conn, commID string) (Message, error) {
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		return Message{}, fmt.Errorf("reading hello: %w", err)
	}
	if hello.Method != MethodHello {
		return Message{}, fmt.Errorf("expected hello, got %q", hello.Method)
	}
	if hello.CommID != "" && hello.CommID != commID {
		return Message{}, fmt.Errorf("hello for comm %q on /comm/%s", hello.CommID, commID)
	}
	if !version.Compatible(hello.Protocol) {
		return Message{}, fmt.Errorf("view speaks protocol %q, this server speaks %q", hello.Protocol, version.Protocol)
	}
	return hello, nil
}

// readPump delivers view messages to the hub until the connection
// fails or is closed.
func (h *WebsocketHandler) readPump(client *websocketConn, commID string) {
	for {
		var message Message
		if err := client.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!netutil.IsExpectedCloseError(err) {
				h.logger.Warn("websocket read failed", "comm_id", commID, "error", err)
			}
			return
		}
		if message.CommID == "" {
			message.CommID = commID
		}
		if message.CommID != commID {
			h.logger.Warn("ignoring message for another comm",
				"comm_id", commID,
				"message_comm_id", message.CommID,
			)
			continue
		}
		if err := h.hub.Deliver(message); err != nil {
			h.logger.Warn("view message rejected",
				"comm_id", commID,
				"method", message.Method,
				"error", err,
			)
		}
	}
}

// websocketConn is the hub-facing side of one websocket. Enqueue never
// blocks; the write pump owns the socket's write half.
type websocketConn struct {
	conn *websocket.Conn
	send chan Message

	done      chan struct{}
	closeOnce sync.Once
}

func (c *websocketConn) Enqueue(message Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *websocketConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump drains the send queue and pings on every keepalive tick.
// It closes the socket on exit, which unblocks the read pump.
func (c *websocketConn) writePump(clk clock.Clock, keepalive time.Duration, logger *slog.Logger) {
	ticker := clk.NewTicker(keepalive)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(message); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) && !netutil.IsExpectedCloseError(err) {
					logger.Warn("websocket write failed", "comm_id", message.CommID, "error", err)
				}
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		}
	}
}
