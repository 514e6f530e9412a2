// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/mapview/lib/clock"
	"github.com/bureau-foundation/mapview/lib/codec"
	"github.com/bureau-foundation/mapview/lib/netutil"
	"github.com/bureau-foundation/mapview/lib/version"
)

// StreamConfig configures a [StreamServer].
type StreamConfig struct {
	// Hub routes messages to models. Required.
	Hub *Hub

	// SocketPath is the unix socket to listen on. Required.
	SocketPath string

	// Compression applies to outbound frames at or above Threshold
	// bytes.
	Compression Compression
	Threshold   int

	// Keepalive is the ping frame interval. Defaults to 30 seconds.
	Keepalive time.Duration

	// SendBuffer is the per-connection queue length. Defaults to 256.
	SendBuffer int

	// Clock drives the keepalive ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// StreamServer accepts native views on a unix socket. Each connection
// opens with a hello frame naming its comm, then carries CBOR message
// frames in both directions.
type StreamServer struct {
	config StreamConfig
	ready  chan struct{}

	activeConnections sync.WaitGroup
}

// NewStreamServer creates a server. Panics if Hub or SocketPath is
// missing.
func NewStreamServer(config StreamConfig) *StreamServer {
	if config.Hub == nil {
		panic("comm.StreamServer: Hub is required")
	}
	if config.SocketPath == "" {
		panic("comm.StreamServer: SocketPath is required")
	}
	if config.Keepalive <= 0 {
		config.Keepalive = 30 * time.Second
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &StreamServer{config: config, ready: make(chan struct{})}
}

// Ready is closed once the socket is bound.
func (s *StreamServer) Ready() <-chan struct{} { return s.ready }

// Serve listens on the socket until ctx is cancelled, then closes every
// connection and waits for them to finish. Any stale socket file is
// removed first, and the socket file is removed on return.
func (s *StreamServer) Serve(ctx context.Context) error {
	socketPath := s.config.SocketPath
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()
	close(s.ready)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.config.Logger.Info("stream server listening",
		"path", socketPath,
		"compression", s.config.Compression.String(),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.config.Logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *StreamServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := s.config.Logger
	reader := bufio.NewReader(conn)

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	hello, err := readStreamMessage(reader)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		logger.Warn("stream hello failed", "error", err)
		return
	}
	if hello.Method != MethodHello || hello.CommID == "" {
		logger.Warn("stream connection did not open with hello",
			"method", hello.Method,
			"comm_id", hello.CommID,
		)
		return
	}
	commID := hello.CommID
	if !version.Compatible(hello.Protocol) {
		logger.Warn("stream view speaks another protocol",
			"comm_id", commID,
			"view_protocol", hello.Protocol,
			"protocol", version.Protocol,
		)
		return
	}

	client := &streamConn{
		conn: conn,
		send: make(chan Message, s.config.SendBuffer),
		done: make(chan struct{}),
	}
	if err := s.config.Hub.Attach(commID, client, hello.Digest); err != nil {
		logger.Warn("attaching stream view failed", "comm_id", commID, "error", err)
		return
	}
	logger.Info("view connected",
		"comm_id", commID,
		"transport", "stream",
		"resumed", hello.Digest != "",
	)

	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-client.done:
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writePump(s.config, logger)
	}()

	for {
		message, err := readStreamMessage(reader)
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				logger.Warn("stream read failed", "comm_id", commID, "error", err)
			}
			break
		}
		if message.CommID == "" {
			message.CommID = commID
		}
		if message.CommID != commID {
			logger.Warn("ignoring message for another comm",
				"comm_id", commID,
				"message_comm_id", message.CommID,
			)
			continue
		}
		if err := s.config.Hub.Deliver(message); err != nil {
			logger.Warn("view message rejected",
				"comm_id", commID,
				"method", message.Method,
				"error", err,
			)
		}
	}

	s.config.Hub.Detach(commID, client)
	client.Close()
	<-writerDone
	logger.Info("view disconnected", "comm_id", commID, "transport", "stream")
}

// readStreamMessage reads frames until one carries a message, skipping
// pings.
func readStreamMessage(reader *bufio.Reader) (Message, error) {
	for {
		frame, err := ReadFrame(reader)
		if err != nil {
			return Message{}, err
		}
		if frame.Type == FramePing {
			continue
		}
		return DecodeMessageFrame(frame)
	}
}

type streamConn struct {
	conn net.Conn
	send chan Message

	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamConn) Enqueue(message Message) bool {
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

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *streamConn) writePump(config StreamConfig, logger *slog.Logger) {
	ticker := config.Clock.NewTicker(config.Keepalive)
	defer func() {
		ticker.Stop()
		// Closing the socket unblocks the read loop.
		c.conn.Close()
	}()

	writer := bufio.NewWriter(c.conn)
	for {
		select {
		case message := <-c.send:
			if err := WriteMessageFrame(writer, message, config.Compression, config.Threshold); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					logger.Warn("stream write failed", "comm_id", message.CommID, "error", err)
				}
				c.Close()
				return
			}
			if logger.Enabled(context.Background(), slog.LevelDebug) {
				if payload, err := codec.Marshal(message); err == nil {
					if diagnostic, err := codec.Diagnose(payload); err == nil {
						logger.Debug("stream frame sent", "comm_id", message.CommID, "frame", diagnostic)
					}
				}
			}
			// Batch whatever is already queued into one flush.
			if len(c.send) > 0 {
				continue
			}
			if err := writer.Flush(); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			if err := WriteFrame(writer, FramePing, nil, CompressionNone, 0); err != nil {
				c.Close()
				return
			}
			if err := writer.Flush(); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			writer.Flush()
			return
		}
	}
}

// StreamClient is the view side of a stream connection. The headless
// simulator and tests use it; native renderers implement the same
// framing.
type StreamClient struct {
	conn        net.Conn
	reader      *bufio.Reader
	compression Compression
	threshold   int

	writeMu sync.Mutex
}

// DialStream connects to socketPath and sends a hello for commID.
// digest is the digest of the last snapshot the view applied, or "".
func DialStream(ctx context.Context, socketPath, commID, digest string) (*StreamClient, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("comm: dialing %s: %w", socketPath, err)
	}
	client := &StreamClient{conn: conn, reader: bufio.NewReader(conn)}
	hello := Message{Method: MethodHello, CommID: commID, Digest: digest, Protocol: version.Protocol}
	if err := client.Send(hello); err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// SetCompression sets compression for frames the client sends.
func (c *StreamClient) SetCompression(compression Compression, threshold int) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.compression = compression
	c.threshold = threshold
}

// Send writes one message frame.
func (c *StreamClient) Send(message Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessageFrame(c.conn, message, c.compression, c.threshold)
}

// Receive blocks for the next message, skipping keepalive pings.
func (c *StreamClient) Receive() (Message, error) {
	return readStreamMessage(c.reader)
}

// Close closes the connection.
func (c *StreamClient) Close() error {
	return c.conn.Close()
}
