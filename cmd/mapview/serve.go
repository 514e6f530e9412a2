// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/mapview/comm"
	"github.com/bureau-foundation/mapview/lib/config"
)

// serveViews runs the websocket and stream listeners until ctx is
// cancelled or one of them fails.
func serveViews(ctx context.Context, cfg *config.Config, hub *comm.Hub, commID string, logger *slog.Logger) error {
	keepalive, err := cfg.View.KeepaliveInterval()
	if err != nil {
		return err
	}
	compression, err := comm.ParseCompression(cfg.View.Compression)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	comm.NewWebsocketHandler(comm.WebsocketConfig{
		Hub:            hub,
		AllowedOrigins: cfg.View.AllowedOrigins,
		Keepalive:      keepalive,
		SendBuffer:     cfg.View.SendBuffer,
		Logger:         logger,
	}).Register(mux)

	httpServer := comm.NewHTTPServer(comm.HTTPServerConfig{
		Address: cfg.View.ListenAddress,
		Handler: mux,
		Logger:  logger,
	})

	errs := make(chan error, 2)
	running := 1
	go func() { errs <- httpServer.Serve(ctx) }()

	if cfg.Paths.StreamSocket != "" {
		if err := cfg.EnsurePaths(); err != nil {
			return err
		}
		streamServer := comm.NewStreamServer(comm.StreamConfig{
			Hub:         hub,
			SocketPath:  cfg.Paths.StreamSocket,
			Compression: compression,
			Threshold:   cfg.View.CompressionThreshold,
			Keepalive:   keepalive,
			SendBuffer:  cfg.View.SendBuffer,
			Logger:      logger,
		})
		running++
		go func() { errs <- streamServer.Serve(ctx) }()
	}

	select {
	case <-httpServer.Ready():
		logger.Info("serving map",
			"comm_id", commID,
			"websocket", fmt.Sprintf("ws://%s/comm/%s", httpServer.Addr(), commID),
			"stream_socket", cfg.Paths.StreamSocket,
		)
	case err := <-errs:
		return err
	}

	var firstErr error
	for running > 0 {
		err := <-errs
		running--
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}
