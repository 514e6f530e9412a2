// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package comm implements the widget state-synchronization protocol
// between a model in this process and one or more views (a browser map
// view, a native renderer, or the headless simulator).
//
// The package is organized around the message flow:
//
//   - message.go: the [Message] shape shared by every transport
//   - store.go: [Store], the observable field set with explicit
//     Set/Emit/Commit/Apply and state snapshots
//   - digest.go: keyed BLAKE3 digest over the deterministic CBOR
//     encoding of a snapshot
//   - hub.go: [Hub], the registry routing messages between models and
//     attached connections in emission order
//   - websocket.go: JSON-over-websocket connections for browsers
//   - frame.go, stream.go: length-prefixed CBOR frames with optional
//     LZ4 or zstd compression over a unix socket
//   - recorder.go: [Recorder], an in-memory sink for tests
//
// Two kinds of fields exist. State fields (zoom, center, basemap)
// describe what the view should show; setting one to its current value
// publishes nothing. Channel fields (mode, _addlayer) carry a stream of
// commands; every [Store.Emit] publishes its own update even when the
// payload is identical to the previous one. A view must treat each
// update of a channel field as a discrete event.
//
// Every update carries a per-comm sequence number. A view that
// reconnects sends a hello carrying the digest of the last snapshot it
// applied; if the digest still matches, the hub skips the snapshot and
// resumes with live updates.
package comm
