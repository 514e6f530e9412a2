// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides network and HTTP I/O utilities shared by the
// portal client and the view transports.
//
// HTTP response helpers (ReadResponse, ErrorBody) bound all
// response body reads at MaxResponseSize. Portal responses are JSON
// documents: item data for a web map, group listings, service metadata.
// They are small, but a misbehaving server should not be able to exhaust
// kernel memory.
//
// Connection error helpers (IsExpectedCloseError) classify errors that occur
// when a view disconnects mid-stream.
package netutil

import (
	"io"
)

// MaxResponseSize is the bound on JSON API response body reads: 64 MB.
// Web map item data with many operational layers runs to a few hundred
// kilobytes; the limit never interferes with legitimate responses.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody reads an HTTP error response body and returns it as a string for
// diagnostic error messages. Read errors are ignored: a partial or empty
// body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
