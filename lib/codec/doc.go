// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration.
//
// mapview uses two serialization formats with a clear boundary:
//
//   - JSON for everything a browser sees: websocket comm messages, the
//     serialized graphic and layer payloads carried inside the `mode` and
//     `_addlayer` fields, portal requests and responses.
//   - CBOR for the framed unix-socket stream used by native views, and
//     as the canonical encoding hashed into state snapshot digests.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical state always produces identical bytes, which is what makes a
// snapshot digest comparable across reconnects.
//
// Comm message types carry `json` struct tags only. fxamacker/cbor v2
// reads `json` tags when `cbor` tags are absent, so one tag controls the
// field name in both encodings.
package codec
