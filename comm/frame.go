// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/mapview/lib/codec"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Frame types on the stream transport.
const (
	// FrameMessage carries one CBOR-encoded [Message].
	FrameMessage byte = 0x01

	// FramePing is a keepalive with an empty payload. Receivers
	// discard it.
	FramePing byte = 0x02
)

// Compression identifies how a frame payload is compressed. The values
// are wire constants.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

// String returns the configuration name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a configuration name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("comm: unknown compression %q", name)
	}
}

// frameHeaderLength is 1 byte type + 1 byte compression + 4 bytes
// big-endian payload length.
const frameHeaderLength = 6

// maxFramePayload bounds a frame's payload, compressed or not. Gallery
// snapshots with many basemap definitions stay well under a megabyte.
const maxFramePayload = 16 * 1024 * 1024

// errIncompressible signals that compression would not shrink the
// payload; the frame is written uncompressed instead.
var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("comm: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("comm: zstd decoder initialization failed: " + err.Error())
	}
}

// Frame is a decoded stream frame. Payload is always uncompressed;
// Compression records how it travelled.
type Frame struct {
	Type        byte
	Compression Compression
	Payload     []byte
}

// WriteFrame writes one frame to w. Payloads of at least threshold
// bytes are compressed with compression; a payload that does not shrink
// is sent uncompressed. A compressed payload is prefixed with its
// uncompressed length as a big-endian uint32.
//
//	[type u8] [compression u8] [length u32] [payload]
func WriteFrame(w io.Writer, frameType byte, payload []byte, compression Compression, threshold int) error {
	tag := CompressionNone
	body := payload
	if compression != CompressionNone && len(payload) > 0 && len(payload) >= threshold {
		compressed, err := compress(payload, compression)
		switch {
		case err == nil:
			tag = compression
			body = make([]byte, 4+len(compressed))
			binary.BigEndian.PutUint32(body[:4], uint32(len(payload)))
			copy(body[4:], compressed)
		case errors.Is(err, errIncompressible):
		default:
			return err
		}
	}
	if len(body) > maxFramePayload {
		return fmt.Errorf("comm: frame payload %d exceeds maximum %d", len(body), maxFramePayload)
	}

	var header [frameHeaderLength]byte
	header[0] = frameType
	header[1] = byte(tag)
	binary.BigEndian.PutUint32(header[2:6], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("comm: write frame header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("comm: write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads and decompresses one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("comm: read frame header: %w", err)
	}
	frame := Frame{Type: header[0], Compression: Compression(header[1])}
	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxFramePayload {
		return Frame{}, fmt.Errorf("comm: frame payload %d exceeds maximum %d", length, maxFramePayload)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("comm: read frame payload: %w", err)
	}

	if frame.Compression == CompressionNone {
		frame.Payload = body
		return frame, nil
	}
	if len(body) < 4 {
		return Frame{}, fmt.Errorf("comm: compressed frame too short (%d bytes)", len(body))
	}
	size := binary.BigEndian.Uint32(body[:4])
	if size > maxFramePayload {
		return Frame{}, fmt.Errorf("comm: uncompressed size %d exceeds maximum %d", size, maxFramePayload)
	}
	payload, err := decompress(body[4:], frame.Compression, int(size))
	if err != nil {
		return Frame{}, err
	}
	frame.Payload = payload
	return frame, nil
}

// WriteMessageFrame CBOR-encodes message and writes it as a
// FrameMessage.
func WriteMessageFrame(w io.Writer, message Message, compression Compression, threshold int) error {
	payload, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("comm: encoding %s message: %w", message.Method, err)
	}
	return WriteFrame(w, FrameMessage, payload, compression, threshold)
}

// DecodeMessageFrame decodes a FrameMessage payload.
func DecodeMessageFrame(frame Frame) (Message, error) {
	if frame.Type != FrameMessage {
		return Message{}, fmt.Errorf("comm: frame type 0x%02x is not a message", frame.Type)
	}
	var message Message
	if err := codec.Unmarshal(frame.Payload, &message); err != nil {
		return Message{}, fmt.Errorf("comm: decoding message frame: %w", err)
	}
	return message, nil
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("comm: lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("comm: unsupported compression %s", compression)
	}
}

func decompress(compressed []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("comm: lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("comm: lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil

	case CompressionZstd:
		destination, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("comm: zstd decompress: %w", err)
		}
		if len(destination) != size {
			return nil, fmt.Errorf("comm: zstd decompress: got %d bytes, expected %d", len(destination), size)
		}
		return destination, nil

	default:
		return nil, fmt.Errorf("comm: unsupported compression %s", compression)
	}
}
