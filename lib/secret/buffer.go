// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds a portal password or token in memory that is locked
// against swapping, excluded from core dumps, and zeroed on close.
//
// A Buffer must not be copied; use Clone. After Close, reading the
// contents panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	closed bool
}

// New allocates a zeroed secret buffer of size bytes. The caller must
// call Close when the secret is no longer needed.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}
	region, err := lockedRegion(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{region: region}, nil
}

func lockedRegion(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap failed: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock failed: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP) failed: %w", err)
	}
	return region, nil
}

// NewFromBytes moves source into a new buffer and zeros source.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: cannot create buffer from empty source")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	Zero(source)
	return buffer, nil
}

// NewFromString creates a secret buffer from a string. The string itself
// cannot be zeroed; use this only where the value already lives on the
// heap (a token from a decoded JSON response, test fixtures).
func NewFromString(source string) (*Buffer, error) {
	return NewFromBytes([]byte(source))
}

// Clone copies the secret into a second protected buffer without an
// intermediate heap copy. A portal session clones the login password so
// the caller may close theirs.
func (b *Buffer) Clone() (*Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requireOpenLocked()

	clone, err := New(len(b.region))
	if err != nil {
		return nil, err
	}
	copy(clone.region, b.region)
	return clone, nil
}

// Bytes returns the secret data. The returned slice points directly into
// the locked region and must not outlive the Buffer.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requireOpenLocked()
	return b.region
}

// String returns the secret as a heap-allocated string. Use only where
// an API needs a string: the generateToken form, a token query
// parameter, the view's token bundle.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requireOpenLocked()
	return string(b.region)
}

// Len returns the size of the secret data.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.region)
}

func (b *Buffer) requireOpenLocked() {
	if b.closed {
		panic("secret: read from closed buffer")
	}
}

// Close zeros the contents, then unlocks and unmaps the region. Close is
// idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	Zero(b.region)
	var errs []error
	if err := unix.Munlock(b.region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munlock failed: %w", err))
	}
	if err := unix.Munmap(b.region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munmap failed: %w", err))
	}
	b.region = nil
	return errors.Join(errs...)
}

// Zero overwrites data with zero bytes.
func Zero(data []byte) {
	clear(data)
}
