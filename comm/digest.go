// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"encoding/hex"
	"fmt"

	"github.com/bureau-foundation/mapview/lib/codec"
	"github.com/zeebo/blake3"
)

// stateDomainKey keys the snapshot digest. Changing it invalidates every
// digest a view holds, which only costs one extra snapshot per view.
var stateDomainKey = [32]byte{
	'm', 'a', 'p', 'v', 'i', 'e', 'w', '.', 'c', 'o', 'm', 'm', '.',
	's', 't', 'a', 't', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the hex-encoded keyed BLAKE3 hash of the deterministic
// CBOR encoding of state. Equal field sets produce equal digests
// regardless of map iteration order.
func Digest(state map[string]any) (string, error) {
	encoded, err := codec.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("comm: encoding state for digest: %w", err)
	}
	hasher, err := blake3.NewKeyed(stateDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("comm: creating keyed hasher: %w", err)
	}
	hasher.Write(encoded)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
