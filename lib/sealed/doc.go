// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for portal credential files. The
// map server's configuration may point at a password file that is
// encrypted to an operator's age key, so the plaintext password never
// rests on disk next to the config.
//
// Ciphertext is ASCII-armored on write. On read both armored and binary
// age files are accepted. Private keys and decrypted plaintext are
// returned as *secret.Buffer values.
package sealed
