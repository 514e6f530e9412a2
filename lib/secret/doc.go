// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for portal credentials:
// the account password used to generate tokens and the tokens the
// portal hands back.
//
// Buffer allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped.
//
// The map model has to hand the password to the view inside the token
// bundle, so a heap copy exists for the duration of that serialization.
// Everywhere else the credential stays in the Buffer.
package secret
