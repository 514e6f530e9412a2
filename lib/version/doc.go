// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the mapview
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// [Info] formats them for --version output.
//
// [Protocol] is the comm protocol revision. Snapshots carry it, views
// announce theirs in the hello, and [Compatible] decides whether the
// two can talk. A transport closes a connection whose hello names
// another revision, and the reference view refuses such a snapshot.
package version
