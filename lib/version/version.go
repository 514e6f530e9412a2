// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Protocol is the comm protocol revision. The kernel side stamps it on
// every snapshot and views stamp it on their hello. Bump it whenever a
// field's wire form or a sentinel changes meaning.
const Protocol = "1"

// Compatible reports whether a peer announcing protocol revision peer
// can be served. An empty revision is accepted: hand-written views and
// older front ends do not send one.
func Compatible(peer string) bool {
	return peer == "" || peer == Protocol
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s, protocol %s)", Version, GitCommit, dirty, BuildTime, Protocol)
}

// Full returns Info plus the Go toolchain and platform, for --version
// with --verbose.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
