// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		peer string
		want bool
	}{
		{"", true},
		{Protocol, true},
		{Protocol + "1", false},
		{"0", false},
	}
	for _, test := range tests {
		if got := Compatible(test.peer); got != test.want {
			t.Errorf("Compatible(%q) = %v, want %v", test.peer, got, test.want)
		}
	}
}

func TestInfoNamesProtocol(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, Version+" ") {
		t.Errorf("Info = %q, want it to start with %q", info, Version)
	}
	if !strings.Contains(info, "protocol "+Protocol) {
		t.Errorf("Info = %q, want the protocol revision", info)
	}
	if full := Full(); !strings.HasPrefix(full, info+"\n") || !strings.Contains(full, "Go: ") {
		t.Errorf("Full = %q", full)
	}
}
