// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// update mirrors the shape of a comm update: json tags only.
type update struct {
	Method   string         `json:"method"`
	Sequence uint64         `json:"seq,omitempty"`
	State    map[string]any `json:"state,omitempty"`
}

func TestMarshalUnmarshal_JSONTags(t *testing.T) {
	original := update{
		Method:   "update",
		Sequence: 3,
		State:    map[string]any{"zoom": 4, "_basemap": "streets"},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"method"`) || !strings.Contains(diagnostic, `"seq"`) {
		t.Errorf("json tag names not used: %s", diagnostic)
	}

	var decoded update
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Method != "update" || decoded.Sequence != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.State["_basemap"] != "streets" {
		t.Errorf("_basemap = %v", decoded.State["_basemap"])
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Map iteration order is random; deterministic encoding sorts keys.
	state := map[string]any{}
	for _, key := range []string{"zoom", "center", "mode", "_basemap", "width", "id"} {
		state[key] = key
	}

	first, err := Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(state)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestUnmarshal_AnyProducesStringMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"extent": map[string]any{"xmin": 1.5}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type %T, want map[string]any", decoded)
	}
	if _, ok := outer["extent"].(map[string]any); !ok {
		t.Fatalf("nested type %T, want map[string]any", outer["extent"])
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for index := range 3 {
		if err := encoder.Encode(update{Method: "update", Sequence: uint64(index + 1)}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index := range 3 {
		var decoded update
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode %d: %v", index, err)
		}
		if decoded.Sequence != uint64(index+1) {
			t.Errorf("message %d has sequence %d", index, decoded.Sequence)
		}
	}
}
