// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"reflect"
	"testing"

	"github.com/bureau-foundation/mapview/lib/version"
)

func newTestStore(recorder *Recorder) *Store {
	return NewStore("comm-1", recorder, map[string]any{
		"zoom":   2,
		"mode":   "navigate",
		"center": []float64{0, 0},
	}, "mode")
}

func TestStoreSetEqualValueStagesNothing(t *testing.T) {
	recorder := NewRecorder(0)
	store := newTestStore(recorder)

	if store.Set("zoom", 2) {
		t.Error("Set with the current value reported a change")
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if recorder.Len() != 0 {
		t.Errorf("Commit with nothing staged published %d messages", recorder.Len())
	}
}

func TestStoreCommitBatchesStagedFields(t *testing.T) {
	recorder := NewRecorder(0)
	store := newTestStore(recorder)

	store.Set("start_time", "2020-01-01")
	store.Set("end_time", "2020-12-31")
	if recorder.Len() != 0 {
		t.Fatal("Set published before Commit")
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	messages := recorder.Messages()
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	want := map[string]any{"start_time": "2020-01-01", "end_time": "2020-12-31"}
	if !reflect.DeepEqual(messages[0].State, want) {
		t.Errorf("state = %v, want %v", messages[0].State, want)
	}
	if messages[0].Sequence != 1 || messages[0].Method != MethodUpdate || messages[0].CommID != "comm-1" {
		t.Errorf("unexpected envelope: %+v", messages[0])
	}
}

func TestStoreEmitAlwaysRedelivers(t *testing.T) {
	recorder := NewRecorder(0)
	store := newTestStore(recorder)

	for range 3 {
		if err := store.Emit("mode", "###clear_graphics"); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	messages := recorder.Messages()
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	for i, message := range messages {
		if message.Sequence != uint64(i+1) {
			t.Errorf("message %d sequence = %d, want %d", i, message.Sequence, i+1)
		}
		if message.State["mode"] != "###clear_graphics" {
			t.Errorf("message %d state = %v", i, message.State)
		}
	}
}

func TestStoreEmitFlushesStagedChangesFirst(t *testing.T) {
	recorder := NewRecorder(0)
	store := newTestStore(recorder)

	store.Set("zoom", 7)
	if err := store.Emit("mode", "polygon"); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	messages := recorder.Messages()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].State["zoom"] != 7 || len(messages[0].State) != 1 {
		t.Errorf("first message = %v, want the staged zoom", messages[0].State)
	}
	if messages[1].State["mode"] != "polygon" || len(messages[1].State) != 1 {
		t.Errorf("second message = %v, want the mode command alone", messages[1].State)
	}
}

func TestStoreApplyDoesNotEcho(t *testing.T) {
	recorder := NewRecorder(0)
	store := newTestStore(recorder)
	store.Set("zoom", 4)

	changed := store.Apply(map[string]any{"zoom": 9.0, "center": []float64{0, 0}, "_jsextent": "{}"})
	if !reflect.DeepEqual(changed, []string{"_jsextent", "zoom"}) {
		t.Errorf("changed = %v", changed)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if recorder.Len() != 0 {
		t.Errorf("Apply caused %d published messages; the view's value should win over the staged one", recorder.Len())
	}
	if value, _ := store.Get("zoom"); value != 9.0 {
		t.Errorf("zoom = %v, want 9", value)
	}
}

func TestStoreOrderedEmissions(t *testing.T) {
	recorder := NewRecorder(0)
	store := newTestStore(recorder)

	const count = 50
	for i := range count {
		if err := store.Emit("_addlayer", i); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	values := recorder.Values("_addlayer")
	if len(values) != count {
		t.Fatalf("got %d values, want %d", len(values), count)
	}
	for i, value := range values {
		if value != i {
			t.Fatalf("value %d = %v; emissions reordered", i, value)
		}
	}
	if store.Sequence() != count {
		t.Errorf("Sequence = %d, want %d", store.Sequence(), count)
	}
}

func TestStoreSnapshotDigest(t *testing.T) {
	first := NewStore("a", nil, map[string]any{"zoom": 2, "basemap": "topo"})
	second := NewStore("b", nil, map[string]any{"basemap": "topo", "zoom": 2})

	snapshotA, err := first.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snapshotB, err := second.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshotA.Digest == "" || snapshotA.Digest != snapshotB.Digest {
		t.Errorf("equal states produced digests %q and %q", snapshotA.Digest, snapshotB.Digest)
	}
	if snapshotA.Method != MethodSnapshot {
		t.Errorf("method = %q", snapshotA.Method)
	}
	if snapshotA.Protocol != version.Protocol {
		t.Errorf("snapshot protocol = %q, want %q", snapshotA.Protocol, version.Protocol)
	}

	first.Set("zoom", 3)
	changed, err := first.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if changed.Digest == snapshotA.Digest {
		t.Error("digest did not change with state")
	}
}

func TestMessageEvent(t *testing.T) {
	message := NewEvent("comm-1", "mouseclick", map[string]any{"x": 1.0})
	name, payload, ok := message.Event()
	if !ok || name != "mouseclick" {
		t.Fatalf("Event() = %q, %v", name, ok)
	}
	if !reflect.DeepEqual(payload, map[string]any{"x": 1.0}) {
		t.Errorf("payload = %v", payload)
	}

	if _, _, ok := (Message{Method: MethodUpdate}).Event(); ok {
		t.Error("update message reported an event")
	}
	if _, _, ok := (Message{Method: MethodCustom, Content: map[string]any{"event": 3}}).Event(); ok {
		t.Error("non-string event name accepted")
	}
}

func TestMessageValidate(t *testing.T) {
	if err := (Message{Method: MethodUpdate, CommID: "x"}).Validate(); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}
	if err := (Message{CommID: "x"}).Validate(); err == nil {
		t.Error("message without method accepted")
	}
	if err := (Message{Method: "delete", CommID: "x"}).Validate(); err == nil {
		t.Error("unknown method accepted")
	}
	if err := (Message{Method: MethodCustom}).Validate(); err == nil {
		t.Error("message without comm id accepted")
	}
}
