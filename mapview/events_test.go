// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/bureau-foundation/mapview/comm"
)

// callLog records callback invocations across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) callback(name string) *Callback {
	return NewCallback(name, func(m *Map, payload any) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.calls = append(l.calls, name)
		return nil
	})
}

func (l *callLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func click(m *Map, payload any) comm.Message {
	return comm.NewEvent(m.CommID(), EventMouseClick, payload)
}

func TestClickCallbacksRemoval(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	log := &callLog{}
	first := log.callback("first")
	second := log.callback("second")
	third := log.callback("third")

	m.OnClick(first)
	m.OnClick(second)
	m.OnClick(third)
	if !m.OffClick(first) {
		t.Fatal("OffClick(first) = false")
	}

	if err := m.HandleMessage(click(m, map[string]any{"x": 1.0})); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if calls := log.Calls(); !reflect.DeepEqual(calls, []string{"second", "third"}) {
		t.Errorf("calls = %v, want [second third]", calls)
	}
}

func TestCallbackRegistrationIdempotent(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	log := &callLog{}
	callback := log.callback("only")

	if !m.OnClick(callback) {
		t.Error("first OnClick = false")
	}
	if m.OnClick(callback) {
		t.Error("second OnClick = true")
	}
	if err := m.HandleMessage(click(m, nil)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(log.Calls()) != 1 {
		t.Errorf("callback ran %d times, want 1", len(log.Calls()))
	}

	if !m.OffClick(callback) {
		t.Error("first OffClick = false")
	}
	if m.OffClick(callback) {
		t.Error("second OffClick = true")
	}
}

func TestNilCallbackRejected(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	log := &callLog{}
	m.OnClick(log.callback("kept"))

	if m.OnClick(nil) {
		t.Error("OnClick(nil) = true")
	}
	if m.OnDrawEnd(&Callback{name: "empty"}) {
		t.Error("OnDrawEnd with no function = true")
	}
	if m.OffClick(nil) {
		t.Error("OffClick(nil) = true")
	}

	if err := m.HandleMessage(click(m, nil)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if calls := log.Calls(); !reflect.DeepEqual(calls, []string{"kept"}) {
		t.Errorf("calls = %v, want [kept]", calls)
	}
}

func TestDrawEndCallbackReceivesPayload(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	var received any
	var receivedMap *Map
	m.OnDrawEnd(NewCallback("capture", func(source *Map, payload any) error {
		receivedMap = source
		received = payload
		return nil
	}))
	clickLog := &callLog{}
	m.OnClick(clickLog.callback("click"))

	geometry := map[string]any{"rings": []any{}}
	if err := m.HandleMessage(comm.NewEvent(m.CommID(), EventDrawEnd, geometry)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if receivedMap != m || !reflect.DeepEqual(received, geometry) {
		t.Errorf("callback got (%p, %v)", receivedMap, received)
	}
	if len(clickLog.Calls()) != 0 {
		t.Error("draw-end event ran a click callback")
	}
}

func TestFailingCallbackDoesNotStopOthers(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	log := &callLog{}
	m.OnClick(NewCallback("fails", func(*Map, any) error { return errors.New("boom") }))
	m.OnClick(NewCallback("panics", func(*Map, any) error { panic("kaboom") }))
	m.OnClick(log.callback("runs"))

	if err := m.HandleMessage(click(m, nil)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if calls := log.Calls(); !reflect.DeepEqual(calls, []string{"runs"}) {
		t.Errorf("calls = %v", calls)
	}
}

func TestDispatcherCount(t *testing.T) {
	dispatcher := NewDispatcher("test", nil)
	log := &callLog{}
	dispatcher.Register(log.callback("a"))
	dispatcher.Register(NewCallback("bad", func(*Map, any) error { return errors.New("bad") }))
	dispatcher.Register(log.callback("b"))

	if succeeded := dispatcher.Dispatch(nil, nil); succeeded != 2 {
		t.Errorf("Dispatch = %d, want 2", succeeded)
	}
	dispatcher.Clear()
	if dispatcher.Len() != 0 {
		t.Errorf("Len after Clear = %d", dispatcher.Len())
	}
}

func TestCloseRemovesCallbacks(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	log := &callLog{}
	m.OnClick(log.callback("click"))
	m.OnDrawEnd(log.callback("draw"))
	m.Close()

	m.HandleMessage(click(m, nil))
	m.HandleMessage(comm.NewEvent(m.CommID(), EventDrawEnd, nil))
	if len(log.Calls()) != 0 {
		t.Errorf("calls after Close = %v", log.Calls())
	}
}

func TestHandleMessageViewUpdate(t *testing.T) {
	m, recorder := newTestMap(t, Options{})

	err := m.HandleMessage(comm.Message{
		Method: comm.MethodUpdate,
		CommID: m.CommID(),
		State: map[string]any{
			FieldZoom:      7.0,
			FieldCenter:    []any{12.5, -3.0},
			FieldWidth:     "10px",
			FieldTokenInfo: "stolen",
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if m.Zoom() != 7 {
		t.Errorf("Zoom = %d, want 7", m.Zoom())
	}
	if latitude, longitude := m.Center(); latitude != 12.5 || longitude != -3 {
		t.Errorf("Center = (%v, %v)", latitude, longitude)
	}
	if m.Width() != "100%" || m.TokenInfo() != "" {
		t.Errorf("view changed model-owned fields: width=%q token=%q", m.Width(), m.TokenInfo())
	}
	if recorder.Len() != 0 {
		t.Errorf("view update echoed %d messages", recorder.Len())
	}
}

func TestHandleMessageViewBasemap(t *testing.T) {
	reporter := &recordingReporter{}
	m, _ := newTestMap(t, Options{Reporter: reporter})

	update := func(name string) {
		t.Helper()
		if err := m.HandleMessage(comm.Message{
			Method: comm.MethodUpdate,
			State:  map[string]any{FieldBasemap: name},
		}); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}

	update("oceans")
	if m.Basemap() != "oceans" {
		t.Errorf("Basemap = %q, want oceans", m.Basemap())
	}
	update("moon")
	if m.Basemap() != "oceans" {
		t.Errorf("Basemap = %q after invalid view update, want oceans", m.Basemap())
	}
	if len(reporter.Messages()) != 1 {
		t.Errorf("diagnostics = %v", reporter.Messages())
	}
}

func TestHandleMessageRejects(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	tests := map[string]comm.Message{
		"wrong comm":     {Method: comm.MethodUpdate, CommID: "other"},
		"snapshot":       {Method: comm.MethodSnapshot, CommID: m.CommID()},
		"nameless event": {Method: comm.MethodCustom, CommID: m.CommID(), Content: map[string]any{"message": 1}},
	}
	for name, message := range tests {
		if err := m.HandleMessage(message); err == nil {
			t.Errorf("%s: HandleMessage succeeded", name)
		}
	}
	if err := m.HandleMessage(comm.NewEvent(m.CommID(), "hover", nil)); err != nil {
		t.Errorf("unknown event: %v", err)
	}
}
