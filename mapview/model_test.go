// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/mapview/comm"
	"github.com/bureau-foundation/mapview/portal"
)

// staticCredentials implements Credentials without a portal.
type staticCredentials struct {
	baseURL  string
	username string
	password string
}

func (c staticCredentials) BaseURL() string  { return c.baseURL }
func (c staticCredentials) Username() string { return c.username }
func (c staticCredentials) Password() string { return c.password }

// recordingReporter captures diagnostics.
type recordingReporter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingReporter) Warn(message string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, fmt.Sprint(append([]any{message}, args...)...))
}

func (r *recordingReporter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// newTestMap creates a Map publishing to a fresh recorder.
func newTestMap(t *testing.T, options Options) (*Map, *comm.Recorder) {
	t.Helper()
	recorder := comm.NewRecorder(0)
	options.Sink = recorder
	if options.CommID == "" {
		options.CommID = "test-map"
	}
	m, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, recorder
}

func TestNewDefaults(t *testing.T) {
	m, recorder := newTestMap(t, Options{})

	if m.Basemap() != "topo" {
		t.Errorf("Basemap = %q, want topo", m.Basemap())
	}
	if m.Zoom() != 2 {
		t.Errorf("Zoom = %d, want 2", m.Zoom())
	}
	if latitude, longitude := m.Center(); latitude != 0 || longitude != 0 {
		t.Errorf("Center = (%v, %v), want (0, 0)", latitude, longitude)
	}
	if m.Width() != "100%" {
		t.Errorf("Width = %q, want 100%%", m.Width())
	}
	if m.Mode() != ModeNavigate {
		t.Errorf("Mode = %q, want %q", m.Mode(), ModeNavigate)
	}
	if len(m.Basemaps()) != len(BuiltinBasemaps) {
		t.Errorf("Basemaps has %d entries, want %d", len(m.Basemaps()), len(BuiltinBasemaps))
	}
	if m.TokenInfo() != "" || m.ContentURL() != "" {
		t.Errorf("anonymous map has credentials: token=%q url=%q", m.TokenInfo(), m.ContentURL())
	}
	if m.ItemID() != "" {
		t.Errorf("ItemID = %q, want empty", m.ItemID())
	}
	if !strings.HasPrefix(m.SwipeDiv(), "swipeDiv") || len(m.SwipeDiv()) != len("swipeDiv")+6 {
		t.Errorf("SwipeDiv = %q, want swipeDiv + 6 characters", m.SwipeDiv())
	}
	if recorder.Len() != 0 {
		t.Errorf("New published %d messages, want 0", recorder.Len())
	}
}

func TestNewGeneratesCommID(t *testing.T) {
	first, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if first.CommID() == "" || first.CommID() == second.CommID() {
		t.Errorf("comm IDs = %q, %q; want distinct non-empty", first.CommID(), second.CommID())
	}
}

func TestSwipeDivUsesRandomSource(t *testing.T) {
	first, _ := newTestMap(t, Options{Random: rand.New(rand.NewPCG(7, 11))})
	second, _ := newTestMap(t, Options{Random: rand.New(rand.NewPCG(7, 11))})
	if first.SwipeDiv() != second.SwipeDiv() {
		t.Errorf("same seed produced %q and %q", first.SwipeDiv(), second.SwipeDiv())
	}
}

func TestNewWithSession(t *testing.T) {
	m, _ := newTestMap(t, Options{Session: staticCredentials{
		baseURL:  "http://portal.example.com/sharing/rest/",
		username: "analyst",
		password: "hunter2",
	}})

	want := `{"server":"https://portal.example.com/sharing/rest/",` +
		`"tokenurl":"https://portal.example.com/sharing/rest/generateToken",` +
		`"username":"analyst","password":"hunter2"}`
	if m.TokenInfo() != want {
		t.Errorf("TokenInfo = %s\nwant %s", m.TokenInfo(), want)
	}
	if m.ContentURL() != "https://portal.example.com/sharing/rest/content/items" {
		t.Errorf("ContentURL = %q", m.ContentURL())
	}
}

func TestNewAnonymousSession(t *testing.T) {
	m, _ := newTestMap(t, Options{Session: staticCredentials{baseURL: "https://portal.example.com/sharing/rest/"}})
	if m.TokenInfo() != "" {
		t.Errorf("TokenInfo = %q, want empty for anonymous session", m.TokenInfo())
	}
}

func TestNewWithItem(t *testing.T) {
	m, _ := newTestMap(t, Options{Item: &portal.WebMap{
		Item: &portal.Item{ID: "abc123", Title: "Parcels", Type: "Web Map"},
	}})
	if m.ItemID() != "abc123" {
		t.Errorf("ItemID = %q, want abc123", m.ItemID())
	}
	if m.Item() == nil || m.Item().Title != "Parcels" {
		t.Errorf("Item = %+v", m.Item())
	}
}

func TestNewRejectsNonWebMap(t *testing.T) {
	_, err := New(Options{Item: &portal.Item{ID: "svc", Type: "Feature Service"}})
	if !errors.Is(err, ErrItemType) {
		t.Fatalf("New error = %v, want ErrItemType", err)
	}
	var typeError *ItemTypeError
	if !errors.As(err, &typeError) || typeError.Type != "Feature Service" {
		t.Errorf("errors.As = %+v", typeError)
	}
}

func TestSetZoom(t *testing.T) {
	m, recorder := newTestMap(t, Options{})

	if err := m.SetZoom(-1); err == nil {
		t.Error("SetZoom(-1) succeeded")
	}
	if err := m.SetZoom(9); err != nil {
		t.Fatalf("SetZoom: %v", err)
	}
	if m.Zoom() != 9 {
		t.Errorf("Zoom = %d, want 9", m.Zoom())
	}
	// Setting the current value publishes nothing.
	if err := m.SetZoom(9); err != nil {
		t.Fatalf("SetZoom: %v", err)
	}
	if values := recorder.Values(FieldZoom); len(values) != 1 {
		t.Errorf("zoom published %d times, want 1: %v", len(values), values)
	}
}

func TestSetCenter(t *testing.T) {
	m, _ := newTestMap(t, Options{})

	if err := m.SetCenter(91, 0); err == nil {
		t.Error("SetCenter(91, 0) succeeded")
	}
	if err := m.SetCenter(34.05, -118.25); err != nil {
		t.Fatalf("SetCenter: %v", err)
	}
	latitude, longitude := m.Center()
	if latitude != 34.05 || longitude != -118.25 {
		t.Errorf("Center = (%v, %v)", latitude, longitude)
	}
}

func TestSetWidth(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	if err := m.SetWidth(""); err == nil {
		t.Error("SetWidth(\"\") succeeded")
	}
	if err := m.SetWidth("640px"); err != nil {
		t.Fatalf("SetWidth: %v", err)
	}
	if m.Width() != "640px" {
		t.Errorf("Width = %q", m.Width())
	}
}

func TestSetTimeExtentPublishesOnce(t *testing.T) {
	m, recorder := newTestMap(t, Options{})

	if err := m.SetTimeExtent("2020-01-01T00:00:00Z", "2020-12-31T23:59:59Z"); err != nil {
		t.Fatalf("SetTimeExtent: %v", err)
	}
	messages := recorder.Messages()
	if len(messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(messages))
	}
	state := messages[0].State
	if state[FieldStartTime] != "2020-01-01T00:00:00Z" || state[FieldEndTime] != "2020-12-31T23:59:59Z" {
		t.Errorf("update state = %v", state)
	}
	start, end := m.TimeExtent()
	if start != "2020-01-01T00:00:00Z" || end != "2020-12-31T23:59:59Z" {
		t.Errorf("TimeExtent = (%q, %q)", start, end)
	}
}

func TestSetMode(t *testing.T) {
	m, recorder := newTestMap(t, Options{})

	if err := m.SetMode("polygon"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := m.SetMode("polygon"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if values := recorder.Values(FieldMode); len(values) != 2 {
		t.Errorf("mode published %d times, want 2", len(values))
	}
	if err := m.SetMode(CommandClearGraphics); !errors.Is(err, ErrReservedCommand) {
		t.Errorf("SetMode(sentinel) error = %v, want ErrReservedCommand", err)
	}
}

func TestClearGraphicsAndRemoveLayers(t *testing.T) {
	m, recorder := newTestMap(t, Options{})

	if err := m.ClearGraphics(); err != nil {
		t.Fatalf("ClearGraphics: %v", err)
	}
	if err := m.RemoveLayers(); err != nil {
		t.Fatalf("RemoveLayers: %v", err)
	}
	if err := m.ClearGraphics(); err != nil {
		t.Fatalf("ClearGraphics: %v", err)
	}
	values := recorder.Values(FieldMode)
	want := []any{CommandClearGraphics, CommandRemoveLayers, CommandClearGraphics}
	if len(values) != len(want) {
		t.Fatalf("mode values = %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("mode[%d] = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestSnapshotCarriesState(t *testing.T) {
	m, _ := newTestMap(t, Options{})
	if err := m.SetZoom(5); err != nil {
		t.Fatalf("SetZoom: %v", err)
	}
	snapshot, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.Method != comm.MethodSnapshot || snapshot.CommID != "test-map" {
		t.Errorf("snapshot header = %s %s", snapshot.Method, snapshot.CommID)
	}
	if snapshot.State[FieldZoom] != 5 {
		t.Errorf("snapshot zoom = %v", snapshot.State[FieldZoom])
	}
	if snapshot.Digest == "" {
		t.Error("snapshot has no digest")
	}
}
