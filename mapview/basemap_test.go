// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"strings"
	"testing"
)

func TestSetBasemapBuiltin(t *testing.T) {
	gallery := newFakeGallery()
	m, recorder := newTestMap(t, Options{Gallery: gallery})

	ok, err := m.SetBasemap(context.Background(), "satellite")
	if err != nil || !ok {
		t.Fatalf("SetBasemap = %v, %v", ok, err)
	}
	if m.Basemap() != "satellite" {
		t.Errorf("Basemap = %q", m.Basemap())
	}
	if values := recorder.Values(FieldBasemap); len(values) != 1 || values[0] != "satellite" {
		t.Errorf("basemap updates = %v", values)
	}
	if gallery.Searches() != 0 {
		t.Errorf("built-in basemap loaded the gallery")
	}
}

func TestSetBasemapInvalid(t *testing.T) {
	reporter := &recordingReporter{}
	m, recorder := newTestMap(t, Options{Gallery: newFakeGallery(), Reporter: reporter})

	ok, err := m.SetBasemap(context.Background(), "sattelite")
	if err != nil {
		t.Fatalf("SetBasemap: %v", err)
	}
	if ok {
		t.Error("SetBasemap accepted an unknown name")
	}
	if m.Basemap() != "topo" {
		t.Errorf("Basemap = %q, want unchanged topo", m.Basemap())
	}
	if len(recorder.Values(FieldBasemap)) != 0 {
		t.Errorf("invalid basemap was published")
	}
	messages := reporter.Messages()
	if len(messages) != 1 {
		t.Fatalf("diagnostics = %v, want one", messages)
	}
	if !strings.Contains(messages[0], "sattelite") || !strings.Contains(messages[0], "satellite") {
		t.Errorf("diagnostic %q should name the input and suggest satellite", messages[0])
	}
}

func TestSetBasemapGallery(t *testing.T) {
	m, _ := newTestMap(t, Options{Gallery: newFakeGallery()})
	ok, err := m.SetBasemap(context.Background(), "nova")
	if err != nil || !ok {
		t.Fatalf("SetBasemap = %v, %v", ok, err)
	}
	if m.Basemap() != "nova" || m.GalleryState() != GalleryLoaded {
		t.Errorf("Basemap = %q state = %s", m.Basemap(), m.GalleryState())
	}
}

func TestSuggestName(t *testing.T) {
	candidates := []string{"streets", "satellite", "topo", "light_gray_canvas"}
	tests := map[string]string{
		"streest":           "streets",
		"Topo":              "topo",
		"light_grey_canvas": "light_gray_canvas",
		"xyzzy":             "",
	}
	for input, want := range tests {
		if got := suggestName(input, candidates); got != want {
			t.Errorf("suggestName(%q) = %q, want %q", input, got, want)
		}
	}
}
