// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/mapview/lib/secret"
	"github.com/bureau-foundation/mapview/portal"
	"github.com/bureau-foundation/mapview/portal/portaltest"
)

// fakeGallery implements Gallery in memory and counts searches.
type fakeGallery struct {
	mu          sync.Mutex
	query       string
	groups      []portal.Group
	items       []portal.Item
	data        map[string]map[string]any
	dataErrs    map[string]error
	searchErr   error
	searches    int
	lastQuery   string
	lastOutside bool
}

func (g *fakeGallery) Properties(context.Context) (*portal.Properties, error) {
	return &portal.Properties{ID: "org", BasemapGalleryGroupQuery: g.query}, nil
}

func (g *fakeGallery) SearchGroups(_ context.Context, query string, outsideOrg bool) ([]portal.Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches++
	g.lastQuery = query
	g.lastOutside = outsideOrg
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	return g.groups, nil
}

func (g *fakeGallery) GroupContent(context.Context, string) ([]portal.Item, error) {
	return g.items, nil
}

func (g *fakeGallery) ItemData(_ context.Context, itemID string) (map[string]any, error) {
	if err := g.dataErrs[itemID]; err != nil {
		return nil, err
	}
	return g.data[itemID], nil
}

func (g *fakeGallery) Searches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.searches
}

func basemapData(id string) map[string]any {
	return map[string]any{"baseMap": map[string]any{
		"baseMapLayers": []any{map[string]any{"id": id}},
	}}
}

func newFakeGallery() *fakeGallery {
	return &fakeGallery{
		query:  `title:"Basemaps"`,
		groups: []portal.Group{{ID: "g1"}},
		items: []portal.Item{
			{ID: "a", Title: "Light Gray Canvas", Type: "Web Map"},
			{ID: "b", Title: "Imagery Service", Type: "Image Service"},
			{ID: "c", Title: "Missing Data", Type: "Web Map"},
			{ID: "d", Title: "Nova", Type: "Web Map"},
		},
		data: map[string]map[string]any{
			"a": basemapData("canvas"),
			"d": basemapData("nova"),
		},
	}
}

func TestGalleryBasemapsLoadsOnce(t *testing.T) {
	gallery := newFakeGallery()
	m, recorder := newTestMap(t, Options{Gallery: gallery})

	if m.GalleryState() != GalleryUninitialized {
		t.Errorf("initial state = %s", m.GalleryState())
	}
	names, err := m.GalleryBasemaps(context.Background())
	if err != nil {
		t.Fatalf("GalleryBasemaps: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"light_gray_canvas", "nova"}) {
		t.Errorf("names = %v", names)
	}
	definitions := m.GalleryDefinitions()
	if len(definitions) != 2 {
		t.Fatalf("definitions = %v", definitions)
	}
	if !reflect.DeepEqual(definitions[1], []any{map[string]any{"id": "nova"}}) {
		t.Errorf("second definition = %v", definitions[1])
	}
	if m.GalleryState() != GalleryLoaded {
		t.Errorf("state = %s, want loaded", m.GalleryState())
	}
	if !gallery.lastOutside {
		t.Error("default gallery search was restricted to the organization")
	}

	if _, err := m.GalleryBasemaps(context.Background()); err != nil {
		t.Fatalf("GalleryBasemaps: %v", err)
	}
	if gallery.Searches() != 1 {
		t.Errorf("searched %d times, want 1", gallery.Searches())
	}
	if messages := recorder.Messages(); len(messages) != 1 {
		t.Errorf("published %d messages, want 1", len(messages))
	} else if _, ok := messages[0].State[FieldGalleryDefinitions]; !ok {
		t.Errorf("update missing definitions: %v", messages[0].State)
	}
}

func TestGalleryBasemapsSkipsUnreadableItems(t *testing.T) {
	gallery := newFakeGallery()
	gallery.data["c"] = basemapData("private")
	gallery.dataErrs = map[string]error{"c": errors.New("portal: 403 forbidden")}
	m, _ := newTestMap(t, Options{Gallery: gallery})

	names, err := m.GalleryBasemaps(context.Background())
	if err != nil {
		t.Fatalf("GalleryBasemaps: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"light_gray_canvas", "nova"}) {
		t.Errorf("names = %v", names)
	}
	if len(m.GalleryDefinitions()) != 2 {
		t.Errorf("definitions = %v", m.GalleryDefinitions())
	}
	if m.GalleryState() != GalleryLoaded {
		t.Errorf("state = %s, want loaded", m.GalleryState())
	}
	changed, err := m.SetBasemap(context.Background(), "nova")
	if err != nil || !changed {
		t.Errorf("SetBasemap(nova) = %v, %v; want true, nil", changed, err)
	}
}

func TestGalleryBasemapsRetriesWhenGroupMissing(t *testing.T) {
	gallery := newFakeGallery()
	gallery.groups = nil
	m, recorder := newTestMap(t, Options{Gallery: gallery})
	ctx := context.Background()

	names, err := m.GalleryBasemaps(ctx)
	if err != nil {
		t.Fatalf("GalleryBasemaps: %v", err)
	}
	if len(names) != 0 || names == nil {
		t.Errorf("names = %#v, want empty non-nil", names)
	}
	if m.GalleryState() != GalleryEmptyRetryable {
		t.Errorf("state = %s, want empty-retryable", m.GalleryState())
	}

	// Two matching groups is as ambiguous as none.
	gallery.mu.Lock()
	gallery.groups = []portal.Group{{ID: "g1"}, {ID: "g2"}}
	gallery.mu.Unlock()
	if _, err := m.GalleryBasemaps(ctx); err != nil {
		t.Fatalf("GalleryBasemaps: %v", err)
	}
	if m.GalleryState() != GalleryEmptyRetryable {
		t.Errorf("state = %s, want empty-retryable", m.GalleryState())
	}

	gallery.mu.Lock()
	gallery.groups = []portal.Group{{ID: "g1"}}
	gallery.mu.Unlock()
	names, err = m.GalleryBasemaps(ctx)
	if err != nil {
		t.Fatalf("GalleryBasemaps: %v", err)
	}
	if len(names) != 2 || m.GalleryState() != GalleryLoaded {
		t.Errorf("after retry names = %v state = %s", names, m.GalleryState())
	}
	if gallery.Searches() != 3 {
		t.Errorf("searched %d times, want 3", gallery.Searches())
	}
	if recorder.Len() != 1 {
		t.Errorf("published %d messages, want 1", recorder.Len())
	}
}

func TestGalleryBasemapsTransportError(t *testing.T) {
	gallery := newFakeGallery()
	gallery.searchErr = errors.New("connection refused")
	m, _ := newTestMap(t, Options{Gallery: gallery})

	if _, err := m.GalleryBasemaps(context.Background()); err == nil {
		t.Fatal("GalleryBasemaps succeeded despite a search failure")
	}
	if m.GalleryState() != GalleryUninitialized {
		t.Errorf("state = %s, want uninitialized", m.GalleryState())
	}
}

func TestGalleryBasemapsWithoutGallery(t *testing.T) {
	m, recorder := newTestMap(t, Options{})
	names, err := m.GalleryBasemaps(context.Background())
	if err != nil || len(names) != 0 {
		t.Errorf("GalleryBasemaps = %v, %v", names, err)
	}
	if m.GalleryState() != GalleryUninitialized || recorder.Len() != 0 {
		t.Errorf("state = %s, published %d", m.GalleryState(), recorder.Len())
	}
}

func TestGalleryQueryOverride(t *testing.T) {
	gallery := newFakeGallery()
	m, _ := newTestMap(t, Options{Gallery: gallery, GalleryQuery: "id:custom", GalleryOrgOnly: true})
	if _, err := m.GalleryBasemaps(context.Background()); err != nil {
		t.Fatalf("GalleryBasemaps: %v", err)
	}
	if gallery.lastQuery != "id:custom" || gallery.lastOutside {
		t.Errorf("search query = %q outside = %v", gallery.lastQuery, gallery.lastOutside)
	}
}

func TestGalleryStateString(t *testing.T) {
	for state, want := range map[GalleryState]string{
		GalleryUninitialized:  "uninitialized",
		GalleryLoaded:         "loaded",
		GalleryEmptyRetryable: "empty-retryable",
		GalleryState(9):       "GalleryState(9)",
	} {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(state), state.String(), want)
		}
	}
}

func TestGalleryFromPortalSession(t *testing.T) {
	server := portaltest.NewServer(t, portaltest.Fixture{
		Username:   "analyst",
		Password:   "hunter2",
		Properties: portal.Properties{ID: "org-1", BasemapGalleryGroupQuery: `title:"Basemaps"`},
		Groups:     []portal.Group{{ID: "g1", Title: "Basemaps"}},
		GroupItems: map[string][]portal.Item{
			"g1": {{ID: "a", Title: "Dark Matter", Type: "Web Map"}},
		},
		ItemData: map[string]map[string]any{"a": basemapData("dark")},
	})
	client, err := portal.NewClient(portal.ClientConfig{URL: server.PortalURL()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	password, err := secret.NewFromString("hunter2")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	defer password.Close()
	session, err := client.Login(context.Background(), "analyst", password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	defer session.Close()

	m, _ := newTestMap(t, Options{Session: session, Gallery: session})
	if !strings.HasPrefix(m.ContentURL(), "https://") {
		t.Errorf("ContentURL = %q, want https", m.ContentURL())
	}

	ok, err := m.SetBasemap(context.Background(), "dark_matter")
	if err != nil || !ok {
		t.Fatalf("SetBasemap = %v, %v", ok, err)
	}
	if m.Basemap() != "dark_matter" {
		t.Errorf("Basemap = %q", m.Basemap())
	}
	if server.Count("community/groups") != 1 {
		t.Errorf("group searches = %d, want 1", server.Count("community/groups"))
	}
}
