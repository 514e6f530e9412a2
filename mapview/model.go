// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/bureau-foundation/mapview/comm"
	"github.com/bureau-foundation/mapview/portal"
	"github.com/google/uuid"
)

// Credentials is the authentication context a map passes to its view.
// *portal.Session implements it. An empty Username means anonymous.
type Credentials interface {
	BaseURL() string
	Username() string
	Password() string
}

// ItemRef is a source item: a *portal.Item or a *portal.WebMap, which
// is unwrapped to its item.
type ItemRef interface {
	MapItem() *portal.Item
}

// Reporter receives non-fatal diagnostics, such as a rejected basemap
// name. *slog.Logger implements it.
type Reporter interface {
	Warn(message string, args ...any)
}

// Options configures a Map. Every field is optional.
type Options struct {
	// Session authenticates the view against the portal. Non-anonymous
	// sessions put a credential bundle into the synchronized state.
	Session Credentials

	// Item is a web map to load into the view.
	Item ItemRef

	// Gallery supplies gallery basemaps. *portal.Session implements it.
	// Without one, only the built-in basemaps are valid.
	Gallery Gallery

	// GalleryQuery overrides the portal's basemap gallery group query.
	GalleryQuery string

	// GalleryOrgOnly restricts the gallery group search to the
	// session's organization.
	GalleryOrgOnly bool

	// Sink receives published updates, typically comm.Hub.Sink(). Nil
	// discards.
	Sink comm.Sink

	// CommID names the comm. Defaults to a random UUID.
	CommID string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Reporter defaults to Logger.
	Reporter Reporter

	// Random generates the swipe element id. Defaults to the global
	// source.
	Random *rand.Rand
}

// Map is the model side of a map widget. Its methods are safe for
// concurrent use; view messages may arrive on transport goroutines
// while commands are issued elsewhere.
type Map struct {
	store    *comm.Store
	logger   *slog.Logger
	reporter Reporter
	item     *portal.Item

	gallery        Gallery
	galleryQuery   string
	galleryOrgOnly bool
	galleryMu      sync.Mutex
	galleryState   GalleryState

	// extentFromView is true when the view reported an extent after the
	// last local SetExtent.
	extentMu       sync.Mutex
	extentFromView bool

	clicks   *Dispatcher
	drawEnds *Dispatcher
}

// tokenInfo is the credential bundle a view uses to authenticate
// against the portal. Field order is kept for views that compare the
// serialized string.
type tokenInfo struct {
	Server   string `json:"server"`
	TokenURL string `json:"tokenurl"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// New creates a Map. It fails with an *ItemTypeError when Item is not a
// web map.
func New(options Options) (*Map, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := options.Reporter
	if reporter == nil {
		reporter = logger
	}
	commID := options.CommID
	if commID == "" {
		commID = uuid.NewString()
	}
	logger = logger.With("comm_id", commID)

	state := defaultState(newSwipeDiv(options.Random))

	if options.Session != nil && options.Session.Username() != "" {
		baseURL := options.Session.BaseURL()
		encoded, err := json.Marshal(tokenInfo{
			Server:   forceHTTPS(baseURL),
			TokenURL: forceHTTPS(baseURL + "generateToken"),
			Username: options.Session.Username(),
			Password: options.Session.Password(),
		})
		if err != nil {
			return nil, fmt.Errorf("mapview: encoding credential bundle: %w", err)
		}
		state[FieldTokenInfo] = string(encoded)
		state[FieldContentURL] = forceHTTPS(baseURL + "content/items")
	}

	var item *portal.Item
	if options.Item != nil {
		item = options.Item.MapItem()
	}
	if item != nil {
		if item.Type != "" && !item.IsWebMap() {
			return nil, &ItemTypeError{ItemID: item.ID, Type: item.Type}
		}
		state[FieldItemID] = item.ID
	}

	m := &Map{
		store:          comm.NewStore(commID, options.Sink, state, channelFields...),
		logger:         logger,
		reporter:       reporter,
		item:           item,
		gallery:        options.Gallery,
		galleryQuery:   options.GalleryQuery,
		galleryOrgOnly: options.GalleryOrgOnly,
		clicks:         NewDispatcher("mouseclick", logger),
		drawEnds:       NewDispatcher("draw-end", logger),
	}
	logger.Debug("map created",
		"item_id", state[FieldItemID],
		"authenticated", state[FieldTokenInfo] != "",
		"swipe_div", state[FieldSwipeDiv],
	)
	return m, nil
}

func forceHTTPS(rawURL string) string {
	return strings.ReplaceAll(rawURL, "http://", "https://")
}

// CommID returns the comm the map publishes under.
func (m *Map) CommID() string { return m.store.CommID() }

// Item returns the source item, or nil.
func (m *Map) Item() *portal.Item { return m.item }

// Snapshot returns the full synchronized state.
func (m *Map) Snapshot() (comm.Message, error) { return m.store.Snapshot() }

// State returns a copy of the synchronized state.
func (m *Map) State() map[string]any {
	snapshot, err := m.store.Snapshot()
	if err != nil {
		return nil
	}
	return snapshot.State
}

// Zoom returns the current zoom level.
func (m *Map) Zoom() int {
	value, _ := m.store.Get(FieldZoom)
	zoom, _ := toFloat(value)
	return int(zoom)
}

// SetZoom sets the zoom level. Negative levels are rejected.
func (m *Map) SetZoom(zoom int) error {
	if zoom < 0 {
		return fmt.Errorf("mapview: zoom must be >= 0, got %d", zoom)
	}
	m.store.Set(FieldZoom, zoom)
	return m.store.Commit()
}

// Center returns the map center as latitude and longitude.
func (m *Map) Center() (latitude, longitude float64) {
	value, _ := m.store.Get(FieldCenter)
	switch pair := value.(type) {
	case []float64:
		if len(pair) == 2 {
			return pair[0], pair[1]
		}
	case []any:
		if len(pair) == 2 {
			latitude, _ = toFloat(pair[0])
			longitude, _ = toFloat(pair[1])
			return latitude, longitude
		}
	}
	return 0, 0
}

// SetCenter moves the map center.
func (m *Map) SetCenter(latitude, longitude float64) error {
	if latitude < -90 || latitude > 90 {
		return fmt.Errorf("mapview: latitude %v out of range [-90, 90]", latitude)
	}
	m.store.Set(FieldCenter, []float64{latitude, longitude})
	return m.store.Commit()
}

// Width returns the CSS width of the view.
func (m *Map) Width() string { return m.store.String(FieldWidth) }

// SetWidth sets the CSS width of the view.
func (m *Map) SetWidth(width string) error {
	if width == "" {
		return fmt.Errorf("mapview: width must not be empty")
	}
	m.store.Set(FieldWidth, width)
	return m.store.Commit()
}

// Mode returns the last value written to the mode channel.
func (m *Map) Mode() string { return m.store.String(FieldMode) }

// SetMode switches the view's interaction mode, for example to a
// drawing tool or back to navigate.
func (m *Map) SetMode(mode string) error {
	if err := checkCommand(mode); err != nil {
		return err
	}
	return m.store.Emit(FieldMode, mode)
}

// ItemID returns the web map item the view loads, or "".
func (m *Map) ItemID() string { return m.store.String(FieldItemID) }

// SwipeDiv returns the DOM id of the view's swipe element.
func (m *Map) SwipeDiv() string { return m.store.String(FieldSwipeDiv) }

// TokenInfo returns the serialized credential bundle, or "".
func (m *Map) TokenInfo() string { return m.store.String(FieldTokenInfo) }

// ContentURL returns the portal content base URL, or "".
func (m *Map) ContentURL() string { return m.store.String(FieldContentURL) }

// Basemaps returns the built-in basemap names.
func (m *Map) Basemaps() []string {
	value, _ := m.store.Get(FieldBasemaps)
	return stringList(value)
}

// TimeExtent returns the time filter bounds.
func (m *Map) TimeExtent() (start, end string) {
	return m.store.String(FieldStartTime), m.store.String(FieldEndTime)
}

// SetTimeExtent sets both time filter bounds. They reach the view in a
// single update.
func (m *Map) SetTimeExtent(start, end string) error {
	m.store.Set(FieldStartTime, start)
	m.store.Set(FieldEndTime, end)
	return m.store.Commit()
}

// ClearGraphics tells the view to remove every drawn graphic.
func (m *Map) ClearGraphics() error {
	return m.store.Emit(FieldMode, CommandClearGraphics)
}

// RemoveLayers tells the view to remove every added layer.
func (m *Map) RemoveLayers() error {
	return m.store.Emit(FieldMode, CommandRemoveLayers)
}

// Close removes every registered callback.
func (m *Map) Close() error {
	m.clicks.Clear()
	m.drawEnds.Clear()
	return nil
}

// The portal session is the usual collaborator.
var (
	_ Credentials = (*portal.Session)(nil)
	_ Gallery     = (*portal.Session)(nil)
	_ ItemRef     = (*portal.Item)(nil)
	_ ItemRef     = (*portal.WebMap)(nil)
)
