// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/mapview/portal"
)

// Gallery is the portal surface gallery basemaps are loaded from.
// *portal.Session implements it.
type Gallery interface {
	Properties(ctx context.Context) (*portal.Properties, error)
	SearchGroups(ctx context.Context, query string, outsideOrg bool) ([]portal.Group, error)
	GroupContent(ctx context.Context, groupID string) ([]portal.Item, error)
	ItemData(ctx context.Context, itemID string) (map[string]any, error)
}

// GalleryState tracks whether gallery basemaps have been loaded.
type GalleryState int

const (
	// GalleryUninitialized: no load attempted yet.
	GalleryUninitialized GalleryState = iota
	// GalleryLoaded: the gallery group was found and read. Later
	// accesses return the cached lists without querying.
	GalleryLoaded
	// GalleryEmptyRetryable: the last attempt found zero or several
	// matching groups. The next access queries again.
	GalleryEmptyRetryable
)

func (s GalleryState) String() string {
	switch s {
	case GalleryUninitialized:
		return "uninitialized"
	case GalleryLoaded:
		return "loaded"
	case GalleryEmptyRetryable:
		return "empty-retryable"
	default:
		return fmt.Sprintf("GalleryState(%d)", int(s))
	}
}

// GalleryState returns the gallery load state.
func (m *Map) GalleryState() GalleryState {
	m.galleryMu.Lock()
	defer m.galleryMu.Unlock()
	return m.galleryState
}

// GalleryBasemaps returns the names of the portal's gallery basemaps,
// loading them on first use. The portal's basemap gallery group query
// must match exactly one group; each web map in it contributes a name
// (its title lowercased, spaces replaced by underscores) and its
// baseMapLayers definition. Web maps without data are skipped. If zero
// or several groups match, the cached (possibly empty) list is returned
// and the next call tries again. Transport errors are returned and
// leave the state unchanged.
func (m *Map) GalleryBasemaps(ctx context.Context) ([]string, error) {
	m.galleryMu.Lock()
	defer m.galleryMu.Unlock()

	if m.galleryState == GalleryLoaded || m.gallery == nil {
		return m.cachedGallery(), nil
	}

	query := m.galleryQuery
	if query == "" {
		properties, err := m.gallery.Properties(ctx)
		if err != nil {
			return nil, fmt.Errorf("mapview: reading portal properties: %w", err)
		}
		query = properties.BasemapGalleryGroupQuery
	}
	if query == "" {
		m.logger.Debug("portal has no basemap gallery group query")
		m.galleryState = GalleryEmptyRetryable
		return m.cachedGallery(), nil
	}

	groups, err := m.gallery.SearchGroups(ctx, query, !m.galleryOrgOnly)
	if err != nil {
		return nil, fmt.Errorf("mapview: searching basemap gallery group: %w", err)
	}
	if len(groups) != 1 {
		m.logger.Debug("basemap gallery group not found",
			"query", query,
			"matches", len(groups),
		)
		m.galleryState = GalleryEmptyRetryable
		return m.cachedGallery(), nil
	}

	items, err := m.gallery.GroupContent(ctx, groups[0].ID)
	if err != nil {
		return nil, fmt.Errorf("mapview: listing basemap gallery group %s: %w", groups[0].ID, err)
	}

	var names []string
	var definitions []any
	for _, item := range items {
		if !item.IsWebMap() {
			continue
		}
		data, err := m.gallery.ItemData(ctx, item.ID)
		if err != nil {
			m.logger.Warn("skipping gallery web map with unreadable data",
				"item_id", item.ID,
				"title", item.Title,
				"error", err,
			)
			continue
		}
		layers := portal.BasemapLayers(data)
		if layers == nil {
			m.logger.Debug("skipping gallery web map without basemap layers", "item_id", item.ID, "title", item.Title)
			continue
		}
		names = append(names, galleryName(item.Title))
		definitions = append(definitions, layers)
	}

	currentNames, _ := m.store.Get(FieldGalleryBasemaps)
	currentDefinitions, _ := m.store.Get(FieldGalleryDefinitions)
	m.store.Set(FieldGalleryBasemaps, append(stringList(currentNames), names...))
	m.store.Set(FieldGalleryDefinitions, append(anyList(currentDefinitions), definitions...))
	if err := m.store.Commit(); err != nil {
		return nil, err
	}
	m.galleryState = GalleryLoaded

	m.logger.Info("loaded gallery basemaps",
		"group_id", groups[0].ID,
		"count", len(names),
	)
	return m.cachedGallery(), nil
}

func (m *Map) cachedGallery() []string {
	value, _ := m.store.Get(FieldGalleryBasemaps)
	list := stringList(value)
	if list == nil {
		list = []string{}
	}
	return list
}

// GalleryDefinitions returns the baseMapLayers definition of each gallery
// basemap, aligned with GalleryBasemaps.
func (m *Map) GalleryDefinitions() []any {
	value, _ := m.store.Get(FieldGalleryDefinitions)
	return anyList(value)
}

func galleryName(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "_")
}
