// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"slices"

	"github.com/agnivade/levenshtein"
)

// Basemap returns the current basemap name.
func (m *Map) Basemap() string { return m.store.String(FieldBasemap) }

// SetBasemap switches the basemap. name must be a built-in basemap or,
// after loading the gallery, a gallery basemap. An unknown name is
// reported to the Reporter with the closest known name, and the
// current basemap is kept; SetBasemap returns false with a nil error.
// A gallery load failure is returned.
func (m *Map) SetBasemap(ctx context.Context, name string) (bool, error) {
	if slices.Contains(m.Basemaps(), name) {
		return true, m.commitBasemap(name)
	}

	gallery, err := m.GalleryBasemaps(ctx)
	if err != nil {
		return false, err
	}
	if slices.Contains(gallery, name) {
		return true, m.commitBasemap(name)
	}

	m.reportInvalidBasemap(name, append(m.Basemaps(), gallery...))
	return false, nil
}

func (m *Map) commitBasemap(name string) error {
	m.store.Set(FieldBasemap, name)
	return m.store.Commit()
}

func (m *Map) reportInvalidBasemap(name string, known []string) {
	args := []any{"basemap", name, "current", m.Basemap()}
	if suggestion := suggestName(name, known); suggestion != "" {
		args = append(args, "suggestion", suggestion)
	}
	m.reporter.Warn("not a valid basemap name", args...)
}

// knownBasemap reports whether name is built in or already in the
// loaded gallery. It never queries the portal.
func (m *Map) knownBasemap(name string) bool {
	return slices.Contains(m.Basemaps(), name) || slices.Contains(m.cachedGallery(), name)
}

// suggestName returns the candidate closest to name by edit distance,
// or "" when nothing is close enough to be a plausible typo.
func suggestName(name string, candidates []string) string {
	best := ""
	bestDistance := len(name)/3 + 2
	for _, candidate := range candidates {
		distance := levenshtein.ComputeDistance(name, candidate)
		if distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}
	return best
}
