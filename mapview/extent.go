// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"encoding/json"
	"fmt"
	"maps"
)

// ExtentValue is an extent SetExtent accepts: Corners or ExtentMap.
type ExtentValue interface {
	extentObject() map[string]any
}

// Corners is an extent given as its lower-left and upper-right corners:
// {{xmin, ymin}, {xmax, ymax}}.
type Corners [2][2]float64

func (c Corners) extentObject() map[string]any {
	return map[string]any{
		"xmin": c[0][0],
		"ymin": c[0][1],
		"xmax": c[1][0],
		"ymax": c[1][1],
	}
}

// ExtentMap is an extent already in the view's form, optionally with a
// spatialReference. It is passed through unchanged.
type ExtentMap map[string]any

func (e ExtentMap) extentObject() map[string]any { return maps.Clone(map[string]any(e)) }

// SetExtent asks the view to show value. The request is published even
// when value equals the last requested extent if the view has reported
// its own extent since.
func (m *Map) SetExtent(value ExtentValue) error {
	if value == nil {
		return fmt.Errorf("mapview: SetExtent called with a nil extent")
	}
	encoded, err := json.Marshal(value.extentObject())
	if err != nil {
		return fmt.Errorf("mapview: encoding extent: %w", err)
	}

	m.extentMu.Lock()
	defer m.extentMu.Unlock()
	staged := m.store.Set(FieldExtent, string(encoded))
	viewMoved := m.extentFromView
	m.extentFromView = false
	if !staged && viewMoved {
		return m.store.Emit(FieldExtent, string(encoded))
	}
	return m.store.Commit()
}

// Extent returns the most recent extent: the one last reported by the
// view, or the one last set locally if that came later. It returns nil
// when neither is set, and an error when the stored value is not a JSON
// object.
func (m *Map) Extent() (map[string]any, error) {
	m.extentMu.Lock()
	field := FieldExtent
	if m.extentFromView {
		field = FieldViewExtent
	}
	m.extentMu.Unlock()

	serialized := m.store.String(field)
	if serialized == "" {
		return nil, nil
	}
	var extent map[string]any
	if err := json.Unmarshal([]byte(serialized), &extent); err != nil {
		return nil, fmt.Errorf("mapview: malformed %s %q: %w", field, serialized, err)
	}
	return extent, nil
}
