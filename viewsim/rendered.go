// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewsim

import "encoding/json"

// Rendered is what a view shows.
type Rendered struct {
	Basemap       RenderedBasemap  `json:"basemap"`
	Zoom          float64          `json:"zoom"`
	Center        []float64        `json:"center"`
	Width         string           `json:"width"`
	Extent        map[string]any   `json:"extent"`
	ViewExtent    map[string]any   `json:"viewExtent"`
	Tool          string           `json:"tool"`
	Graphics      []Graphic        `json:"graphics"`
	Layers        []map[string]any `json:"layers"`
	Cleared       int              `json:"cleared"`
	Removed       int              `json:"removed"`
	TimeExtent    TimeExtent       `json:"timeExtent"`
	ItemID        string           `json:"itemId"`
	Authenticated bool             `json:"authenticated"`
	ContentURL    string           `json:"contentUrl"`
	SwipeDiv      string           `json:"swipeDiv"`
}

// RenderedBasemap is the resolved basemap. Source is "builtin",
// "gallery", or "unknown"; gallery basemaps carry their layer
// definition.
type RenderedBasemap struct {
	Name   string          `json:"name"`
	Source string          `json:"source"`
	Layers json.RawMessage `json:"layers"`
}

// Graphic is a drawn graphic.
type Graphic struct {
	Geometry     map[string]any `json:"geometry"`
	InfoTemplate map[string]any `json:"infoTemplate"`
	Symbol       map[string]any `json:"symbol"`
	Attributes   map[string]any `json:"attributes"`
}

// TimeExtent is the view's time filter.
type TimeExtent struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
