// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Shape is something Draw can put on the map. The variants are
// PointPair, GeocodedLocation, FeatureCollection, Geometry, and
// ToolCommand.
type Shape interface {
	isShape()
}

// PointPair is a WGS84 point given as latitude then longitude.
type PointPair struct {
	Lat float64
	Lon float64
}

// Location is a point in the geocoder's x/y form.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GeocodedLocation is a geocoder result. Only its location is drawn.
type GeocodedLocation struct {
	Location Location
	Address  string
}

// Feature is one feature of a FeatureCollection.
type Feature struct {
	Geometry   map[string]any `json:"geometry"`
	Attributes map[string]any `json:"attributes"`
}

// FeatureCollection draws one graphic per feature. Each graphic carries
// its feature's geometry and attributes and the shared popup and
// symbol.
type FeatureCollection struct {
	Features []Feature
}

// Geometry is a geometry object in the view's JSON form, for example
// {"rings": [...], "spatialReference": {...}}.
type Geometry map[string]any

// ToolCommand is written to the mode channel verbatim: a drawing tool
// name or "navigate".
type ToolCommand string

func (PointPair) isShape()         {}
func (GeocodedLocation) isShape()  {}
func (FeatureCollection) isShape() {}
func (Geometry) isShape()          {}
func (ToolCommand) isShape()       {}

// wgs84 is the spatial reference of points given in degrees.
var wgs84 = map[string]any{"wkid": 4326}

func pointGeometry(x, y float64) map[string]any {
	return map[string]any{
		"x":                x,
		"y":                y,
		"spatialReference": wgs84,
		"type":             "point",
	}
}

// graphic is the envelope the view draws. Absent parts serialize as
// null.
type graphic struct {
	Geometry     any            `json:"geometry"`
	InfoTemplate *Popup         `json:"infoTemplate"`
	Symbol       map[string]any `json:"symbol"`
	Attributes   map[string]any `json:"attributes"`
}

type graphicOptions struct {
	popup      *Popup
	symbol     map[string]any
	attributes map[string]any
}

// GraphicOption sets an optional part of a drawn graphic.
type GraphicOption func(*graphicOptions)

// WithPopup shows popup when the graphic is clicked.
func WithPopup(popup Popup) GraphicOption {
	return func(options *graphicOptions) { options.popup = &popup }
}

// WithSymbol draws the graphic with symbol instead of the view's
// default for its geometry type.
func WithSymbol(symbol map[string]any) GraphicOption {
	return func(options *graphicOptions) { options.symbol = symbol }
}

// WithAttributes attaches attributes to the graphic. Feature
// collections use each feature's own attributes instead.
func WithAttributes(attributes map[string]any) GraphicOption {
	return func(options *graphicOptions) { options.attributes = attributes }
}

// Draw puts shape on the map. Every graphic is a separate write to the
// mode channel, so a collection of N features produces N updates.
func (m *Map) Draw(shape Shape, opts ...GraphicOption) error {
	var options graphicOptions
	for _, opt := range opts {
		opt(&options)
	}

	switch shape := shape.(type) {
	case PointPair:
		return m.emitGraphic(pointGeometry(shape.Lon, shape.Lat), options, options.attributes)
	case GeocodedLocation:
		return m.emitGraphic(pointGeometry(shape.Location.X, shape.Location.Y), options, options.attributes)
	case FeatureCollection:
		for index, feature := range shape.Features {
			if err := m.emitGraphic(feature.Geometry, options, feature.Attributes); err != nil {
				return fmt.Errorf("mapview: drawing feature %d: %w", index, err)
			}
		}
		return nil
	case Geometry:
		return m.emitGraphic(map[string]any(shape), options, options.attributes)
	case ToolCommand:
		if err := checkCommand(string(shape)); err != nil {
			return err
		}
		return m.store.Emit(FieldMode, string(shape))
	case nil:
		return fmt.Errorf("mapview: Draw called with a nil shape")
	default:
		return fmt.Errorf("mapview: unsupported shape %T", shape)
	}
}

func (m *Map) emitGraphic(geometry any, options graphicOptions, attributes map[string]any) error {
	encoded, err := json.Marshal(graphic{
		Geometry:     geometry,
		InfoTemplate: options.popup,
		Symbol:       options.symbol,
		Attributes:   attributes,
	})
	if err != nil {
		return fmt.Errorf("mapview: encoding graphic: %w", err)
	}
	return m.store.Emit(FieldMode, string(encoded))
}

func checkCommand(command string) error {
	if command == "" {
		return fmt.Errorf("mapview: empty mode command")
	}
	if strings.HasPrefix(command, ReservedPrefix) {
		return fmt.Errorf("%w: %q", ErrReservedCommand, command)
	}
	return nil
}

// ParseShape maps untyped JSON onto a Shape:
//
//	"polygon"                         ToolCommand
//	[lat, lon]                        PointPair
//	{"location": {"x":..,"y":..}}     GeocodedLocation
//	{"features": [...]}               FeatureCollection
//	any other object                  Geometry
func ParseShape(raw json.RawMessage) (Shape, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("mapview: empty shape")
	}

	switch trimmed[0] {
	case '"':
		var command string
		if err := json.Unmarshal(trimmed, &command); err != nil {
			return nil, fmt.Errorf("mapview: parsing tool command: %w", err)
		}
		return ToolCommand(command), nil

	case '[':
		var pair []float64
		if err := json.Unmarshal(trimmed, &pair); err != nil {
			return nil, fmt.Errorf("mapview: shape array must be [lat, lon]: %w", err)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("mapview: shape array must be [lat, lon], got %d elements", len(pair))
		}
		return PointPair{Lat: pair[0], Lon: pair[1]}, nil

	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, fmt.Errorf("mapview: parsing shape object: %w", err)
		}
		if location, ok := object["location"]; ok {
			var geocoded struct {
				Location Location `json:"location"`
				Address  string   `json:"address"`
			}
			if err := json.Unmarshal(trimmed, &geocoded); err != nil {
				return nil, fmt.Errorf("mapview: parsing location %s: %w", location, err)
			}
			return GeocodedLocation{Location: geocoded.Location, Address: geocoded.Address}, nil
		}
		if _, ok := object["features"]; ok {
			var collection struct {
				Features []Feature `json:"features"`
			}
			if err := json.Unmarshal(trimmed, &collection); err != nil {
				return nil, fmt.Errorf("mapview: parsing feature collection: %w", err)
			}
			return FeatureCollection{Features: collection.Features}, nil
		}
		var geometry map[string]any
		if err := json.Unmarshal(trimmed, &geometry); err != nil {
			return nil, fmt.Errorf("mapview: parsing geometry: %w", err)
		}
		return Geometry(geometry), nil

	default:
		return nil, fmt.Errorf("mapview: shape must be a string, [lat, lon] pair, or object")
	}
}
