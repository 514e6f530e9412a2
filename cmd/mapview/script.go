// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/mapview/mapview"
	"github.com/bureau-foundation/mapview/portal"
	"github.com/bureau-foundation/mapview/viewsim"
)

// step is one command of a script. Op selects the command; the other
// fields are its arguments.
//
//	{"op": "basemap", "name": "satellite"}
//	{"op": "zoom", "value": 8}
//	{"op": "center", "value": [34.05, -118.25]}
//	{"op": "width", "value": "800px"}
//	{"op": "mode", "name": "polygon"}
//	{"op": "draw", "shape": [34.05, -118.25], "popup": {"title": "LA", "markdown": "**City**"}}
//	{"op": "clear_graphics"}
//	{"op": "layer", "layer": {"url": "...", "type": "FeatureLayer"}, "options": {"opacity": 0.5}}
//	{"op": "service", "url": "https://.../FeatureServer"}
//	{"op": "item_layers", "item": "a1b2c3"}
//	{"op": "remove_layers"}
//	{"op": "extent", "value": [[-120, 30], [-110, 40]]}
//	{"op": "time_extent", "start": "2020-01-01", "end": "2020-12-31"}
//	{"op": "click", "value": [-118.25, 34.05]}
//	{"op": "draw_end", "shape": {"paths": [...]}}
//	{"op": "pan", "value": [34.05, -118.25], "zoom": 10, "extent": {...}}
//
// click, draw_end, and pan act as the user of a simulated view and
// require --simulate.
type step struct {
	Op         string          `json:"op"`
	Name       string          `json:"name,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Shape      json.RawMessage `json:"shape,omitempty"`
	Popup      *scriptPopup    `json:"popup,omitempty"`
	Symbol     map[string]any  `json:"symbol,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	Layer      map[string]any  `json:"layer,omitempty"`
	Options    map[string]any  `json:"options,omitempty"`
	URL        string          `json:"url,omitempty"`
	Item       string          `json:"item,omitempty"`
	Start      string          `json:"start,omitempty"`
	End        string          `json:"end,omitempty"`
	Zoom       int             `json:"zoom,omitempty"`
	Extent     map[string]any  `json:"extent,omitempty"`
}

// scriptPopup is a popup given as HTML content or as Markdown.
type scriptPopup struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Markdown string `json:"markdown"`
}

// loadScript reads a JSONC script: a JSON array of steps that may carry
// comments and trailing commas.
func loadScript(path string) ([]step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return parseScript(data)
}

func parseScript(data []byte) ([]step, error) {
	var steps []step
	if err := json.Unmarshal(jsonc.ToJSON(data), &steps); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	for index, s := range steps {
		if s.Op == "" {
			return nil, fmt.Errorf("script step %d has no op", index+1)
		}
	}
	return steps, nil
}

// serviceSource resolves portal layers for the service and item_layers
// steps. *portal.Session implements it.
type serviceSource interface {
	Service(ctx context.Context, serviceURL string) (*portal.Service, error)
	Item(ctx context.Context, itemID string) (*portal.Item, error)
	ItemLayers(item *portal.Item) portal.LayerContainer
}

// scriptRunner applies script steps to a map.
type scriptRunner struct {
	m        *mapview.Map
	services serviceSource
	view     *viewsim.View
	logger   *slog.Logger
}

// Run executes steps in order and stops at the first failure.
func (r *scriptRunner) Run(ctx context.Context, steps []step) error {
	for index, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.logger.Debug("running script step", "step", index+1, "op", s.Op)
		if err := r.runStep(ctx, s); err != nil {
			return fmt.Errorf("script step %d (%s): %w", index+1, s.Op, err)
		}
	}
	return nil
}

func (r *scriptRunner) runStep(ctx context.Context, s step) error {
	switch s.Op {
	case "basemap":
		_, err := r.m.SetBasemap(ctx, s.Name)
		return err

	case "zoom":
		var zoom int
		if err := json.Unmarshal(s.Value, &zoom); err != nil {
			return fmt.Errorf("value must be an integer: %w", err)
		}
		return r.m.SetZoom(zoom)

	case "center":
		pair, err := decodePair(s.Value)
		if err != nil {
			return err
		}
		return r.m.SetCenter(pair[0], pair[1])

	case "width":
		var width string
		if err := json.Unmarshal(s.Value, &width); err != nil {
			return fmt.Errorf("value must be a string: %w", err)
		}
		return r.m.SetWidth(width)

	case "mode":
		return r.m.SetMode(s.Name)

	case "draw":
		shape, err := mapview.ParseShape(s.Shape)
		if err != nil {
			return err
		}
		options, err := graphicOptions(s)
		if err != nil {
			return err
		}
		return r.m.Draw(shape, options...)

	case "clear_graphics":
		return r.m.ClearGraphics()

	case "remove_layers":
		return r.m.RemoveLayers()

	case "layer":
		if s.Layer == nil {
			return fmt.Errorf("layer descriptor is required")
		}
		return r.m.AddLayer(ctx, mapview.RawDescriptor(s.Layer), s.Options)

	case "service":
		if r.services == nil {
			return fmt.Errorf("service layers require a portal")
		}
		service, err := r.services.Service(ctx, s.URL)
		if err != nil {
			return err
		}
		return r.m.AddLayer(ctx, mapview.LayeredContainer{Container: service, Name: s.URL}, s.Options)

	case "item_layers":
		if r.services == nil {
			return fmt.Errorf("item layers require a portal")
		}
		item, err := r.services.Item(ctx, s.Item)
		if err != nil {
			return err
		}
		return r.m.AddLayer(ctx, mapview.LayeredContainer{Container: r.services.ItemLayers(item), Name: item.Title}, s.Options)

	case "extent":
		extent, err := decodeExtent(s.Value)
		if err != nil {
			return err
		}
		return r.m.SetExtent(extent)

	case "time_extent":
		return r.m.SetTimeExtent(s.Start, s.End)

	case "click":
		if r.view == nil {
			return fmt.Errorf("click requires --simulate")
		}
		pair, err := decodePair(s.Value)
		if err != nil {
			return err
		}
		return r.view.Click(pair[0], pair[1])

	case "draw_end":
		if r.view == nil {
			return fmt.Errorf("draw_end requires --simulate")
		}
		var geometry map[string]any
		if err := json.Unmarshal(s.Shape, &geometry); err != nil {
			return fmt.Errorf("shape must be a geometry object: %w", err)
		}
		return r.view.FinishDrawing(geometry)

	case "pan":
		if r.view == nil {
			return fmt.Errorf("pan requires --simulate")
		}
		pair, err := decodePair(s.Value)
		if err != nil {
			return err
		}
		return r.view.Pan(pair, s.Zoom, s.Extent)

	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

func graphicOptions(s step) ([]mapview.GraphicOption, error) {
	var options []mapview.GraphicOption
	if s.Popup != nil {
		popup := mapview.Popup{Title: s.Popup.Title, Content: s.Popup.Content}
		if s.Popup.Markdown != "" {
			rendered, err := mapview.MarkdownPopup(s.Popup.Title, s.Popup.Markdown)
			if err != nil {
				return nil, err
			}
			popup = rendered
		}
		options = append(options, mapview.WithPopup(popup))
	}
	if s.Symbol != nil {
		options = append(options, mapview.WithSymbol(s.Symbol))
	}
	if s.Attributes != nil {
		options = append(options, mapview.WithAttributes(s.Attributes))
	}
	return options, nil
}

func decodePair(raw json.RawMessage) ([2]float64, error) {
	var pair [2]float64
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil || len(values) != 2 {
		return pair, fmt.Errorf("value must be a [number, number] pair")
	}
	pair[0], pair[1] = values[0], values[1]
	return pair, nil
}

// decodeExtent accepts [[xmin, ymin], [xmax, ymax]] or an extent
// object.
func decodeExtent(raw json.RawMessage) (mapview.ExtentValue, error) {
	var corners [][]float64
	if err := json.Unmarshal(raw, &corners); err == nil {
		if len(corners) != 2 || len(corners[0]) != 2 || len(corners[1]) != 2 {
			return nil, fmt.Errorf("extent corners must be [[xmin, ymin], [xmax, ymax]]")
		}
		return mapview.Corners{{corners[0][0], corners[0][1]}, {corners[1][0], corners[1][1]}}, nil
	}
	var object map[string]any
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("extent must be a corner pair or an object: %w", err)
	}
	return mapview.ExtentMap(object), nil
}
