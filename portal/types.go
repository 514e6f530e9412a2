// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"context"
	"encoding/json"
	"maps"
	"strings"
)

// Properties is the subset of portals/self the map uses.
type Properties struct {
	ID                       string         `json:"id"`
	Name                     string         `json:"name"`
	PortalName               string         `json:"portalName"`
	IsPortal                 bool           `json:"isPortal"`
	BasemapGalleryGroupQuery string         `json:"basemapGalleryGroupQuery"`
	DefaultBasemap           map[string]any `json:"defaultBasemap,omitempty"`
}

// Group is a portal group.
type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

// Item is a portal content item.
type Item struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Owner   string `json:"owner"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// IsWebMap reports whether the item's type is "Web Map", ignoring case.
func (i *Item) IsWebMap() bool {
	return strings.EqualFold(i.Type, "web map")
}

// MapItem returns i. It lets an *Item stand wherever a map accepts a
// source item.
func (i *Item) MapItem() *Item { return i }

// WebMap is a web map document: the item plus its JSON definition.
type WebMap struct {
	Item *Item
	Data map[string]any
}

// MapItem unwraps the document to its item.
func (w *WebMap) MapItem() *Item { return w.Item }

// BasemapLayers returns data.baseMap.baseMapLayers, or nil when data
// has no basemap definition.
func BasemapLayers(data map[string]any) []any {
	baseMap, ok := data["baseMap"].(map[string]any)
	if !ok {
		return nil
	}
	layers, _ := baseMap["baseMapLayers"].([]any)
	return layers
}

// LayerDescriber is anything that can describe itself as a map layer
// in the canonical JSON form a view loads.
type LayerDescriber interface {
	LayerJSON() map[string]any
}

// LayerContainer is an item or service exposing a collection of
// layers. A nil or empty result means nothing is accessible.
type LayerContainer interface {
	ContainerLayers(ctx context.Context) ([]LayerDescriber, error)
}

// Layer is a single service layer.
type Layer struct {
	URL  string
	Type string

	// Properties holds additional descriptor keys (opacity, title,
	// options) merged into LayerJSON.
	Properties map[string]any
}

// LayerJSON returns {"url", "type"} plus Properties. The result is a
// fresh map the caller may modify.
func (l *Layer) LayerJSON() map[string]any {
	descriptor := maps.Clone(l.Properties)
	if descriptor == nil {
		descriptor = make(map[string]any, 2)
	}
	descriptor["url"] = l.URL
	descriptor["type"] = l.Type
	return descriptor
}

// ImageryLayer is an image service layer, optionally with a rendering
// rule applied server-side before display.
type ImageryLayer struct {
	Layer
	RenderingRule map[string]any
}

// LayerJSON returns the layer descriptor. A rendering rule travels in
// the descriptor's "options" as a JSON string.
func (l *ImageryLayer) LayerJSON() map[string]any {
	descriptor := l.Layer.LayerJSON()
	if l.RenderingRule != nil {
		options := map[string]any{
			"imageServiceParameters": map[string]any{"renderingRule": l.RenderingRule},
		}
		encoded, err := json.Marshal(options)
		if err == nil {
			descriptor["options"] = string(encoded)
		}
	}
	return descriptor
}

// Service is a service endpoint and the layers it publishes.
type Service struct {
	URL    string
	Name   string
	Layers []LayerDescriber
}

// ContainerLayers returns the service's layers.
func (s *Service) ContainerLayers(context.Context) ([]LayerDescriber, error) {
	return s.Layers, nil
}

// Token is the result of generateToken.
type Token struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
	SSL     bool   `json:"ssl"`
}

// errorEnvelope detects {"error": {...}} in any response.
type errorEnvelope struct {
	Error *PortalError `json:"error"`
}

type groupSearchResponse struct {
	Total   int     `json:"total"`
	Results []Group `json:"results"`
}

type groupContentResponse struct {
	Total int    `json:"total"`
	Items []Item `json:"items"`
}

type serviceResponse struct {
	ServiceDescription string `json:"serviceDescription"`
	Name               string `json:"name"`
	Layers             []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"layers"`
}
