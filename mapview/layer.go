// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/bureau-foundation/mapview/portal"
)

// LayerSource is something AddLayer can add. The variants are
// LayerList, FunctionChainLayer, SingleLayer, LayeredContainer, and
// RawDescriptor.
type LayerSource interface {
	isLayerSource()
}

// LayerList adds each element in order.
type LayerList []LayerSource

// FunctionChainLayer is an imagery layer with a rendering rule applied
// server-side.
type FunctionChainLayer struct {
	Layer         portal.LayerDescriber
	FunctionChain map[string]any
}

// SingleLayer is one service layer.
type SingleLayer struct {
	Layer portal.LayerDescriber
}

// LayeredContainer is an item or service whose layers are all added.
type LayeredContainer struct {
	Container portal.LayerContainer
	// Name describes the container in errors. Optional.
	Name string
}

// RawDescriptor is a layer descriptor written by hand, for example
// {"url": ..., "type": "FeatureLayer", "opacity": 0.5}.
type RawDescriptor map[string]any

func (LayerList) isLayerSource()          {}
func (FunctionChainLayer) isLayerSource() {}
func (SingleLayer) isLayerSource()        {}
func (LayeredContainer) isLayerSource()   {}
func (RawDescriptor) isLayerSource()      {}

// AddLayer adds source to the view, one _addlayer update per layer.
// options, when non-nil, become the descriptor's "options" JSON string:
// merged into an imagery rendering rule or a layer's existing options,
// set directly otherwise. An empty LayerList adds nothing. A container
// with no layers fails with *ResourceUnavailableError.
func (m *Map) AddLayer(ctx context.Context, source LayerSource, options map[string]any) error {
	switch source := source.(type) {
	case LayerList:
		for index, element := range source {
			if err := m.AddLayer(ctx, element, options); err != nil {
				return fmt.Errorf("mapview: adding layer %d of %d: %w", index+1, len(source), err)
			}
		}
		return nil

	case FunctionChainLayer:
		if source.Layer == nil {
			return fmt.Errorf("mapview: function chain layer has no layer")
		}
		descriptor := source.Layer.LayerJSON()
		merged := map[string]any{
			"imageServiceParameters": map[string]any{
				"renderingRule": source.FunctionChain,
			},
		}
		mergeOptions(merged, options)
		if err := setOptions(descriptor, merged); err != nil {
			return err
		}
		return m.emitLayer(descriptor)

	case SingleLayer:
		if source.Layer == nil {
			return fmt.Errorf("mapview: single layer is nil")
		}
		descriptor := source.Layer.LayerJSON()
		if options != nil {
			if existing, ok := descriptor["options"].(string); ok && existing != "" {
				var parsed map[string]any
				if err := json.Unmarshal([]byte(existing), &parsed); err != nil {
					return fmt.Errorf("mapview: layer %v has malformed options: %w", descriptor["url"], err)
				}
				if parsed == nil {
					parsed = make(map[string]any)
				}
				mergeOptions(parsed, options)
				if err := setOptions(descriptor, parsed); err != nil {
					return err
				}
			} else if err := setOptions(descriptor, options); err != nil {
				return err
			}
		}
		return m.emitLayer(descriptor)

	case LayeredContainer:
		if source.Container == nil {
			return &ResourceUnavailableError{Source: source.Name}
		}
		layers, err := source.Container.ContainerLayers(ctx)
		if err != nil {
			return fmt.Errorf("mapview: listing layers of %s: %w", containerName(source), err)
		}
		if len(layers) == 0 {
			return &ResourceUnavailableError{Source: source.Name}
		}
		for _, layer := range layers {
			descriptor := layer.LayerJSON()
			if options != nil {
				if err := setOptions(descriptor, options); err != nil {
					return err
				}
			}
			if err := m.emitLayer(descriptor); err != nil {
				return err
			}
		}
		return nil

	case RawDescriptor:
		descriptor := maps.Clone(map[string]any(source))
		if descriptor == nil {
			descriptor = make(map[string]any)
		}
		if options != nil {
			if err := setOptions(descriptor, options); err != nil {
				return err
			}
		}
		return m.emitLayer(descriptor)

	case nil:
		return fmt.Errorf("mapview: AddLayer called with a nil source")
	default:
		return fmt.Errorf("mapview: unsupported layer source %T", source)
	}
}

func containerName(container LayeredContainer) string {
	if container.Name != "" {
		return container.Name
	}
	return "container"
}

func (m *Map) emitLayer(descriptor map[string]any) error {
	encoded, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("mapview: encoding layer descriptor: %w", err)
	}
	m.logger.Debug("adding layer", "url", descriptor["url"], "type", descriptor["type"])
	return m.store.Emit(FieldAddLayer, string(encoded))
}

// setOptions stores options in descriptor as a JSON string, the form
// the view parses.
func setOptions(descriptor, options map[string]any) error {
	encoded, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("mapview: encoding layer options: %w", err)
	}
	descriptor["options"] = string(encoded)
	return nil
}

// mergeOptions merges source into target. Nested objects merge key by
// key; any other value in source replaces the target's.
func mergeOptions(target, source map[string]any) {
	for key, value := range source {
		sourceMap, sourceIsMap := value.(map[string]any)
		targetMap, targetIsMap := target[key].(map[string]any)
		if sourceIsMap && targetIsMap {
			merged := maps.Clone(targetMap)
			mergeOptions(merged, sourceMap)
			target[key] = merged
			continue
		}
		target[key] = value
	}
}
