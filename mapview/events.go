// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/mapview/comm"
)

// View event names carried in custom messages.
const (
	EventMouseClick = "mouseclick"
	EventDrawEnd    = "draw-end"
)

// OnClick registers callback for map clicks. The payload is the view's
// click message, usually a map with the clicked coordinates.
func (m *Map) OnClick(callback *Callback) bool { return m.clicks.Register(callback) }

// OffClick removes a click callback.
func (m *Map) OffClick(callback *Callback) bool { return m.clicks.Remove(callback) }

// OnDrawEnd registers callback for completed drawings. The payload is
// the drawn geometry.
func (m *Map) OnDrawEnd(callback *Callback) bool { return m.drawEnds.Register(callback) }

// OffDrawEnd removes a draw-end callback.
func (m *Map) OffDrawEnd(callback *Callback) bool { return m.drawEnds.Remove(callback) }

// HandleMessage processes a message from a view. Updates to the fields
// a view owns are recorded without being echoed back; a reported
// basemap that is not known is rejected with a diagnostic. Custom
// events are dispatched to the registered callbacks. Unknown events
// are logged and ignored.
func (m *Map) HandleMessage(message comm.Message) error {
	if message.CommID != "" && message.CommID != m.CommID() {
		return fmt.Errorf("mapview: message for comm %q delivered to %q", message.CommID, m.CommID())
	}

	switch message.Method {
	case comm.MethodUpdate:
		return m.applyViewUpdate(message.State)

	case comm.MethodCustom:
		event, payload, ok := message.Event()
		if !ok {
			return fmt.Errorf("mapview: custom message without an event name")
		}
		switch event {
		case EventMouseClick:
			m.clicks.Dispatch(m, payload)
		case EventDrawEnd:
			m.drawEnds.Dispatch(m, payload)
		default:
			m.logger.Debug("ignoring unknown view event", "event", event)
		}
		return nil

	default:
		return fmt.Errorf("mapview: unexpected %s message from view", message.Method)
	}
}

func (m *Map) applyViewUpdate(state map[string]any) error {
	accepted := make(map[string]any, len(state))
	for _, name := range slices.Sorted(maps.Keys(state)) {
		value := state[name]
		if !viewWritableFields[name] {
			m.logger.Debug("ignoring view update to model-owned field", "field", name)
			continue
		}
		if name == FieldBasemap {
			basemap, ok := value.(string)
			if !ok || !m.knownBasemap(basemap) {
				m.reportInvalidBasemap(fmt.Sprint(value), append(m.Basemaps(), m.cachedGallery()...))
				continue
			}
		}
		accepted[name] = value
	}
	if len(accepted) == 0 {
		return nil
	}

	m.extentMu.Lock()
	changed := m.store.Apply(accepted)
	if slices.Contains(changed, FieldViewExtent) {
		m.extentFromView = true
	}
	m.extentMu.Unlock()

	if len(changed) > 0 {
		m.logger.Debug("applied view update", "fields", changed)
	}
	return nil
}

var _ comm.Endpoint = (*Map)(nil)
