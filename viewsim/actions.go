// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewsim

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/mapview/comm"
	"github.com/bureau-foundation/mapview/lib/version"
)

// Click sends a mouseclick event for the WGS84 point (longitude,
// latitude), shaped like the browser view's click payload.
func (v *View) Click(longitude, latitude float64) error {
	return v.send(comm.NewEvent(v.commID, "mouseclick", map[string]any{
		"mapPoint": map[string]any{
			"x":                longitude,
			"y":                latitude,
			"spatialReference": map[string]any{"wkid": 4326},
		},
	}))
}

// FinishDrawing sends a draw-end event carrying geometry, as the view
// does when the user completes a shape with a drawing tool.
func (v *View) FinishDrawing(geometry map[string]any) error {
	return v.send(comm.NewEvent(v.commID, "draw-end", map[string]any{"geometry": geometry}))
}

// Pan moves the view and reports the new position to the model, as
// the view does after the user pans or zooms.
func (v *View) Pan(center [2]float64, zoom int, extent map[string]any) error {
	encoded, err := json.Marshal(extent)
	if err != nil {
		return fmt.Errorf("viewsim: encoding extent: %w", err)
	}
	state := map[string]any{
		"center":    []float64{center[0], center[1]},
		"zoom":      zoom,
		"_jsextent": string(encoded),
	}
	if err := v.setFields(state); err != nil {
		return err
	}
	return v.send(comm.Message{Method: comm.MethodUpdate, CommID: v.commID, State: state})
}

// SelectBasemap reports that the user picked a basemap in the view's
// basemap switcher.
func (v *View) SelectBasemap(name string) error {
	state := map[string]any{"_basemap": name}
	if err := v.setFields(state); err != nil {
		return err
	}
	return v.send(comm.Message{Method: comm.MethodUpdate, CommID: v.commID, State: state})
}

// Hello returns the message that opens a connection for this view.
func (v *View) Hello() comm.Message {
	return comm.Message{
		Method:   comm.MethodHello,
		CommID:   v.commID,
		Digest:   v.Digest(),
		Protocol: version.Protocol,
	}
}

func (v *View) setFields(state map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	for name, value := range state {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("viewsim: encoding %s: %w", name, err)
		}
		if _, err := v.call("setFieldJSON", name, string(encoded)); err != nil {
			return err
		}
	}
	return nil
}

func (v *View) send(message comm.Message) error {
	if v.deliver == nil {
		return fmt.Errorf("viewsim: view has no model to deliver to")
	}
	if err := v.deliver(message); err != nil {
		return fmt.Errorf("viewsim: delivering %s: %w", message.Method, err)
	}
	return nil
}
