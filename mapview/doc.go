// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mapview implements the model side of an interactive map
// widget. A [Map] holds the fields mirrored to a browser view (basemap,
// zoom, center, extent, time extent, credentials) and turns commands
// such as [Map.Draw] and [Map.AddLayer] into messages on the view's
// comm channel.
//
// State fields are published through a [comm.Store]: setting a field to
// its current value publishes nothing. The "mode" and "_addlayer"
// fields are channels instead: every draw command, layer command, and
// the "###clear_graphics" and "###remove_layers" sentinels reach the
// view as separate updates in call order, even when two consecutive
// values are equal.
//
// A Map is a [comm.Endpoint]: register it with a [comm.Hub] to serve it
// to websocket or stream connections. Messages from the view arrive
// through [Map.HandleMessage], which applies view-owned fields and
// dispatches click and draw-end events to callbacks registered with
// [Map.OnClick] and [Map.OnDrawEnd].
//
// Gallery basemaps are loaded lazily from the portal the first time a
// name outside [BuiltinBasemaps] is requested or [Map.GalleryBasemaps]
// is called.
package mapview
