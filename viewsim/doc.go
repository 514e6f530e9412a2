// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package viewsim runs a reference map view headlessly. A [View]
// interprets comm messages with the same conventions a browser view
// must follow: the "###clear_graphics" and "###remove_layers"
// sentinels, JSON graphics on the mode channel, and JSON layer
// descriptors on the _addlayer channel. The reducer is JavaScript
// executed in an embedded goja runtime.
//
// A View is both a [comm.Sink] (wire it directly as a Map's sink) and a
// [comm.Conn] (attach it to a [comm.Hub]). It can also play the user's
// part: [View.Click], [View.FinishDrawing], [View.Pan], and
// [View.SelectBasemap] send the messages a browser view would send.
package viewsim
