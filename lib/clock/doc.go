// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// The comm hub's keepalive loop and the map model's event timestamps
// take a Clock instead of calling time.Now or time.NewTicker directly.
// In production, Real() provides the standard library behavior. In
// tests, Fake() provides a deterministic clock that advances only when
// Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	hub := comm.NewHub(comm.HubConfig{Clock: c})
//	// ... attach a connection ...
//	c.WaitForTimers(1)          // the keepalive ticker is registered
//	c.Advance(30 * time.Second) // fire one keepalive deterministically
package clock
