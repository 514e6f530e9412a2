// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"errors"
	"fmt"
)

var (
	// ErrItemType is matched by errors.Is for every *ItemTypeError.
	ErrItemType = errors.New("mapview: item type must be web map")

	// ErrResourceUnavailable is matched by errors.Is for every
	// *ResourceUnavailableError.
	ErrResourceUnavailable = errors.New("mapview: no layers accessible or available")

	// ErrReservedCommand is returned when a raw tool command or mode
	// uses the prefix reserved for clear and remove sentinels.
	ErrReservedCommand = errors.New("mapview: command uses the reserved ### prefix")
)

// ItemTypeError reports a source item that is not a web map.
type ItemTypeError struct {
	ItemID string
	Type   string
}

func (e *ItemTypeError) Error() string {
	return fmt.Sprintf("mapview: item %s has type %q; item type must be web map", e.ItemID, e.Type)
}

// Is makes errors.Is(err, ErrItemType) match.
func (e *ItemTypeError) Is(target error) bool { return target == ErrItemType }

// ResourceUnavailableError reports a layer container with no
// accessible layers.
type ResourceUnavailableError struct {
	// Source describes the container, for example a service URL.
	Source string
}

func (e *ResourceUnavailableError) Error() string {
	if e.Source == "" {
		return "mapview: no layers accessible/available in this item or service"
	}
	return fmt.Sprintf("mapview: no layers accessible/available in %s", e.Source)
}

// Is makes errors.Is(err, ErrResourceUnavailable) match.
func (e *ResourceUnavailableError) Is(target error) bool { return target == ErrResourceUnavailable }
