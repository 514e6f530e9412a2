// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"math/rand/v2"
	"strings"
)

// Synchronized field names. The browser view reads these exact keys.
const (
	FieldViewName           = "_view_name"
	FieldViewModule         = "_view_module"
	FieldBasemap            = "_basemap"
	FieldBasemaps           = "basemaps"
	FieldGalleryBasemaps    = "_gallerybasemaps"
	FieldGalleryDefinitions = "_gbasemaps_def"
	FieldWidth              = "width"
	FieldZoom               = "zoom"
	FieldItemID             = "id"
	FieldCenter             = "center"
	FieldMode               = "mode"
	FieldAddLayer           = "_addlayer"
	FieldStartTime          = "start_time"
	FieldEndTime            = "end_time"
	FieldExtent             = "_extent"
	FieldViewExtent         = "_jsextent"
	FieldTokenInfo          = "_token_info"
	FieldContentURL         = "_arcgis_url"
	FieldSwipeDiv           = "_swipe_div"
)

// Sentinels written to the mode channel. No serialized graphic starts
// with '#', and raw commands with the prefix are rejected.
const (
	ReservedPrefix       = "###"
	CommandClearGraphics = "###clear_graphics"
	CommandRemoveLayers  = "###remove_layers"
)

// ModeNavigate is the default interaction mode.
const ModeNavigate = "navigate"

const (
	defaultViewName        = "MapView"
	defaultViewModule      = "mapview"
	defaultBasemap         = "topo"
	defaultWidth           = "100%"
	defaultZoom            = 2
	swipeDivPrefix         = "swipeDiv"
	swipeDivSuffixLength   = 6
	swipeDivSuffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// BuiltinBasemaps are the basemap names every view understands, in the
// order the view lists them.
var BuiltinBasemaps = []string{
	"dark-gray",
	"dark-gray-vector",
	"gray",
	"gray-vector",
	"hybrid",
	"national-geographic",
	"oceans",
	"osm",
	"satellite",
	"streets",
	"streets-navigation-vector",
	"streets-night-vector",
	"streets-relief-vector",
	"streets-vector",
	"terrain",
	"topo",
	"topo-vector",
}

// DrawingTools are the interactive tools a view accepts as a mode.
var DrawingTools = []string{
	"circle", "downarrow", "ellipse", "extent", "freehandpolygon",
	"freehandpolyline", "leftarrow", "line", "multipoint", "point",
	"polygon", "polyline", "rectangle", "rightarrow", "triangle", "uparrow",
}

// channelFields re-deliver on every write.
var channelFields = []string{FieldMode, FieldAddLayer}

// viewWritableFields are the fields a view may change.
var viewWritableFields = map[string]bool{
	FieldViewExtent: true,
	FieldZoom:       true,
	FieldCenter:     true,
	FieldBasemap:    true,
}

func defaultState(swipeDiv string) map[string]any {
	return map[string]any{
		FieldViewName:           defaultViewName,
		FieldViewModule:         defaultViewModule,
		FieldBasemap:            defaultBasemap,
		FieldBasemaps:           append([]string(nil), BuiltinBasemaps...),
		FieldGalleryBasemaps:    []string{},
		FieldGalleryDefinitions: []any{},
		FieldWidth:              defaultWidth,
		FieldZoom:               defaultZoom,
		FieldItemID:             "",
		FieldCenter:             []float64{0, 0},
		FieldMode:               ModeNavigate,
		FieldAddLayer:           "",
		FieldStartTime:          "",
		FieldEndTime:            "",
		FieldExtent:             "",
		FieldViewExtent:         "",
		FieldTokenInfo:          "",
		FieldContentURL:         "",
		FieldSwipeDiv:           swipeDiv,
	}
}

// newSwipeDiv returns a DOM id unique enough to tell two maps in one
// page apart.
func newSwipeDiv(random *rand.Rand) string {
	var builder strings.Builder
	builder.WriteString(swipeDivPrefix)
	for range swipeDivSuffixLength {
		var index int
		if random != nil {
			index = random.IntN(len(swipeDivSuffixAlphabet))
		} else {
			index = rand.IntN(len(swipeDivSuffixAlphabet))
		}
		builder.WriteByte(swipeDivSuffixAlphabet[index])
	}
	return builder.String()
}

// stringList converts a stored list to []string. Values set locally are
// []string; values reported by a view decode as []any.
func stringList(value any) []string {
	switch list := value.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, element := range list {
			if text, ok := element.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}

// anyList converts a stored list to []any.
func anyList(value any) []any {
	switch list := value.(type) {
	case []any:
		return append([]any(nil), list...)
	case []string:
		out := make([]any, len(list))
		for i, element := range list {
			out[i] = element
		}
		return out
	default:
		return nil
	}
}

// toFloat converts any numeric value a JSON or CBOR decoder produces.
func toFloat(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case float32:
		return float64(number), true
	case int:
		return float64(number), true
	case int64:
		return float64(number), true
	case uint64:
		return float64(number), true
	default:
		return 0, false
	}
}
