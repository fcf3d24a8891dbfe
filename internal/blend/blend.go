// Package blend implements the per-pixel blend modes used when a layer is
// merged into the composite accumulator.
//
// Separable modes follow the W3C Compositing and Blending Level 1
// formulas. The set and the formulas are part of the session format
// contract: a mode's numeric value is what gets persisted, so existing
// values must never be renumbered.
//
// References:
//   - W3C Compositing and Blending Level 1: https://www.w3.org/TR/compositing-1/
package blend

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/layerpaint/internal/raster"
)

// Mode selects the blend function B(cb, cs) for a layer.
type Mode uint8

const (
	Normal     Mode = iota // cs
	Multiply               // cb * cs
	Screen                 // cb + cs - cb*cs
	Overlay                // HardLight with layers swapped
	Darken                 // min(cb, cs)
	Lighten                // max(cb, cs)
	ColorDodge             // cb / (1 - cs)
	ColorBurn              // 1 - (1 - cb) / cs
	HardLight              // Multiply or Screen depending on source
	SoftLight              // W3C soft light
	Difference             // |cb - cs|
	Exclusion              // cb + cs - 2*cb*cs
	Add                    // min(1, cb + cs)
)

var modeNames = [...]string{
	Normal:     "normal",
	Multiply:   "multiply",
	Screen:     "screen",
	Overlay:    "overlay",
	Darken:     "darken",
	Lighten:    "lighten",
	ColorDodge: "color-dodge",
	ColorBurn:  "color-burn",
	HardLight:  "hard-light",
	SoftLight:  "soft-light",
	Difference: "difference",
	Exclusion:  "exclusion",
	Add:        "add",
}

// Modes lists every supported mode in numeric order.
func Modes() []Mode {
	out := make([]Mode, len(modeNames))
	for i := range modeNames {
		out[i] = Mode(i)
	}
	return out
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return int(m) < len(modeNames)
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
	return modeNames[m]
}

// Parse converts a mode name (case-insensitive, "_" and "-" equivalent).
func Parse(s string) (Mode, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, name := range modeNames {
		if name == key || strings.ReplaceAll(name, "-", "") == key {
			return Mode(i), nil
		}
	}
	return Normal, fmt.Errorf("unknown blend mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("unknown blend mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Channel applies the mode's separable function to one unpremultiplied
// channel pair: cb from the backdrop, cs from the source.
func (m Mode) Channel(cb, cs float64) float64 {
	switch m {
	case Multiply:
		return cb * cs
	case Screen:
		return cb + cs - cb*cs
	case Overlay:
		return hardLight(cs, cb)
	case Darken:
		return math.Min(cb, cs)
	case Lighten:
		return math.Max(cb, cs)
	case ColorDodge:
		switch {
		case cb == 0:
			return 0
		case cs >= 1:
			return 1
		default:
			return math.Min(1, cb/(1-cs))
		}
	case ColorBurn:
		switch {
		case cb >= 1:
			return 1
		case cs <= 0:
			return 0
		default:
			return 1 - math.Min(1, (1-cb)/cs)
		}
	case HardLight:
		return hardLight(cb, cs)
	case SoftLight:
		return softLight(cb, cs)
	case Difference:
		return math.Abs(cb - cs)
	case Exclusion:
		return cb + cs - 2*cb*cs
	case Add:
		return math.Min(1, cb+cs)
	default:
		return cs
	}
}

func hardLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return cb * 2 * cs
	}
	s := 2*cs - 1
	return cb + s - cb*s
}

func softLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return cb - (1-2*cs)*cb*(1-cb)
	}
	var d float64
	if cb <= 0.25 {
		d = ((16*cb-12)*cb + 4) * cb
	} else {
		d = math.Sqrt(cb)
	}
	return cb + (2*cs-1)*(d-cb)
}

// Apply blends src over dst with the mode and returns the result before
// any layer opacity is applied. Both colors are non-premultiplied:
//
//	co = (1-as)*ab*cb + (1-ab)*as*cs + as*ab*B(cb, cs)
//	ao = as + ab*(1-as)
//
// and the returned color channel is co/ao.
func (m Mode) Apply(dst, src raster.Color) raster.Color {
	if src.A <= 0 {
		return dst
	}
	if m == Normal || dst.A <= 0 {
		return raster.Over(dst, src)
	}

	as, ab := src.A, dst.A
	ao := as + ab*(1-as)
	mix := func(cb, cs float64) float64 {
		co := (1-as)*ab*cb + (1-ab)*as*cs + as*ab*m.Channel(cb, cs)
		return co / ao
	}
	return raster.Color{
		R: mix(dst.R, src.R),
		G: mix(dst.G, src.G),
		B: mix(dst.B, src.B),
		A: ao,
	}
}

// ApplyOpacity blends src into dst and then interpolates between the
// untouched backdrop and the blended result by opacity.
func (m Mode) ApplyOpacity(dst, src raster.Color, opacity float64) raster.Color {
	if opacity <= 0 || src.A <= 0 {
		return dst
	}
	blended := m.Apply(dst, src)
	if opacity >= 1 {
		return blended
	}
	return dst.Premultiply().Lerp(blended.Premultiply(), opacity).Unpremultiply()
}
