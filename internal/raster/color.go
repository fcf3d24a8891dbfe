package raster

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// Color is a non-premultiplied RGBA value with each channel normalized
// to [0, 1]. It is the arithmetic type shared by tools and compositing;
// buffers quantize it only when storing.
type Color struct {
	R, G, B, A float64
}

// Transparent is the zero color.
var Transparent = Color{}

// RGB returns an opaque color.
func RGB(r, g, b float64) Color {
	return Color{R: r, G: g, B: b, A: 1}
}

// RGBA returns a color from all four channels.
func RGBA(r, g, b, a float64) Color {
	return Color{R: r, G: g, B: b, A: a}
}

// Add returns the channel-wise sum.
func (c Color) Add(o Color) Color {
	return Color{R: c.R + o.R, G: c.G + o.G, B: c.B + o.B, A: c.A + o.A}
}

// Scale multiplies every channel by f.
func (c Color) Scale(f float64) Color {
	return Color{R: c.R * f, G: c.G * f, B: c.B * f, A: c.A * f}
}

// Mul returns the channel-wise product.
func (c Color) Mul(o Color) Color {
	return Color{R: c.R * o.R, G: c.G * o.G, B: c.B * o.B, A: c.A * o.A}
}

// Lerp interpolates linearly from c (t=0) to o (t=1).
func (c Color) Lerp(o Color, t float64) Color {
	return Color{
		R: c.R + (o.R-c.R)*t,
		G: c.G + (o.G-c.G)*t,
		B: c.B + (o.B-c.B)*t,
		A: c.A + (o.A-c.A)*t,
	}
}

// Premultiply returns the color with RGB scaled by alpha.
func (c Color) Premultiply() Color {
	return Color{R: c.R * c.A, G: c.G * c.A, B: c.B * c.A, A: c.A}
}

// Unpremultiply reverses Premultiply. A fully transparent color maps to
// Transparent.
func (c Color) Unpremultiply() Color {
	if c.A <= 0 {
		return Transparent
	}
	return Color{R: c.R / c.A, G: c.G / c.A, B: c.B / c.A, A: c.A}
}

// Clamp limits every channel to [0, 1].
func (c Color) Clamp() Color {
	return Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B), A: clamp01(c.A)}
}

// Similar reports whether every channel of c and o differs by at most tol.
func (c Color) Similar(o Color, tol float64) bool {
	return math.Abs(c.R-o.R) <= tol &&
		math.Abs(c.G-o.G) <= tol &&
		math.Abs(c.B-o.B) <= tol &&
		math.Abs(c.A-o.A) <= tol
}

// NRGBA converts to the standard library's 8-bit non-premultiplied color.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: quantize8(c.R), G: quantize8(c.G), B: quantize8(c.B), A: quantize8(c.A)}
}

// Quantize8 rounds c to the nearest value representable in an RGBA8 buffer.
func (c Color) Quantize8() Color {
	return Color{
		R: float64(quantize8(c.R)) / 255,
		G: float64(quantize8(c.G)) / 255,
		B: float64(quantize8(c.B)) / 255,
		A: float64(quantize8(c.A)) / 255,
	}
}

// Quantize16 rounds c to the nearest value representable in an RGBA16 buffer.
func (c Color) Quantize16() Color {
	return Color{
		R: float64(quantize16(c.R)) / 65535,
		G: float64(quantize16(c.G)) / 65535,
		B: float64(quantize16(c.B)) / 65535,
		A: float64(quantize16(c.A)) / 65535,
	}
}

// FromColor converts any standard library color.
func FromColor(c color.Color) Color {
	n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	return Color{
		R: float64(n.R) / 65535,
		G: float64(n.G) / 65535,
		B: float64(n.B) / 65535,
		A: float64(n.A) / 65535,
	}
}

// String formats the color as #rrggbbaa.
func (c Color) String() string {
	n := c.NRGBA()
	return fmt.Sprintf("#%02x%02x%02x%02x", n.R, n.G, n.B, n.A)
}

// ParseColor accepts "#rgb", "#rrggbb", "#rrggbbaa" (leading '#' optional),
// "transparent", or an SVG color keyword such as "red" or "cornflowerblue".
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Transparent, fmt.Errorf("empty color")
	}
	if s == "transparent" {
		return Transparent, nil
	}
	if named, ok := colornames.Map[s]; ok {
		return FromColor(named), nil
	}

	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return Transparent, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Transparent, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{
		R: float64((v>>24)&0xff) / 255,
		G: float64((v>>16)&0xff) / 255,
		B: float64((v>>8)&0xff) / 255,
		A: float64(v&0xff) / 255,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func quantize8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func quantize16(v float64) uint16 {
	return uint16(math.Round(clamp01(v) * 65535))
}

// MarshalText encodes the color as #rrggbbaa. Precision beyond 8 bits per
// channel is lost.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts anything ParseColor does.
func (c *Color) UnmarshalText(text []byte) error {
	v, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
