package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"strings"
)

// Layout is the channel layout of a Buffer. Every layout stores four
// non-premultiplied channels in R, G, B, A order.
type Layout uint8

const (
	// LayoutRGBA8 stores one byte per channel.
	LayoutRGBA8 Layout = iota + 1
	// LayoutRGBA16 stores one little-endian uint16 per channel.
	LayoutRGBA16
)

// BytesPerPixel returns the storage size of one pixel, or 0 for an
// unknown layout.
func (l Layout) BytesPerPixel() int {
	switch l {
	case LayoutRGBA8:
		return 4
	case LayoutRGBA16:
		return 8
	default:
		return 0
	}
}

// Valid reports whether l is a known layout.
func (l Layout) Valid() bool {
	return l.BytesPerPixel() > 0
}

func (l Layout) String() string {
	switch l {
	case LayoutRGBA8:
		return "rgba8"
	case LayoutRGBA16:
		return "rgba16"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// ParseLayout is the inverse of Layout.String.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgba8", "":
		return LayoutRGBA8, nil
	case "rgba16":
		return LayoutRGBA16, nil
	default:
		return 0, fmt.Errorf("unknown channel layout %q", s)
	}
}

// Buffer is a fixed-size grid of pixels. Width, height and layout never
// change after creation; the zero value is not usable.
type Buffer struct {
	width  int
	height int
	layout Layout
	pix    []byte
}

// MaxPixels bounds width*height of any buffer. At RGBA16 this is 2 GiB of
// pixel data.
const MaxPixels = 1 << 28

// ByteSize returns the storage size of a width x height buffer in layout,
// or a DimensionError if the geometry is invalid or exceeds MaxPixels.
func ByteSize(width, height int, layout Layout) (int, error) {
	if err := checkGeometry(width, height, layout); err != nil {
		return 0, err
	}
	return width * height * layout.BytesPerPixel(), nil
}

// New allocates a fully transparent buffer.
func New(width, height int, layout Layout) (*Buffer, error) {
	size, err := ByteSize(width, height, layout)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		width:  width,
		height: height,
		layout: layout,
		pix:    make([]byte, size),
	}, nil
}

// FromBytes wraps a copy of raw pixel data laid out as New would store it.
func FromBytes(width, height int, layout Layout, data []byte) (*Buffer, error) {
	want, err := ByteSize(width, height, layout)
	if err != nil {
		return nil, err
	}
	if len(data) != want {
		return nil, &DimensionError{
			Width:  width,
			Height: height,
			Reason: fmt.Sprintf("raster holds %d bytes, want %d", len(data), want),
		}
	}
	pix := make([]byte, want)
	copy(pix, data)
	return &Buffer{width: width, height: height, layout: layout, pix: pix}, nil
}

func checkGeometry(width, height int, layout Layout) error {
	if width <= 0 || height <= 0 {
		return &DimensionError{Width: width, Height: height, Reason: "width and height must be positive"}
	}
	if !layout.Valid() {
		return &DimensionError{Width: width, Height: height, Reason: "unknown layout " + layout.String()}
	}
	// Divide instead of multiplying so huge sides cannot wrap around.
	if width > MaxPixels/height {
		return &DimensionError{Width: width, Height: height, Reason: fmt.Sprintf("more than %d pixels", MaxPixels)}
	}
	return nil
}

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int { return b.height }

// Layout returns the channel layout.
func (b *Buffer) Layout() Layout { return b.layout }

// Bounds returns the buffer rectangle anchored at the origin.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.width, b.height)
}

// Pix returns the underlying storage. Callers must treat it as read-only.
func (b *Buffer) Pix() []byte { return b.pix }

// In reports whether (x, y) addresses a pixel of the buffer.
func (b *Buffer) In(x, y int) bool {
	return x >= 0 && x < b.width && y >= 0 && y < b.height
}

// At returns the pixel at (x, y).
func (b *Buffer) At(x, y int) (Color, error) {
	if !b.In(x, y) {
		return Transparent, &BoundsError{X: x, Y: y, Width: b.width, Height: b.height}
	}
	return b.load((y*b.width + x) * b.layout.BytesPerPixel()), nil
}

// Set stores c at (x, y), quantizing to the buffer layout.
func (b *Buffer) Set(x, y int, c Color) error {
	if !b.In(x, y) {
		return &BoundsError{X: x, Y: y, Width: b.width, Height: b.height}
	}
	b.store((y*b.width+x)*b.layout.BytesPerPixel(), c)
	return nil
}

// Fill sets every pixel to c.
func (b *Buffer) Fill(c Color) {
	bpp := b.layout.BytesPerPixel()
	if len(b.pix) == 0 {
		return
	}
	b.store(0, c)
	for filled := bpp; filled < len(b.pix); filled *= 2 {
		copy(b.pix[filled:], b.pix[:filled])
	}
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	pix := make([]byte, len(b.pix))
	copy(pix, b.pix)
	return &Buffer{width: b.width, height: b.height, layout: b.layout, pix: pix}
}

// Equal reports whether o has the same geometry, layout and pixels.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.width == o.width && b.height == o.height && b.layout == o.layout && bytes.Equal(b.pix, o.pix)
}

// Convert returns a copy of b stored in layout.
func (b *Buffer) Convert(layout Layout) (*Buffer, error) {
	if layout == b.layout {
		return b.Clone(), nil
	}
	out, err := New(b.width, b.height, layout)
	if err != nil {
		return nil, err
	}
	out.SetColors(b.Colors())
	return out, nil
}

// Colors dequantizes every pixel in row-major order.
func (b *Buffer) Colors() []Color {
	bpp := b.layout.BytesPerPixel()
	out := make([]Color, b.width*b.height)
	for i := range out {
		out[i] = b.load(i * bpp)
	}
	return out
}

// SetColors quantizes src (row-major, width*height entries) into the
// buffer. Extra entries are ignored and missing ones leave pixels as is.
func (b *Buffer) SetColors(src []Color) {
	bpp := b.layout.BytesPerPixel()
	n := min(len(src), b.width*b.height)
	for i := 0; i < n; i++ {
		b.store(i*bpp, src[i])
	}
}

// FromColors builds a buffer from row-major colors, quantizing once.
func FromColors(width, height int, layout Layout, src []Color) (*Buffer, error) {
	b, err := New(width, height, layout)
	if err != nil {
		return nil, err
	}
	if len(src) != width*height {
		return nil, &DimensionError{
			Width:  width,
			Height: height,
			Reason: fmt.Sprintf("got %d colors", len(src)),
		}
	}
	b.SetColors(src)
	return b, nil
}

func (b *Buffer) load(i int) Color {
	switch b.layout {
	case LayoutRGBA16:
		p := b.pix[i : i+8 : i+8]
		return Color{
			R: float64(binary.LittleEndian.Uint16(p[0:])) / 65535,
			G: float64(binary.LittleEndian.Uint16(p[2:])) / 65535,
			B: float64(binary.LittleEndian.Uint16(p[4:])) / 65535,
			A: float64(binary.LittleEndian.Uint16(p[6:])) / 65535,
		}
	default:
		p := b.pix[i : i+4 : i+4]
		return Color{
			R: float64(p[0]) / 255,
			G: float64(p[1]) / 255,
			B: float64(p[2]) / 255,
			A: float64(p[3]) / 255,
		}
	}
}

func (b *Buffer) store(i int, c Color) {
	switch b.layout {
	case LayoutRGBA16:
		p := b.pix[i : i+8 : i+8]
		binary.LittleEndian.PutUint16(p[0:], quantize16(c.R))
		binary.LittleEndian.PutUint16(p[2:], quantize16(c.G))
		binary.LittleEndian.PutUint16(p[4:], quantize16(c.B))
		binary.LittleEndian.PutUint16(p[6:], quantize16(c.A))
	default:
		p := b.pix[i : i+4 : i+4]
		p[0] = quantize8(c.R)
		p[1] = quantize8(c.G)
		p[2] = quantize8(c.B)
		p[3] = quantize8(c.A)
	}
}
