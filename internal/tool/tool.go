// Package tool implements the painting tools. A tool turns pointer events
// into pixel changes on one layer, always through canvas.Canvas.Paint.
package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
)

// Kind enumerates the available tools.
type Kind uint8

const (
	Brush Kind = iota
	SplineBrush
	Eraser
	FillBucket
)

var kindNames = [...]string{
	Brush:       "brush",
	SplineBrush: "spline-brush",
	Eraser:      "eraser",
	FillBucket:  "fill-bucket",
}

// Kinds lists every tool kind.
func Kinds() []Kind {
	return []Kind{Brush, SplineBrush, Eraser, FillBucket}
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String. Underscores and case are
// ignored, so "Fill_Bucket" parses too.
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for k, name := range kindNames {
		if name == norm {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown tool %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown tool kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Event is one pointer sample in canvas coordinates. Pressure is in (0, 1];
// zero means the device reports no pressure and is treated as 1.
type Event struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

func (e Event) pressure() float64 {
	if e.Pressure <= 0 || e.Pressure > 1 {
		return 1
	}
	return e.Pressure
}

// Params configures a stroke or fill.
type Params struct {
	Color raster.Color `json:"color"`
	// Size is the brush diameter in pixels at full pressure.
	Size float64 `json:"size"`
	// Tolerance is the largest per-channel difference, in [0, 1], at which
	// a pixel still counts as similar to the fill seed.
	Tolerance float64 `json:"tolerance"`
	// Connectivity is 4 or 8.
	Connectivity int `json:"connectivity"`
	// Smoothing in [0, 1) pulls each spline point toward its predecessor.
	Smoothing float64 `json:"smoothing"`
}

// DefaultParams returns opaque black, 8 px, exact fills, 4-connectivity.
func DefaultParams() Params {
	return Params{
		Color:        raster.RGB(0, 0, 0),
		Size:         8,
		Connectivity: 4,
		Smoothing:    0.5,
	}
}

// Validate rejects parameters no tool can work with.
func (p Params) Validate() error {
	switch {
	case p.Size <= 0:
		return fmt.Errorf("tool size must be positive, got %v", p.Size)
	case p.Tolerance < 0 || p.Tolerance > 1:
		return fmt.Errorf("tolerance must be in [0,1], got %v", p.Tolerance)
	case p.Connectivity != 4 && p.Connectivity != 8:
		return fmt.Errorf("connectivity must be 4 or 8, got %d", p.Connectivity)
	case p.Smoothing < 0 || p.Smoothing >= 1:
		return fmt.Errorf("smoothing must be in [0,1), got %v", p.Smoothing)
	}
	return nil
}

// Tool receives the pointer events of one gesture: a down, any number of
// moves and an up. Each callback changes only the layer it is given.
// Tools keep per-gesture state and are not safe for concurrent use.
type Tool interface {
	Kind() Kind
	OnPointerDown(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error
	OnPointerMove(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error
	OnPointerUp(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error
}

// New creates a tool of the given kind with empty gesture state.
func New(kind Kind) (Tool, error) {
	switch kind {
	case Brush:
		return &brush{kind: Brush, blendFn: raster.Over}, nil
	case Eraser:
		return &brush{kind: Eraser, blendFn: raster.Erase}, nil
	case SplineBrush:
		return &splineBrush{}, nil
	case FillBucket:
		return &fillBucket{}, nil
	default:
		return nil, fmt.Errorf("unknown tool kind %d", uint8(kind))
	}
}
