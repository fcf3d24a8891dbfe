package tool

import (
	"context"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
)

// brush draws straight capsules between consecutive pointer samples. The
// eraser is the same geometry with destination-out blending.
type brush struct {
	kind    Kind
	blendFn raster.BlendFunc

	last   point
	active bool
}

func (b *brush) Kind() Kind { return b.kind }

func (b *brush) params(p Params) Params {
	if b.kind == Eraser {
		// Erasing always removes full coverage under the kernel.
		p.Color = raster.RGB(0, 0, 0)
	}
	return p
}

func (b *brush) OnPointerDown(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	pt, err := toLayer(c, id, ev)
	if err != nil {
		return err
	}
	b.last, b.active = pt, true
	return stampSegment(c, id, pt, pt, b.params(p), b.blendFn)
}

func (b *brush) OnPointerMove(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	if !b.active {
		return nil
	}
	pt, err := toLayer(c, id, ev)
	if err != nil {
		return err
	}
	from := b.last
	b.last = pt
	return stampSegment(c, id, from, pt, b.params(p), b.blendFn)
}

func (b *brush) OnPointerUp(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	if !b.active {
		return nil
	}
	b.active = false
	pt, err := toLayer(c, id, ev)
	if err != nil {
		return err
	}
	if pt.x == b.last.x && pt.y == b.last.y {
		return nil
	}
	return stampSegment(c, id, b.last, pt, b.params(p), b.blendFn)
}
