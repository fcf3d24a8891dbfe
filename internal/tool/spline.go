package tool

import (
	"context"
	"math"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
)

// historySize is the number of smoothed samples a spline stroke keeps.
const historySize = 10

// splineBrush smooths the pointer path and draws Catmull-Rom curves
// through the smoothed samples. A segment between two samples is drawn
// once the sample after it is known; the final segment is drawn on
// pointer-up.
type splineBrush struct {
	history []point
	active  bool
}

func (s *splineBrush) Kind() Kind { return SplineBrush }

func (s *splineBrush) OnPointerDown(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	pt, err := toLayer(c, id, ev)
	if err != nil {
		return err
	}
	// The first sample is doubled so the opening segment has a
	// predecessor for the curve.
	s.history = append(s.history[:0], pt, pt)
	s.active = true
	return stampSegment(c, id, pt, pt, p, raster.Over)
}

func (s *splineBrush) OnPointerMove(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	if !s.active {
		return nil
	}
	if err := s.push(c, id, ev, p); err != nil {
		return err
	}
	n := len(s.history)
	if n < 4 {
		return nil
	}
	h := s.history
	return drawCurve(c, id, h[n-4], h[n-3], h[n-2], h[n-1], p)
}

func (s *splineBrush) OnPointerUp(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	if !s.active {
		return nil
	}
	defer func() {
		s.active = false
		s.history = s.history[:0]
	}()

	if err := s.OnPointerMove(ctx, c, id, ev, p); err != nil {
		return err
	}

	h := s.history
	n := len(h)
	p0 := h[max(n-3, 0)]
	return drawCurve(c, id, p0, h[n-2], h[n-1], h[n-1], p)
}

// push appends the smoothed sample for ev, dropping the oldest once the
// history is full.
func (s *splineBrush) push(c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	pt, err := toLayer(c, id, ev)
	if err != nil {
		return err
	}
	prev := s.history[len(s.history)-1]
	pt = pt.lerp(prev, p.Smoothing)

	if len(s.history) == historySize {
		copy(s.history, s.history[1:])
		s.history = s.history[:historySize-1]
	}
	s.history = append(s.history, pt)
	return nil
}

// drawCurve stamps the Catmull-Rom segment from p1 to p2. Samples are
// spaced at most half a radius apart so the stamped capsules overlap.
func drawCurve(c *canvas.Canvas, id canvas.LayerID, p0, p1, p2, p3 point, p Params) error {
	length := p1.dist(p2)
	if length == 0 {
		return nil
	}
	step := max(radius(p.Size, min(p1.pressure, p2.pressure))/2, 1)
	n := int(math.Ceil(length / step))

	prev := p1
	for i := 1; i <= n; i++ {
		cur := catmullRom(p0, p1, p2, p3, float64(i)/float64(n))
		if err := stampSegment(c, id, prev, cur, p, raster.Over); err != nil {
			return err
		}
		prev = cur
	}
	return nil
}

// catmullRom evaluates the uniform Catmull-Rom spline through p1 (t=0)
// and p2 (t=1).
func catmullRom(p0, p1, p2, p3 point, t float64) point {
	t2 := t * t
	t3 := t2 * t
	f := func(a, b, c, d float64) float64 {
		return 0.5 * (2*b + (-a+c)*t + (2*a-5*b+4*c-d)*t2 + (-a+3*b-3*c+d)*t3)
	}
	return point{
		x:        f(p0.x, p1.x, p2.x, p3.x),
		y:        f(p0.y, p1.y, p2.y, p3.y),
		pressure: p1.pressure + (p2.pressure-p1.pressure)*t,
	}
}
