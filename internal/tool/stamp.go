package tool

import (
	"image"
	"math"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
)

// point is a stroke sample in layer coordinates.
type point struct {
	x, y     float64
	pressure float64
}

func (p point) lerp(o point, t float64) point {
	return point{
		x:        p.x + (o.x-p.x)*t,
		y:        p.y + (o.y-p.y)*t,
		pressure: p.pressure + (o.pressure-p.pressure)*t,
	}
}

func (p point) dist(o point) float64 {
	return math.Hypot(o.x-p.x, o.y-p.y)
}

// minRadius keeps the thinnest stroke one pixel wide.
const minRadius = 0.5

// toLayer maps a canvas-space event into the layer's own coordinates.
func toLayer(c *canvas.Canvas, id canvas.LayerID, ev Event) (point, error) {
	info, err := c.Layer(id)
	if err != nil {
		return point{}, err
	}
	return point{
		x:        ev.X - float64(info.Offset.X),
		y:        ev.Y - float64(info.Offset.Y),
		pressure: ev.pressure(),
	}, nil
}

func radius(size, pressure float64) float64 {
	return max(size/2*pressure, minRadius)
}

// capsule rasterizes the stadium shape swept by a disc moving from a to b
// and returns it as a stamp buffer plus its origin. Pixels whose centers
// lie within the radius of segment ab get col; the rest stay transparent.
// The radius is interpolated between the endpoints' pressures.
func capsule(a, b point, size float64, col raster.Color) (*raster.Buffer, image.Point) {
	ra, rb := radius(size, a.pressure), radius(size, b.pressure)
	r := max(ra, rb)

	minX := int(math.Floor(min(a.x, b.x) - r))
	minY := int(math.Floor(min(a.y, b.y) - r))
	maxX := int(math.Ceil(max(a.x, b.x) + r))
	maxY := int(math.Ceil(max(a.y, b.y) + r))

	stamp, err := raster.New(maxX-minX, maxY-minY, raster.LayoutRGBA16)
	if err != nil {
		return nil, image.Point{}
	}

	dx, dy := b.x-a.x, b.y-a.y
	lenSq := dx*dx + dy*dy
	colors := stamp.Colors()
	w := stamp.Width()
	for y := 0; y < stamp.Height(); y++ {
		py := float64(minY+y) + 0.5
		for x := 0; x < w; x++ {
			px := float64(minX+x) + 0.5
			t := 0.0
			if lenSq > 0 {
				t = max(0, min(1, ((px-a.x)*dx+(py-a.y)*dy)/lenSq))
			}
			cx, cy := a.x+t*dx, a.y+t*dy
			if math.Hypot(px-cx, py-cy) <= ra+(rb-ra)*t {
				colors[y*w+x] = col
			}
		}
	}
	stamp.SetColors(colors)
	return stamp, image.Pt(minX, minY)
}

// stampSegment paints one capsule onto the layer with fn.
func stampSegment(c *canvas.Canvas, id canvas.LayerID, a, b point, p Params, fn raster.BlendFunc) error {
	stamp, origin := capsule(a, b, p.Size, p.Color)
	if stamp == nil {
		return nil
	}
	return c.Paint(id, func(buf *raster.Buffer) (image.Rectangle, error) {
		return buf.Blit(stamp, origin.X, origin.Y, fn), nil
	})
}
