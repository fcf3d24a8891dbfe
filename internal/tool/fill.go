package tool

import (
	"context"
	"image"
	"log/slog"
	"math"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
)

// cancelCheckInterval is how many pixels the flood fill visits between
// context checks.
const cancelCheckInterval = 4096

var (
	neighbors4 = []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// fillBucket replaces the connected region of similar color under the
// pointer-down position. Moves and the pointer-up are ignored.
type fillBucket struct{}

func (f *fillBucket) Kind() Kind { return FillBucket }

func (f *fillBucket) OnPointerDown(ctx context.Context, c *canvas.Canvas, id canvas.LayerID, ev Event, p Params) error {
	info, err := c.Layer(id)
	if err != nil {
		return err
	}
	if info.Locked {
		return &canvas.LayerLockedError{ID: id}
	}

	snap, err := c.LayerPixels(id)
	if err != nil {
		return err
	}
	seed := image.Pt(
		int(math.Floor(ev.X))-info.Offset.X,
		int(math.Floor(ev.Y))-info.Offset.Y,
	)
	if !snap.In(seed.X, seed.Y) {
		return nil
	}

	region, err := floodRegion(ctx, snap.Colors(), snap.Width(), snap.Height(), seed, p.Tolerance, p.Connectivity)
	if err != nil {
		return err
	}
	slog.Debug("Flood fill", "layer_id", id, "seed", seed, "pixels", len(region.pixels), "visited", region.visited)

	col := p.Color
	return c.Paint(id, func(buf *raster.Buffer) (image.Rectangle, error) {
		w := buf.Width()
		colors := buf.Colors()
		for _, i := range region.pixels {
			colors[i] = col
		}
		buf.SetColors(colors)
		return region.bounds.Intersect(image.Rect(0, 0, w, buf.Height())), nil
	})
}

func (f *fillBucket) OnPointerMove(context.Context, *canvas.Canvas, canvas.LayerID, Event, Params) error {
	return nil
}

func (f *fillBucket) OnPointerUp(context.Context, *canvas.Canvas, canvas.LayerID, Event, Params) error {
	return nil
}

type fillRegion struct {
	pixels  []int
	bounds  image.Rectangle
	visited int
}

// floodRegion runs a breadth-first search from seed over pixels similar to
// the seed color. Every pixel is dequeued at most once, so the search ends
// after at most width*height steps whatever the buffer contents.
func floodRegion(ctx context.Context, colors []raster.Color, width, height int, seed image.Point, tolerance float64, connectivity int) (fillRegion, error) {
	dirs := neighbors4
	if connectivity == 8 {
		dirs = neighbors8
	}

	target := colors[seed.Y*width+seed.X]
	seen := make([]bool, len(colors))
	queue := []int{seed.Y*width + seed.X}
	seen[queue[0]] = true

	region := fillRegion{bounds: image.Rectangle{Min: seed, Max: seed.Add(image.Pt(1, 1))}}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]

		region.visited++
		if region.visited%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fillRegion{}, err
			}
		}

		region.pixels = append(region.pixels, i)
		x, y := i%width, i/width
		region.bounds = region.bounds.Union(image.Rect(x, y, x+1, y+1))

		for _, d := range dirs {
			nx, ny := x+d.X, y+d.Y
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			n := ny*width + nx
			if seen[n] {
				continue
			}
			seen[n] = true
			if colors[n].Similar(target, tolerance) {
				queue = append(queue, n)
			}
		}
	}
	return region, nil
}
