package canvas

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/cwbudde/layerpaint/internal/raster"
)

// parallelThreshold is the pixel count above which compositing is split
// into row bands processed concurrently.
const parallelThreshold = 1 << 16

// CompositeLayers flattens layers (index 0 = bottom) into a new buffer of
// the given size and layout. Invisible layers are skipped. Channel math
// runs on normalized float64 values and the result is quantized once.
// Identical inputs always produce identical output.
func CompositeLayers(width, height int, layout raster.Layout, layers []*Layer) *raster.Buffer {
	acc := make([]raster.Color, width*height)

	for _, l := range layers {
		if !l.Visible || l.Opacity <= 0 || l.buf == nil {
			continue
		}
		blendLayer(acc, width, height, l)
	}

	out, err := raster.FromColors(width, height, layout, acc)
	if err != nil {
		panic(fmt.Sprintf("canvas: composite of validated layers failed: %v", err))
	}
	return out
}

func blendLayer(acc []raster.Color, width, height int, l *Layer) {
	src := l.buf.Colors()
	sw, sh := l.buf.Width(), l.buf.Height()
	r := image.Rect(0, 0, sw, sh).Add(l.Offset).Intersect(image.Rect(0, 0, width, height))
	if r.Empty() {
		return
	}

	mode, opacity, off := l.BlendMode, l.Opacity, l.Offset
	rows := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			sy := y - off.Y
			for x := r.Min.X; x < r.Max.X; x++ {
				i := y*width + x
				acc[i] = mode.ApplyOpacity(acc[i], src[sy*sw+(x-off.X)], opacity)
			}
		}
	}

	if r.Dx()*r.Dy() < parallelThreshold {
		rows(r.Min.Y, r.Max.Y)
		return
	}

	bands := runtime.GOMAXPROCS(0)
	step := (r.Dy() + bands - 1) / bands
	var wg sync.WaitGroup
	for y := r.Min.Y; y < r.Max.Y; y += step {
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			rows(y0, y1)
		}(y, min(y+step, r.Max.Y))
	}
	wg.Wait()
}

// mergeInto blends top into dst in place the same way compositing would.
func mergeInto(dst *raster.Buffer, top *Layer) {
	if !top.Visible || top.Opacity <= 0 {
		return
	}
	mode, opacity := top.BlendMode, top.Opacity
	dst.Blit(top.buf, top.Offset.X, top.Offset.Y, func(d, s raster.Color) raster.Color {
		return mode.ApplyOpacity(d, s, opacity)
	})
}
