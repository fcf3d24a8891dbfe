package editor

import (
	"log/slog"
	"time"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
)

// frame is a composite together with the canvas it was made from.
type frame struct {
	canvas *canvas.Canvas
	buf    *raster.Buffer
	seq    uint64
}

// DisplayBuffer returns the composite of the open canvas. The background
// compositor usually has it ready; if the canvas changed since, it is
// composited on the spot. The buffer is shared and must not be modified.
func (e *Editor) DisplayBuffer() *raster.Buffer {
	c := e.Canvas()
	if f := e.frame.Load(); f != nil && f.canvas == c && f.seq == c.Seq() {
		return f.buf
	}
	buf, seq := c.CompositeSeq()
	e.frame.Store(&frame{canvas: c, buf: buf, seq: seq})
	return buf
}

func (e *Editor) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// compositor recomposites after invalidations so DisplayBuffer rarely has
// to. Bursts of invalidations collapse into one composite.
func (e *Editor) compositor() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		case <-e.wake:
			c := e.Canvas()
			if f := e.frame.Load(); f != nil && f.canvas == c && f.seq == c.Seq() {
				continue
			}
			start := time.Now()
			buf, seq := c.CompositeSeq()
			e.frame.Store(&frame{canvas: c, buf: buf, seq: seq})
			slog.Debug("Display buffer updated", "seq", seq, "elapsed", time.Since(start))
		}
	}
}
