package canvas

import (
	"image"

	"github.com/cwbudde/layerpaint/internal/blend"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/google/uuid"
)

// LayerID identifies a layer for the lifetime of a canvas and across
// save/load.
type LayerID string

// NewLayerID returns a fresh random id.
func NewLayerID() LayerID {
	return LayerID(uuid.New().String())
}

// Layer is one raster buffer plus the metadata used to blend it. A layer
// knows nothing about its siblings or about which layer is active; all
// mutation goes through the owning Canvas so the composite cache stays
// coherent.
type Layer struct {
	ID        LayerID
	Name      string
	Opacity   float64
	BlendMode blend.Mode
	Visible   bool
	Locked    bool
	// Offset translates the buffer when compositing. Pixels shifted off
	// the canvas are clipped.
	Offset image.Point

	buf *raster.Buffer
}

// NewLayer creates a visible, fully opaque Normal layer over buf.
// A nil buf is not allowed; Canvas.AddLayer allocates blank buffers.
func NewLayer(id LayerID, name string, buf *raster.Buffer) *Layer {
	if id == "" {
		id = NewLayerID()
	}
	return &Layer{
		ID:        id,
		Name:      name,
		Opacity:   1,
		BlendMode: blend.Normal,
		Visible:   true,
		buf:       buf,
	}
}

// Buffer returns the layer's pixels. Callers outside a Canvas.Paint
// callback must not modify it.
func (l *Layer) Buffer() *raster.Buffer {
	return l.buf
}

// Info returns a copy of the layer metadata.
func (l *Layer) Info() LayerInfo {
	return LayerInfo{
		ID:        l.ID,
		Name:      l.Name,
		Opacity:   l.Opacity,
		BlendMode: l.BlendMode,
		Visible:   l.Visible,
		Locked:    l.Locked,
		Offset:    l.Offset,
	}
}

func (l *Layer) clone() *Layer {
	c := *l
	c.buf = l.buf.Clone()
	return &c
}

// LayerInfo is a detached snapshot of a layer's metadata.
type LayerInfo struct {
	ID        LayerID     `json:"id"`
	Name      string      `json:"name"`
	Opacity   float64     `json:"opacity"`
	BlendMode blend.Mode  `json:"blendMode"`
	Visible   bool        `json:"visible"`
	Locked    bool        `json:"locked"`
	Offset    image.Point `json:"offset"`
	Index     int         `json:"index"`
	Active    bool        `json:"active"`
}

func clampOpacity(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
