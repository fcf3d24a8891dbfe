package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/layerpaint/internal/blend"
	"github.com/cwbudde/layerpaint/internal/canvas"
)

// wireMetadata mirrors metadata with pointers so absent fields can be told
// apart from zero values. Unknown fields are ignored.
type wireMetadata struct {
	Width       *int              `json:"width"`
	Height      *int              `json:"height"`
	Layout      string            `json:"layout"`
	Compression string            `json:"compression"`
	Created     time.Time         `json:"created"`
	Modified    time.Time         `json:"modified"`
	ActiveLayer canvas.LayerID    `json:"activeLayer"`
	Extensions  map[string][]byte `json:"extensions"`
	Layers      *[]wireLayer      `json:"layers"`
}

type wireLayer struct {
	ID           *canvas.LayerID `json:"id"`
	Name         string          `json:"name"`
	Opacity      *float64        `json:"opacity"`
	BlendMode    string          `json:"blendMode"`
	Visible      *bool           `json:"visible"`
	Locked       bool            `json:"locked"`
	OffsetX      int             `json:"offsetX"`
	OffsetY      int             `json:"offsetY"`
	RasterOffset *int64          `json:"rasterOffset"`
	RasterLength *int64          `json:"rasterLength"`
}

// parseMetadata decodes the JSON block of a session with the given format
// version, checks required fields and fills defaults for optional ones.
// Version 1 has no compression and no lock flag.
func parseMetadata(version uint16, b []byte) (*metadata, error) {
	var w wireMetadata
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &CorruptError{Reason: "metadata", Err: err}
	}

	missing := func(field string) error {
		return &SchemaError{Version: version, Field: field}
	}
	switch {
	case w.Width == nil:
		return nil, missing("width")
	case w.Height == nil:
		return nil, missing("height")
	case w.Layers == nil:
		return nil, missing("layers")
	}

	m := &metadata{
		Width:       *w.Width,
		Height:      *w.Height,
		Layout:      w.Layout,
		Compression: CompressionNone,
		Created:     w.Created,
		Modified:    w.Modified,
		ActiveLayer: w.ActiveLayer,
		Extensions:  w.Extensions,
	}
	if m.Layout == "" {
		m.Layout = "rgba8"
	}
	if m.Extensions == nil {
		m.Extensions = map[string][]byte{}
	}

	if version >= 2 {
		comp, err := ParseCompression(w.Compression)
		if err != nil {
			return nil, &CorruptError{Reason: "metadata", Err: err}
		}
		m.Compression = comp
	}

	for i, wl := range *w.Layers {
		switch {
		case wl.ID == nil:
			return nil, missing(fmt.Sprintf("layers[%d].id", i))
		case wl.RasterOffset == nil:
			return nil, missing(fmt.Sprintf("layers[%d].rasterOffset", i))
		case wl.RasterLength == nil:
			return nil, missing(fmt.Sprintf("layers[%d].rasterLength", i))
		}

		lm := layerMeta{
			ID:           *wl.ID,
			Name:         wl.Name,
			Opacity:      1,
			BlendMode:    blend.Normal,
			Visible:      true,
			OffsetX:      wl.OffsetX,
			OffsetY:      wl.OffsetY,
			RasterOffset: *wl.RasterOffset,
			RasterLength: *wl.RasterLength,
		}
		if wl.Opacity != nil {
			lm.Opacity = *wl.Opacity
		}
		if wl.Visible != nil {
			lm.Visible = *wl.Visible
		}
		if version >= 2 {
			lm.Locked = wl.Locked
		}
		if wl.BlendMode != "" {
			mode, err := blend.Parse(wl.BlendMode)
			if err != nil {
				slog.Warn("Unknown blend mode, using normal", "layer_id", lm.ID, "blend_mode", wl.BlendMode)
			} else {
				lm.BlendMode = mode
			}
		}
		if lm.Name == "" {
			lm.Name = fmt.Sprintf("Layer %d", i+1)
		}
		m.Layers = append(m.Layers, lm)
	}
	return m, nil
}
