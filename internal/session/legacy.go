package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/klauspost/compress/zlib"
)

// LegacyMagic opens files written by the first-generation application.
const LegacyMagic = "KSP1"

// legacyHeader is 17 packed bytes: magic, width u32, height u32,
// channels u8, dtype u8, compression u8, layer count u16.
type legacyHeader struct {
	Magic       [4]byte
	Width       uint32
	Height      uint32
	Channels    uint8
	DType       uint8
	Compression uint8
	Layers      uint16
}

const (
	legacyHeaderSize = 17
	legacyDTypeU16   = 2
)

// DecodeLegacy imports a KSP1 file: an uncompressed header followed by the
// concatenated RGBA uint16 layer buffers, zlib-compressed when the header
// says so. Layers get fresh ids; the top layer becomes active.
func DecodeLegacy(data []byte) (*canvas.Canvas, error) {
	if len(data) < legacyHeaderSize {
		return nil, &TruncatedError{Section: "legacy header", Want: legacyHeaderSize, Have: int64(len(data))}
	}
	var h legacyHeader
	if err := binary.Read(bytes.NewReader(data[:legacyHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, &CorruptError{Reason: "legacy header", Err: err}
	}
	if string(h.Magic[:]) != LegacyMagic {
		return nil, corrupt("bad legacy magic %q", h.Magic[:])
	}
	if h.Channels != 4 || h.DType != legacyDTypeU16 {
		return nil, corrupt("unsupported legacy pixel format: %d channels, dtype %d", h.Channels, h.DType)
	}
	if h.Width == 0 || h.Height == 0 || h.Layers == 0 {
		return nil, corrupt("empty legacy document %dx%d with %d layers", h.Width, h.Height, h.Layers)
	}

	payload := data[legacyHeaderSize:]
	if h.Compression != 0 {
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, &CorruptError{Reason: "legacy payload", Err: err}
		}
		payload, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, &CorruptError{Reason: "legacy payload", Err: err}
		}
	}

	w, ht := int(h.Width), int(h.Height)
	layerSize := int64(w) * int64(ht) * int64(raster.LayoutRGBA16.BytesPerPixel())
	if need := layerSize * int64(h.Layers); need > int64(len(payload)) {
		return nil, &TruncatedError{Section: "legacy layers", Want: need, Have: int64(len(payload))}
	}

	layers := make([]*canvas.Layer, 0, h.Layers)
	for i := 0; i < int(h.Layers); i++ {
		off := int64(i) * layerSize
		buf, err := raster.FromBytes(w, ht, raster.LayoutRGBA16, payload[off:off+layerSize])
		if err != nil {
			return nil, &CorruptError{Reason: fmt.Sprintf("legacy layer %d", i), Err: err}
		}
		layers = append(layers, canvas.NewLayer("", fmt.Sprintf("Layer %d", i+1), buf))
	}

	c, err := canvas.Restore(w, ht, raster.LayoutRGBA16, layers, "", canvas.Meta{})
	if err != nil {
		return nil, &CorruptError{Reason: "legacy layer stack", Err: err}
	}
	slog.Debug("Legacy session imported", "width", w, "height", ht, "layers", len(layers))
	return c, nil
}

// EncodeLegacy writes c in the KSP1 layout so older tools can read it.
// Layer metadata other than pixel data is lost; offsets are not applied.
func EncodeLegacy(w io.Writer, c *canvas.Canvas) error {
	var pixels [][]byte
	c.ReadLayers(func(layers []*canvas.Layer, _ canvas.LayerID) {
		for _, l := range layers {
			p, err := l.Buffer().Convert(raster.LayoutRGBA16)
			if err != nil {
				continue
			}
			pixels = append(pixels, p.Pix())
		}
	})
	if len(pixels) > int(^uint16(0)) {
		return fmt.Errorf("legacy format holds at most %d layers, got %d", ^uint16(0), len(pixels))
	}

	h := legacyHeader{
		Width:       uint32(c.Width()),
		Height:      uint32(c.Height()),
		Channels:    4,
		DType:       legacyDTypeU16,
		Compression: 1,
		Layers:      uint16(len(pixels)),
	}
	copy(h.Magic[:], LegacyMagic)
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write legacy header: %w", err)
	}

	zw := zlib.NewWriter(w)
	for _, p := range pixels {
		if _, err := zw.Write(p); err != nil {
			return fmt.Errorf("write legacy payload: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("write legacy payload: %w", err)
	}
	return nil
}
