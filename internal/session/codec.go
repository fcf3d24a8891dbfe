// Package session reads and writes layered documents. The native format
// is a small binary container:
//
//	header   : magic "KSPS" | version u16 | reserved u16 | metadata length u32
//	metadata : UTF-8 JSON (see metadata)
//	raster   : per-layer pixel blocks, addressed from the metadata by
//	           offset and length relative to the start of this block
//
// All integers are little-endian. Pixel blocks hold the raw buffer bytes
// of raster.Buffer (RGBA8, or RGBA16 with little-endian channels),
// optionally zstd-compressed per layer.
package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/cwbudde/layerpaint/internal/blend"
	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/klauspost/compress/zstd"
)

const (
	// Magic opens every native session file.
	Magic = "KSPS"
	// Version is the format version this build writes.
	Version uint16 = 2

	headerSize = 12

	// MaxMetadataSize bounds the JSON metadata section.
	MaxMetadataSize = 64 << 20
)

// Compression selects how layer pixel blocks are stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts "none" or "zstd"; empty means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

// Options controls encoding.
type Options struct {
	Compression Compression
}

// DefaultOptions compresses pixel data with zstd.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

type metadata struct {
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Layout      string            `json:"layout"`
	Compression Compression       `json:"compression"`
	Created     time.Time         `json:"created"`
	Modified    time.Time         `json:"modified"`
	ActiveLayer canvas.LayerID    `json:"activeLayer"`
	Extensions  map[string][]byte `json:"extensions"`
	Layers      []layerMeta       `json:"layers"`
}

type layerMeta struct {
	ID           canvas.LayerID `json:"id"`
	Name         string         `json:"name"`
	Opacity      float64        `json:"opacity"`
	BlendMode    blend.Mode     `json:"blendMode"`
	Visible      bool           `json:"visible"`
	Locked       bool           `json:"locked"`
	OffsetX      int            `json:"offsetX"`
	OffsetY      int            `json:"offsetY"`
	RasterOffset int64          `json:"rasterOffset"`
	RasterLength int64          `json:"rasterLength"`
}

// Encode serializes c with DefaultOptions.
func Encode(c *canvas.Canvas) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, c, DefaultOptions()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes c to w. The output depends only on the canvas state and
// opts, so encoding the same canvas twice yields identical bytes.
func EncodeTo(w io.Writer, c *canvas.Canvas, opts Options) error {
	comp, err := ParseCompression(string(opts.Compression))
	if err != nil {
		return err
	}

	meta := metadata{
		Width:       c.Width(),
		Height:      c.Height(),
		Layout:      c.Layout().String(),
		Compression: comp,
	}
	m := c.Meta()
	meta.Created, meta.Modified, meta.Extensions = m.Created, m.Modified, m.Extensions

	// Copy everything under one lock so metadata and pixels agree.
	var pixels [][]byte
	c.ReadLayers(func(layers []*canvas.Layer, active canvas.LayerID) {
		meta.ActiveLayer = active
		for _, l := range layers {
			meta.Layers = append(meta.Layers, layerMeta{
				ID:        l.ID,
				Name:      l.Name,
				Opacity:   l.Opacity,
				BlendMode: l.BlendMode,
				Visible:   l.Visible,
				Locked:    l.Locked,
				OffsetX:   l.Offset.X,
				OffsetY:   l.Offset.Y,
			})
			pixels = append(pixels, bytes.Clone(l.Buffer().Pix()))
		}
	})

	if comp == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		for i, p := range pixels {
			pixels[i] = enc.EncodeAll(p, nil)
		}
		enc.Close()
	}

	var offset int64
	for i, p := range pixels {
		meta.Layers[i].RasterOffset = offset
		meta.Layers[i].RasterLength = int64(len(p))
		offset += int64(len(p))
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	if len(metaBytes) > MaxMetadataSize {
		return fmt.Errorf("session metadata too large: %d bytes", len(metaBytes))
	}

	header := make([]byte, headerSize)
	copy(header, Magic)
	binary.LittleEndian.PutUint16(header[4:], Version)
	binary.LittleEndian.PutUint32(header[8:], uint32(len(metaBytes)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write session header: %w", err)
	}
	if _, err := w.Write(metaBytes); err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}
	for _, p := range pixels {
		if _, err := w.Write(p); err != nil {
			return fmt.Errorf("write layer raster: %w", err)
		}
	}

	slog.Debug("Session encoded", "layers", len(pixels), "metadata_bytes", len(metaBytes), "raster_bytes", offset, "compression", comp)
	return nil
}

// Decode reconstructs a canvas from a native session. On error no canvas
// is returned.
func Decode(data []byte) (*canvas.Canvas, error) {
	version, meta, metaLen, err := parse(data)
	if err != nil {
		return nil, err
	}

	layout, err := raster.ParseLayout(meta.Layout)
	if err != nil {
		return nil, &CorruptError{Reason: "layout", Err: err}
	}
	// Checked before any allocation sized from the metadata.
	want, err := raster.ByteSize(meta.Width, meta.Height, layout)
	if err != nil {
		return nil, &CorruptError{Reason: "canvas size", Err: err}
	}
	if len(meta.Layers) == 0 {
		return nil, corrupt("session has no layers")
	}

	var dec *zstd.Decoder
	if meta.Compression == CompressionZstd {
		dec, err = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(want)))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
	}

	block := data[headerSize+metaLen:]
	layers := make([]*canvas.Layer, 0, len(meta.Layers))
	for i, lm := range meta.Layers {
		if lm.RasterOffset < 0 || lm.RasterLength < 0 {
			return nil, corrupt("layer %d has a negative raster range", i)
		}
		end := lm.RasterOffset + lm.RasterLength
		if end > int64(len(block)) {
			return nil, &TruncatedError{
				Section: fmt.Sprintf("layer %d raster", i),
				Want:    end,
				Have:    int64(len(block)),
			}
		}
		raw := block[lm.RasterOffset:end]
		if dec != nil {
			raw, err = dec.DecodeAll(raw, make([]byte, 0, want))
			if err != nil {
				return nil, &CorruptError{Reason: fmt.Sprintf("layer %d raster", i), Err: err}
			}
		}
		if len(raw) != want {
			return nil, corrupt("layer %d raster holds %d bytes, want %d", i, len(raw), want)
		}

		buf, err := raster.FromBytes(meta.Width, meta.Height, layout, raw)
		if err != nil {
			return nil, &CorruptError{Reason: fmt.Sprintf("layer %d raster", i), Err: err}
		}
		l := canvas.NewLayer(lm.ID, lm.Name, buf)
		l.Opacity = lm.Opacity
		l.BlendMode = lm.BlendMode
		l.Visible = lm.Visible
		l.Locked = lm.Locked
		l.Offset.X, l.Offset.Y = lm.OffsetX, lm.OffsetY
		layers = append(layers, l)
	}

	c, err := canvas.Restore(meta.Width, meta.Height, layout, layers, meta.ActiveLayer, canvas.Meta{
		Created:    meta.Created,
		Modified:   meta.Modified,
		Extensions: meta.Extensions,
	})
	if err != nil {
		return nil, &CorruptError{Reason: "layer stack", Err: err}
	}

	slog.Debug("Session decoded", "version", version, "width", meta.Width, "height", meta.Height, "layers", len(layers))
	return c, nil
}

// Info is the metadata of a session, available without decoding pixels.
type Info struct {
	Version     uint16             `json:"version"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Layout      string             `json:"layout"`
	Compression Compression        `json:"compression"`
	Created     time.Time          `json:"created"`
	Modified    time.Time          `json:"modified"`
	ActiveLayer canvas.LayerID     `json:"activeLayer"`
	Extensions  []string           `json:"extensions,omitempty"`
	Layers      []canvas.LayerInfo `json:"layers"`
	// RasterBytes is the stored size of all pixel blocks.
	RasterBytes int64 `json:"rasterBytes"`
}

// ReadInfo reads the header and metadata from r and stops before the
// raster block.
func ReadInfo(r io.Reader) (*Info, error) {
	header := make([]byte, headerSize)
	if n, err := io.ReadFull(r, header); err != nil {
		if n >= 4 && string(header[:4]) != Magic {
			return nil, corrupt("bad magic %q", header[:4])
		}
		return nil, &TruncatedError{Section: "header", Want: headerSize, Have: int64(n)}
	}
	version, metaLen, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	// Grow with the bytes actually read instead of trusting the header.
	var metaBuf bytes.Buffer
	if n, err := io.CopyN(&metaBuf, r, int64(metaLen)); err != nil {
		if err != io.EOF {
			return nil, fmt.Errorf("read session metadata: %w", err)
		}
		return nil, &TruncatedError{Section: "metadata", Want: int64(metaLen), Have: n}
	}
	meta, err := parseMetadata(version, metaBuf.Bytes())
	if err != nil {
		return nil, err
	}

	info := &Info{
		Version:     version,
		Width:       meta.Width,
		Height:      meta.Height,
		Layout:      meta.Layout,
		Compression: meta.Compression,
		Created:     meta.Created,
		Modified:    meta.Modified,
		ActiveLayer: meta.ActiveLayer,
	}
	for k := range meta.Extensions {
		info.Extensions = append(info.Extensions, k)
	}
	slices.Sort(info.Extensions)
	for i, lm := range meta.Layers {
		info.RasterBytes += lm.RasterLength
		info.Layers = append(info.Layers, canvas.LayerInfo{
			ID:        lm.ID,
			Name:      lm.Name,
			Opacity:   lm.Opacity,
			BlendMode: lm.BlendMode,
			Visible:   lm.Visible,
			Locked:    lm.Locked,
			Offset:    image.Pt(lm.OffsetX, lm.OffsetY),
			Index:     i,
			Active:    lm.ID == meta.ActiveLayer,
		})
	}
	return info, nil
}

func parse(data []byte) (uint16, *metadata, int, error) {
	if len(data) < headerSize {
		if len(data) >= 4 && string(data[:4]) != Magic {
			return 0, nil, 0, corrupt("bad magic %q", data[:4])
		}
		return 0, nil, 0, &TruncatedError{Section: "header", Want: headerSize, Have: int64(len(data))}
	}
	version, metaLen, err := parseHeader(data[:headerSize])
	if err != nil {
		return 0, nil, 0, err
	}
	if int64(headerSize)+int64(metaLen) > int64(len(data)) {
		return 0, nil, 0, &TruncatedError{
			Section: "metadata",
			Want:    int64(metaLen),
			Have:    int64(len(data) - headerSize),
		}
	}
	meta, err := parseMetadata(version, data[headerSize:headerSize+int(metaLen)])
	if err != nil {
		return 0, nil, 0, err
	}
	return version, meta, int(metaLen), nil
}

func parseHeader(h []byte) (uint16, uint32, error) {
	if string(h[:4]) != Magic {
		if string(h[:4]) == LegacyMagic {
			return 0, 0, corrupt("legacy %s file, use DecodeLegacy", LegacyMagic)
		}
		return 0, 0, corrupt("bad magic %q", h[:4])
	}
	version := binary.LittleEndian.Uint16(h[4:])
	if version == 0 || version > Version {
		return 0, 0, corrupt("format version %d not supported (max %d)", version, Version)
	}
	metaLen := binary.LittleEndian.Uint32(h[8:])
	if metaLen > MaxMetadataSize {
		return 0, 0, corrupt("metadata length %d exceeds %d", metaLen, MaxMetadataSize)
	}
	return version, metaLen, nil
}
