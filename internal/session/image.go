package session

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// layoutFor picks RGBA16 for images with more than 8 bits per channel.
func layoutFor(img image.Image) raster.Layout {
	switch img.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model:
		return raster.LayoutRGBA16
	default:
		return raster.LayoutRGBA8
	}
}

// CanvasFromImage creates a single-layer canvas the size of img.
func CanvasFromImage(img image.Image) (*canvas.Canvas, error) {
	buf, err := raster.FromImage(img, layoutFor(img))
	if err != nil {
		return nil, err
	}
	l := canvas.NewLayer("", "Background", buf)
	return canvas.Restore(buf.Width(), buf.Height(), buf.Layout(), []*canvas.Layer{l}, l.ID, canvas.Meta{})
}

// FitImage centers img on a transparent buffer of the given size,
// cropping whatever overhangs.
func FitImage(img image.Image, width, height int, layout raster.Layout) (*raster.Buffer, error) {
	src, err := raster.FromImage(img, layout)
	if err != nil {
		return nil, err
	}
	dst, err := raster.New(width, height, layout)
	if err != nil {
		return nil, err
	}
	// Integer halves of the size difference crop evenly and pad evenly;
	// odd remainders go to the right and bottom.
	x := (width - src.Width()) / 2
	y := (height - src.Height()) / 2
	dst.Blit(src, x, y, raster.Replace)
	return dst, nil
}

// ImportImage adds img as a new top layer of c, centered and cropped to
// the canvas size, and returns the new layer id.
func ImportImage(c *canvas.Canvas, img image.Image) (canvas.LayerID, error) {
	buf, err := FitImage(img, c.Width(), c.Height(), c.Layout())
	if err != nil {
		return "", fmt.Errorf("import image: %w", err)
	}
	return c.AddLayer(-1, buf)
}

// Flatten returns the composite of c as a standard library image, 16 bits
// per channel for RGBA16 canvases.
func Flatten(c *canvas.Canvas) image.Image {
	buf := c.Composite()
	if buf.Layout() == raster.LayoutRGBA16 {
		return buf.ToNRGBA64()
	}
	return buf.ToNRGBA()
}

// Thumbnail scales buf so its longer side is at most maxSide pixels,
// keeping the aspect ratio. Buffers already small enough are only
// converted.
func Thumbnail(buf *raster.Buffer, maxSide int) *image.NRGBA {
	src := buf.ToNRGBA()
	w, h := buf.Width(), buf.Height()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return src
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func decodeImage(decode func(io.Reader) (image.Image, error)) func(io.Reader) (*canvas.Canvas, error) {
	return func(r io.Reader) (*canvas.Canvas, error) {
		img, err := decode(r)
		if err != nil {
			return nil, err
		}
		return CanvasFromImage(img)
	}
}

func encodePNG(w io.Writer, c *canvas.Canvas, _ Options) error {
	return png.Encode(w, Flatten(c))
}

func encodeBMP(w io.Writer, c *canvas.Canvas, _ Options) error {
	// BMP has no 16-bit channels.
	return bmp.Encode(w, c.Composite().ToNRGBA())
}

func encodeTIFF(w io.Writer, c *canvas.Canvas, _ Options) error {
	return tiff.Encode(w, Flatten(c), &tiff.Options{Compression: tiff.Deflate})
}
