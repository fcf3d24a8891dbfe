package raster

import (
	"image"
	"image/color"
)

// ToNRGBA converts the buffer to an 8-bit standard library image.
func (b *Buffer) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(b.Bounds())
	if b.layout == LayoutRGBA8 {
		copy(img.Pix, b.pix)
		return img
	}
	bpp := b.layout.BytesPerPixel()
	for i := 0; i < b.width*b.height; i++ {
		n := b.load(i * bpp).NRGBA()
		img.Pix[i*4+0] = n.R
		img.Pix[i*4+1] = n.G
		img.Pix[i*4+2] = n.B
		img.Pix[i*4+3] = n.A
	}
	return img
}

// ToNRGBA64 converts the buffer to a 16-bit standard library image.
func (b *Buffer) ToNRGBA64() *image.NRGBA64 {
	img := image.NewNRGBA64(b.Bounds())
	bpp := b.layout.BytesPerPixel()
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			c := b.load((y*b.width + x) * bpp)
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: quantize16(c.R),
				G: quantize16(c.G),
				B: quantize16(c.B),
				A: quantize16(c.A),
			})
		}
	}
	return img
}

// FromImage copies img into a new buffer of the given layout. The image
// bounds are translated so the result starts at the origin.
func FromImage(img image.Image, layout Layout) (*Buffer, error) {
	bounds := img.Bounds()
	b, err := New(bounds.Dx(), bounds.Dy(), layout)
	if err != nil {
		return nil, err
	}
	bpp := layout.BytesPerPixel()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := ((y-bounds.Min.Y)*b.width + (x - bounds.Min.X)) * bpp
			b.store(i, FromColor(img.At(x, y)))
		}
	}
	return b, nil
}
