package raster

import "image"

// BlendFunc combines a destination pixel with a source pixel and returns
// the new destination value.
type BlendFunc func(dst, src Color) Color

// Replace overwrites the destination with the source.
func Replace(_, src Color) Color { return src }

// Over is Porter-Duff source-over on non-premultiplied colors.
func Over(dst, src Color) Color {
	if src.A <= 0 {
		return dst
	}
	if src.A >= 1 {
		return src
	}
	outA := src.A + dst.A*(1-src.A)
	if outA <= 0 {
		return Transparent
	}
	s := src.Premultiply()
	d := dst.Premultiply()
	return Color{
		R: s.R + d.R*(1-src.A),
		G: s.G + d.G*(1-src.A),
		B: s.B + d.B*(1-src.A),
		A: outA,
	}.Unpremultiply()
}

// Erase is Porter-Duff destination-out: source alpha removes coverage
// from the destination and source color is ignored.
func Erase(dst, src Color) Color {
	a := dst.A * (1 - clamp01(src.A))
	if a <= 0 {
		return Transparent
	}
	return Color{R: dst.R, G: dst.G, B: dst.B, A: a}
}

// Blit composites src onto b with src's origin at (dstX, dstY). Pixels
// falling outside b are clipped; partial or empty overlap is not an error.
// A nil fn means Over. It returns the destination rectangle touched.
func (b *Buffer) Blit(src *Buffer, dstX, dstY int, fn BlendFunc) image.Rectangle {
	if fn == nil {
		fn = Over
	}
	r := src.Bounds().Add(image.Pt(dstX, dstY)).Intersect(b.Bounds())
	if r.Empty() {
		return image.Rectangle{}
	}

	dbpp := b.layout.BytesPerPixel()
	sbpp := src.layout.BytesPerPixel()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		sy := y - dstY
		for x := r.Min.X; x < r.Max.X; x++ {
			sx := x - dstX
			di := (y*b.width + x) * dbpp
			s := src.load((sy*src.width + sx) * sbpp)
			b.store(di, fn(b.load(di), s))
		}
	}
	return r
}
