package raster

import "fmt"

// ErrInvalidDimensions is returned when a buffer is requested with a
// non-positive width or height, an unknown layout, or raw data whose
// length does not match the requested geometry.
// Use errors.Is(err, ErrInvalidDimensions) to check for this error.
var ErrInvalidDimensions = &DimensionError{}

// DimensionError describes rejected buffer geometry.
type DimensionError struct {
	Width  int
	Height int
	Reason string
}

func (e *DimensionError) Error() string {
	if e.Reason == "" && e.Width == 0 && e.Height == 0 {
		return "invalid dimensions"
	}
	if e.Reason != "" {
		return fmt.Sprintf("invalid dimensions %dx%d: %s", e.Width, e.Height, e.Reason)
	}
	return fmt.Sprintf("invalid dimensions %dx%d", e.Width, e.Height)
}

func (e *DimensionError) Is(target error) bool {
	_, ok := target.(*DimensionError)
	return ok
}

// ErrIndexOutOfBounds is returned by checked pixel accessors when the
// coordinate lies outside [0,width)x[0,height).
var ErrIndexOutOfBounds = &BoundsError{}

// BoundsError records the offending coordinate and the buffer size.
type BoundsError struct {
	X, Y          int
	Width, Height int
}

func (e *BoundsError) Error() string {
	if e.Width == 0 && e.Height == 0 {
		return "index out of bounds"
	}
	return fmt.Sprintf("index out of bounds: (%d,%d) not in %dx%d", e.X, e.Y, e.Width, e.Height)
}

func (e *BoundsError) Is(target error) bool {
	_, ok := target.(*BoundsError)
	return ok
}
