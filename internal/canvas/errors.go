package canvas

import "errors"

// ErrLayerNotFound is returned when an operation names a layer id that is
// not part of the canvas. Use errors.Is(err, ErrLayerNotFound).
var ErrLayerNotFound = &LayerNotFoundError{}

// LayerNotFoundError carries the missing layer id.
type LayerNotFoundError struct {
	ID LayerID
}

func (e *LayerNotFoundError) Error() string {
	if e.ID != "" {
		return "layer not found: " + string(e.ID)
	}
	return "layer not found"
}

func (e *LayerNotFoundError) Is(target error) bool {
	_, ok := target.(*LayerNotFoundError)
	return ok
}

// ErrLastLayer is returned when an operation would leave the canvas
// without layers, or needs a layer below one that is already the bottom.
var ErrLastLayer = errors.New("cannot remove the last remaining layer")

// ErrLayerLocked is returned when pixels of a locked layer would change.
var ErrLayerLocked = &LayerLockedError{}

// LayerLockedError carries the locked layer id.
type LayerLockedError struct {
	ID LayerID
}

func (e *LayerLockedError) Error() string {
	if e.ID != "" {
		return "layer is locked: " + string(e.ID)
	}
	return "layer is locked"
}

func (e *LayerLockedError) Is(target error) bool {
	_, ok := target.(*LayerLockedError)
	return ok
}
