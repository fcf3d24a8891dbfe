package canvas

import (
	"fmt"
	"image"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/cwbudde/layerpaint/internal/blend"
	"github.com/cwbudde/layerpaint/internal/raster"
)

// Meta holds canvas-level metadata that is persisted with a session.
type Meta struct {
	Created  time.Time
	Modified time.Time
	// Extensions carries opaque key/value data. Keys this build does not
	// understand are kept verbatim so a load/save cycle preserves them.
	Extensions map[string][]byte
}

// Canvas is the in-memory model of one open document: fixed dimensions
// and an ordered stack of layers (index 0 is the bottom).
//
// A Canvas is safe for concurrent use. One mutex guards the layer stack,
// the composite cache and the metadata, so a composite always observes a
// consistent set of layers.
type Canvas struct {
	mu sync.Mutex

	width  int
	height int
	layout raster.Layout

	layers []*Layer
	active LayerID
	meta   Meta

	cache    *raster.Buffer
	seq      uint64
	nextName int

	events *broadcaster
}

// New creates a canvas holding a single transparent layer named
// "Background".
func New(width, height int, layout raster.Layout) (*Canvas, error) {
	buf, err := raster.New(width, height, layout)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	bg := NewLayer("", "Background", buf)
	return &Canvas{
		width:    width,
		height:   height,
		layout:   layout,
		layers:   []*Layer{bg},
		active:   bg.ID,
		meta:     Meta{Created: now, Modified: now, Extensions: map[string][]byte{}},
		nextName: 1,
		events:   newBroadcaster(),
	}, nil
}

// Restore assembles a canvas from decoded parts. Every layer buffer must
// match the canvas size and layout, ids must be unique, and at least one
// layer is required. An empty or unknown active id selects the top layer.
func Restore(width, height int, layout raster.Layout, layers []*Layer, active LayerID, meta Meta) (*Canvas, error) {
	if _, err := raster.ByteSize(width, height, layout); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, ErrLastLayer
	}

	seen := make(map[LayerID]bool, len(layers))
	for _, l := range layers {
		if l == nil || l.buf == nil {
			return nil, fmt.Errorf("restore canvas: layer without pixels")
		}
		if seen[l.ID] || l.ID == "" {
			return nil, fmt.Errorf("restore canvas: duplicate or empty layer id %q", l.ID)
		}
		seen[l.ID] = true
		if l.buf.Width() != width || l.buf.Height() != height || l.buf.Layout() != layout {
			return nil, &raster.DimensionError{
				Width:  l.buf.Width(),
				Height: l.buf.Height(),
				Reason: fmt.Sprintf("layer %s does not match canvas %dx%d %s", l.ID, width, height, layout),
			}
		}
		l.Opacity = clampOpacity(l.Opacity)
		if !l.BlendMode.Valid() {
			l.BlendMode = blend.Normal
		}
	}
	if !seen[active] {
		active = layers[len(layers)-1].ID
	}
	if meta.Extensions == nil {
		meta.Extensions = map[string][]byte{}
	}

	return &Canvas{
		width:    width,
		height:   height,
		layout:   layout,
		layers:   append([]*Layer(nil), layers...),
		active:   active,
		meta:     meta,
		nextName: len(layers),
		events:   newBroadcaster(),
	}, nil
}

// Width returns the canvas width shared by all layers.
func (c *Canvas) Width() int { return c.width }

// Height returns the canvas height shared by all layers.
func (c *Canvas) Height() int { return c.height }

// Layout returns the channel layout shared by all layers.
func (c *Canvas) Layout() raster.Layout { return c.layout }

// Len returns the number of layers.
func (c *Canvas) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layers)
}

// Layers returns metadata for every layer, bottom to top.
func (c *Canvas) Layers() []LayerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]LayerInfo, len(c.layers))
	for i, l := range c.layers {
		out[i] = c.infoLocked(i, l)
	}
	return out
}

// Layer returns metadata for one layer.
func (c *Canvas) Layer(id LayerID) (LayerInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, err := c.indexLocked(id)
	if err != nil {
		return LayerInfo{}, err
	}
	return c.infoLocked(i, c.layers[i]), nil
}

// ActiveLayer returns the id of the layer tools paint on.
func (c *Canvas) ActiveLayer() LayerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Meta returns a copy of the canvas metadata.
func (c *Canvas) Meta() Meta {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.meta
	m.Extensions = make(map[string][]byte, len(c.meta.Extensions))
	for k, v := range c.meta.Extensions {
		m.Extensions[k] = append([]byte(nil), v...)
	}
	return m
}

// SetExtension stores an opaque extension value under key. A nil value
// deletes the key.
func (c *Canvas) SetExtension(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == nil {
		delete(c.meta.Extensions, key)
	} else {
		c.meta.Extensions[key] = append([]byte(nil), value...)
	}
	c.touchLocked()
}

// Seq returns the invalidation counter. Two reads returning the same value
// bracket a period in which the composite did not change.
func (c *Canvas) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// AddLayer inserts a layer at index (0 = bottom). An index outside
// [0, Len()] places the layer on top. A nil initial buffer yields a fully
// transparent layer; otherwise initial is copied and must match the canvas
// size. The new layer becomes active.
func (c *Canvas) AddLayer(index int, initial *raster.Buffer) (LayerID, error) {
	var buf *raster.Buffer
	var err error
	if initial == nil {
		buf, err = raster.New(c.width, c.height, c.layout)
		if err != nil {
			return "", err
		}
	} else {
		if initial.Width() != c.width || initial.Height() != c.height {
			return "", &raster.DimensionError{
				Width:  initial.Width(),
				Height: initial.Height(),
				Reason: fmt.Sprintf("layer must be %dx%d", c.width, c.height),
			}
		}
		buf, err = initial.Convert(c.layout)
		if err != nil {
			return "", err
		}
	}

	c.mu.Lock()
	if index < 0 || index > len(c.layers) {
		index = len(c.layers)
	}
	c.nextName++
	l := NewLayer("", fmt.Sprintf("Layer %d", c.nextName), buf)
	c.layers = append(c.layers, nil)
	copy(c.layers[index+1:], c.layers[index:])
	c.layers[index] = l
	c.active = l.ID
	ev := c.invalidateLocked("layer-added", l.ID, image.Rectangle{})
	c.mu.Unlock()

	c.events.broadcast(ev)
	slog.Debug("Layer added", "layer_id", l.ID, "index", index)
	return l.ID, nil
}

// RemoveLayer deletes a layer. The last remaining layer cannot be removed.
// When the active layer is removed the layer below it becomes active, or
// the new bottom layer if it was already at the bottom.
func (c *Canvas) RemoveLayer(id LayerID) error {
	c.mu.Lock()
	i, err := c.indexLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(c.layers) == 1 {
		c.mu.Unlock()
		return ErrLastLayer
	}

	c.layers = append(c.layers[:i], c.layers[i+1:]...)
	if c.active == id {
		c.active = c.layers[max(i-1, 0)].ID
	}
	ev := c.invalidateLocked("layer-removed", id, image.Rectangle{})
	c.mu.Unlock()

	c.events.broadcast(ev)
	slog.Debug("Layer removed", "layer_id", id)
	return nil
}

// ReorderLayer moves a layer to newIndex, clamped to the valid range.
func (c *Canvas) ReorderLayer(id LayerID, newIndex int) error {
	c.mu.Lock()
	i, err := c.indexLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	newIndex = max(0, min(newIndex, len(c.layers)-1))
	if newIndex == i {
		c.mu.Unlock()
		return nil
	}

	l := c.layers[i]
	c.layers = append(c.layers[:i], c.layers[i+1:]...)
	c.layers = append(c.layers, nil)
	copy(c.layers[newIndex+1:], c.layers[newIndex:])
	c.layers[newIndex] = l
	ev := c.invalidateLocked("layer-reordered", id, image.Rectangle{})
	c.mu.Unlock()

	c.events.broadcast(ev)
	return nil
}

// SetActiveLayer selects the layer tools paint on.
func (c *Canvas) SetActiveLayer(id LayerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.indexLocked(id); err != nil {
		return err
	}
	c.active = id
	return nil
}

// SetLayerName renames a layer. Names need not be unique.
func (c *Canvas) SetLayerName(id LayerID, name string) error {
	return c.updateLayer(id, "", func(l *Layer) bool {
		l.Name = name
		return false
	})
}

// SetLayerOpacity sets opacity, clamped to [0, 1].
func (c *Canvas) SetLayerOpacity(id LayerID, opacity float64) error {
	opacity = clampOpacity(opacity)
	return c.updateLayer(id, "opacity", func(l *Layer) bool {
		changed := l.Opacity != opacity
		l.Opacity = opacity
		return changed
	})
}

// SetLayerBlendMode changes how the layer is blended into those below.
func (c *Canvas) SetLayerBlendMode(id LayerID, mode blend.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("set blend mode: unknown mode %d", uint8(mode))
	}
	return c.updateLayer(id, "blend-mode", func(l *Layer) bool {
		changed := l.BlendMode != mode
		l.BlendMode = mode
		return changed
	})
}

// SetLayerVisible shows or hides a layer.
func (c *Canvas) SetLayerVisible(id LayerID, visible bool) error {
	return c.updateLayer(id, "visibility", func(l *Layer) bool {
		changed := l.Visible != visible
		l.Visible = visible
		return changed
	})
}

// SetLayerLocked protects a layer's pixels from Paint.
func (c *Canvas) SetLayerLocked(id LayerID, locked bool) error {
	return c.updateLayer(id, "", func(l *Layer) bool {
		l.Locked = locked
		return false
	})
}

// SetLayerOffset moves a layer relative to the canvas origin.
func (c *Canvas) SetLayerOffset(id LayerID, offset image.Point) error {
	return c.updateLayer(id, "offset", func(l *Layer) bool {
		changed := l.Offset != offset
		l.Offset = offset
		return changed
	})
}

// LayerUpdate lists layer properties to change together; nil fields stay.
type LayerUpdate struct {
	Name      *string      `json:"name"`
	Opacity   *float64     `json:"opacity"`
	BlendMode *blend.Mode  `json:"blendMode"`
	Visible   *bool        `json:"visible"`
	Locked    *bool        `json:"locked"`
	Offset    *image.Point `json:"offset"`
	Index     *int         `json:"index"`
}

// UpdateLayer applies every set field of u under one lock. Either all of
// them take effect or, on error, none do. At most one invalidation is
// sent: it carries the single change's reason, or "layer-updated" when
// several render-affecting properties changed.
func (c *Canvas) UpdateLayer(id LayerID, u LayerUpdate) (LayerInfo, error) {
	if u.BlendMode != nil && !u.BlendMode.Valid() {
		return LayerInfo{}, fmt.Errorf("update layer: unknown blend mode %d", uint8(*u.BlendMode))
	}

	c.mu.Lock()
	i, err := c.indexLocked(id)
	if err != nil {
		c.mu.Unlock()
		return LayerInfo{}, err
	}
	l := c.layers[i]

	var reasons []string
	if u.Name != nil {
		l.Name = *u.Name
	}
	if u.Locked != nil {
		l.Locked = *u.Locked
	}
	if u.Opacity != nil {
		if o := clampOpacity(*u.Opacity); o != l.Opacity {
			l.Opacity = o
			reasons = append(reasons, "opacity")
		}
	}
	if u.BlendMode != nil && *u.BlendMode != l.BlendMode {
		l.BlendMode = *u.BlendMode
		reasons = append(reasons, "blend-mode")
	}
	if u.Visible != nil && *u.Visible != l.Visible {
		l.Visible = *u.Visible
		reasons = append(reasons, "visibility")
	}
	if u.Offset != nil && *u.Offset != l.Offset {
		l.Offset = *u.Offset
		reasons = append(reasons, "offset")
	}
	if u.Index != nil {
		if to := max(0, min(*u.Index, len(c.layers)-1)); to != i {
			c.layers = append(c.layers[:i], c.layers[i+1:]...)
			c.layers = append(c.layers, nil)
			copy(c.layers[to+1:], c.layers[to:])
			c.layers[to] = l
			i = to
			reasons = append(reasons, "layer-reordered")
		}
	}
	info := c.infoLocked(i, l)

	if len(reasons) == 0 {
		c.touchLocked()
		c.mu.Unlock()
		return info, nil
	}
	reason := reasons[0]
	if len(reasons) > 1 {
		reason = "layer-updated"
	}
	ev := c.invalidateLocked(reason, id, image.Rectangle{})
	c.mu.Unlock()

	c.events.broadcast(ev)
	return info, nil
}

// updateLayer applies fn under the lock; fn reports whether the change
// affects the composite.
func (c *Canvas) updateLayer(id LayerID, reason string, fn func(*Layer) bool) error {
	c.mu.Lock()
	i, err := c.indexLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !fn(c.layers[i]) {
		c.touchLocked()
		c.mu.Unlock()
		return nil
	}
	ev := c.invalidateLocked(reason, id, image.Rectangle{})
	c.mu.Unlock()

	c.events.broadcast(ev)
	return nil
}

// PaintFunc mutates a layer buffer and returns the rectangle it changed,
// in layer coordinates. An empty rectangle means nothing changed.
type PaintFunc func(buf *raster.Buffer) (image.Rectangle, error)

// Paint is the only way to change layer pixels. fn runs under the canvas
// lock against the layer's buffer; if it reports a change the composite
// cache is invalidated. Locked layers are rejected with ErrLayerLocked.
func (c *Canvas) Paint(id LayerID, fn PaintFunc) error {
	c.mu.Lock()
	i, err := c.indexLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	l := c.layers[i]
	if l.Locked {
		c.mu.Unlock()
		return &LayerLockedError{ID: id}
	}

	changed, err := fn(l.buf)
	if changed.Empty() {
		c.mu.Unlock()
		return err
	}
	ev := c.invalidateLocked("pixels", id, changed.Add(l.Offset).Intersect(image.Rect(0, 0, c.width, c.height)))
	c.mu.Unlock()

	c.events.broadcast(ev)
	return err
}

// LayerPixels returns a copy of a layer's buffer.
func (c *Canvas) LayerPixels(id LayerID) (*raster.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, err := c.indexLocked(id)
	if err != nil {
		return nil, err
	}
	return c.layers[i].buf.Clone(), nil
}

// ReadLayers runs fn with the live layer stack under the canvas lock. fn
// must not modify the layers or retain the slice.
func (c *Canvas) ReadLayers(fn func(layers []*Layer, active LayerID)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.layers, c.active)
}

// MergeDown blends a layer into the layer directly below it, using the
// upper layer's blend mode, opacity and offset, and removes it. The layer
// below must not be locked. Merging the bottom layer fails with
// ErrLastLayer.
func (c *Canvas) MergeDown(id LayerID) error {
	c.mu.Lock()
	i, err := c.indexLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if i == 0 {
		c.mu.Unlock()
		return fmt.Errorf("merge down %s: no layer below: %w", id, ErrLastLayer)
	}
	top, below := c.layers[i], c.layers[i-1]
	if below.Locked {
		c.mu.Unlock()
		return &LayerLockedError{ID: below.ID}
	}

	mergeInto(below.buf, top)
	c.layers = append(c.layers[:i], c.layers[i+1:]...)
	if c.active == id {
		c.active = below.ID
	}
	ev := c.invalidateLocked("layer-merged", below.ID, image.Rectangle{})
	c.mu.Unlock()

	c.events.broadcast(ev)
	slog.Debug("Layer merged down", "layer_id", id, "into", below.ID)
	return nil
}

// Flatten replaces the whole stack with one layer holding the current
// composite and returns its id.
func (c *Canvas) Flatten() LayerID {
	c.mu.Lock()
	flat := c.compositeLocked().Clone()
	l := NewLayer("", c.layers[0].Name, flat)
	c.layers = []*Layer{l}
	c.active = l.ID
	ev := c.invalidateLocked("flattened", l.ID, image.Rectangle{})
	c.mu.Unlock()

	c.events.broadcast(ev)
	return l.ID
}

// Composite returns the flattened image of all visible layers. The result
// is cached until a layer's pixels, opacity, blend mode, visibility,
// offset or the stack order change. The returned buffer is shared and
// must not be modified.
func (c *Canvas) Composite() *raster.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compositeLocked()
}

// CompositeSeq is Composite plus the invalidation counter the result
// corresponds to.
func (c *Canvas) CompositeSeq() (*raster.Buffer, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compositeLocked(), c.seq
}

func (c *Canvas) compositeLocked() *raster.Buffer {
	if c.cache == nil {
		start := time.Now()
		c.cache = CompositeLayers(c.width, c.height, c.layout, c.layers)
		slog.Debug("Canvas composited", "layers", len(c.layers), "seq", c.seq, "elapsed", time.Since(start))
	}
	return c.cache
}

// Subscribe returns a channel receiving an Invalidation for every cache
// invalidation. Slow subscribers miss events rather than block painting.
func (c *Canvas) Subscribe() chan Invalidation {
	return c.events.subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (c *Canvas) Unsubscribe(ch chan Invalidation) {
	c.events.unsubscribe(ch)
}

// Close releases all subscribers. The canvas stays usable but no longer
// notifies anyone subscribed before the call.
func (c *Canvas) Close() {
	c.events.closeAll()
}

// Clone returns an independent deep copy without subscribers.
func (c *Canvas) Clone() *Canvas {
	c.mu.Lock()
	defer c.mu.Unlock()

	layers := make([]*Layer, len(c.layers))
	for i, l := range c.layers {
		layers[i] = l.clone()
	}
	meta := c.meta
	meta.Extensions = maps.Clone(c.meta.Extensions)
	return &Canvas{
		width:    c.width,
		height:   c.height,
		layout:   c.layout,
		layers:   layers,
		active:   c.active,
		meta:     meta,
		cache:    c.cache,
		seq:      c.seq,
		nextName: c.nextName,
		events:   newBroadcaster(),
	}
}

func (c *Canvas) indexLocked(id LayerID) (int, error) {
	for i, l := range c.layers {
		if l.ID == id {
			return i, nil
		}
	}
	return -1, &LayerNotFoundError{ID: id}
}

func (c *Canvas) infoLocked(i int, l *Layer) LayerInfo {
	info := l.Info()
	info.Index = i
	info.Active = l.ID == c.active
	return info
}

func (c *Canvas) touchLocked() {
	c.meta.Modified = time.Now().UTC()
}

func (c *Canvas) invalidateLocked(reason string, id LayerID, region image.Rectangle) Invalidation {
	c.cache = nil
	c.seq++
	c.touchLocked()
	return Invalidation{
		Seq:       c.seq,
		Reason:    reason,
		LayerID:   id,
		Region:    region,
		Timestamp: c.meta.Modified,
	}
}
