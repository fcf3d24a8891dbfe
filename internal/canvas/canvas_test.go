package canvas

import (
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/layerpaint/internal/blend"
	"github.com/cwbudde/layerpaint/internal/raster"
)

func newTestCanvas(t *testing.T, w, h int) *Canvas {
	t.Helper()
	c, err := New(w, h, raster.LayoutRGBA8)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func fillLayer(t *testing.T, c *Canvas, id LayerID, col raster.Color) {
	t.Helper()
	err := c.Paint(id, func(buf *raster.Buffer) (image.Rectangle, error) {
		buf.Fill(col)
		return buf.Bounds(), nil
	})
	if err != nil {
		t.Fatalf("Paint failed: %v", err)
	}
}

func setPixel(t *testing.T, c *Canvas, id LayerID, x, y int, col raster.Color) {
	t.Helper()
	err := c.Paint(id, func(buf *raster.Buffer) (image.Rectangle, error) {
		return image.Rect(x, y, x+1, y+1), buf.Set(x, y, col)
	})
	if err != nil {
		t.Fatalf("Paint failed: %v", err)
	}
}

func TestNew_SingleTransparentLayer(t *testing.T) {
	c := newTestCanvas(t, 5, 3)

	layers := c.Layers()
	if len(layers) != 1 {
		t.Fatalf("Expected 1 layer, got %d", len(layers))
	}
	if layers[0].Name != "Background" {
		t.Errorf("Expected name Background, got %q", layers[0].Name)
	}
	if !layers[0].Active || c.ActiveLayer() != layers[0].ID {
		t.Error("Expected the only layer to be active")
	}

	empty, _ := raster.New(5, 3, raster.LayoutRGBA8)
	if !c.Composite().Equal(empty) {
		t.Error("Expected a fully transparent composite")
	}
}

func TestNew_InvalidDimensions(t *testing.T) {
	if _, err := New(0, 10, raster.LayoutRGBA8); !errors.Is(err, raster.ErrInvalidDimensions) {
		t.Errorf("Expected ErrInvalidDimensions, got %v", err)
	}
}

func TestAddLayer(t *testing.T) {
	c := newTestCanvas(t, 4, 4)
	bottom := c.ActiveLayer()

	top, err := c.AddLayer(-1, nil)
	if err != nil {
		t.Fatalf("AddLayer failed: %v", err)
	}
	if c.ActiveLayer() != top {
		t.Errorf("Expected new layer %s to be active, got %s", top, c.ActiveLayer())
	}

	mid, err := c.AddLayer(1, nil)
	if err != nil {
		t.Fatalf("AddLayer failed: %v", err)
	}

	want := []LayerID{bottom, mid, top}
	for i, info := range c.Layers() {
		if info.ID != want[i] {
			t.Errorf("Layer %d: expected %s, got %s", i, want[i], info.ID)
		}
		if info.Index != i {
			t.Errorf("Layer %d: expected Index %d, got %d", i, i, info.Index)
		}
	}
}

func TestAddLayer_InitialBuffer(t *testing.T) {
	c := newTestCanvas(t, 4, 4)

	wrong, _ := raster.New(3, 4, raster.LayoutRGBA8)
	if _, err := c.AddLayer(-1, wrong); !errors.Is(err, raster.ErrInvalidDimensions) {
		t.Errorf("Expected ErrInvalidDimensions, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Failed add must not change the stack, got %d layers", c.Len())
	}

	init, _ := raster.New(4, 4, raster.LayoutRGBA16)
	init.Fill(raster.RGB(0, 1, 0))
	id, err := c.AddLayer(-1, init)
	if err != nil {
		t.Fatalf("AddLayer failed: %v", err)
	}
	px, err := c.LayerPixels(id)
	if err != nil {
		t.Fatalf("LayerPixels failed: %v", err)
	}
	if px.Layout() != raster.LayoutRGBA8 {
		t.Errorf("Expected layer converted to rgba8, got %s", px.Layout())
	}
	if col, _ := px.At(2, 2); col != raster.RGB(0, 1, 0) {
		t.Errorf("Expected green, got %v", col)
	}

	// The canvas keeps its own copy.
	init.Fill(raster.RGB(1, 0, 0))
	px, _ = c.LayerPixels(id)
	if col, _ := px.At(0, 0); col != raster.RGB(0, 1, 0) {
		t.Errorf("Expected layer to be independent of the initial buffer, got %v", col)
	}
}

func TestRemoveLayer_LastLayer(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	id := c.ActiveLayer()

	if err := c.RemoveLayer(id); !errors.Is(err, ErrLastLayer) {
		t.Errorf("Expected ErrLastLayer, got %v", err)
	}
	if c.Len() != 1 || c.ActiveLayer() != id {
		t.Error("Expected the canvas to be unchanged")
	}
}

func TestRemoveLayer_NotFound(t *testing.T) {
	c := newTestCanvas(t, 2, 2)

	err := c.RemoveLayer("missing")
	if !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("Expected ErrLayerNotFound, got %v", err)
	}
	var nf *LayerNotFoundError
	if !errors.As(err, &nf) || nf.ID != "missing" {
		t.Errorf("Expected LayerNotFoundError for 'missing', got %v", err)
	}
}

func TestRemoveLayer_ActivatesLayerBelow(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	a := c.ActiveLayer()
	b, _ := c.AddLayer(-1, nil)
	d, _ := c.AddLayer(-1, nil)

	if err := c.SetActiveLayer(b); err != nil {
		t.Fatalf("SetActiveLayer failed: %v", err)
	}
	if err := c.RemoveLayer(b); err != nil {
		t.Fatalf("RemoveLayer failed: %v", err)
	}
	if c.ActiveLayer() != a {
		t.Errorf("Expected layer below (%s) to become active, got %s", a, c.ActiveLayer())
	}

	if err := c.SetActiveLayer(a); err != nil {
		t.Fatalf("SetActiveLayer failed: %v", err)
	}
	if err := c.RemoveLayer(a); err != nil {
		t.Fatalf("RemoveLayer failed: %v", err)
	}
	if c.ActiveLayer() != d {
		t.Errorf("Expected remaining layer %s to become active, got %s", d, c.ActiveLayer())
	}
}

func TestRemoveLayer_InactiveKeepsSelection(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	a := c.ActiveLayer()
	b, _ := c.AddLayer(-1, nil)

	if err := c.RemoveLayer(a); err != nil {
		t.Fatalf("RemoveLayer failed: %v", err)
	}
	if c.ActiveLayer() != b {
		t.Errorf("Expected %s to stay active, got %s", b, c.ActiveLayer())
	}
}

func TestReorderLayer_Clamps(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	a := c.ActiveLayer()
	b, _ := c.AddLayer(-1, nil)
	d, _ := c.AddLayer(-1, nil)

	tests := []struct {
		name  string
		id    LayerID
		index int
		want  []LayerID
	}{
		{"to top beyond range", a, 99, []LayerID{b, d, a}},
		{"to bottom below range", a, -5, []LayerID{a, b, d}},
		{"middle", d, 1, []LayerID{a, d, b}},
		{"same index", d, 1, []LayerID{a, d, b}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.ReorderLayer(tt.id, tt.index); err != nil {
				t.Fatalf("ReorderLayer failed: %v", err)
			}
			for i, info := range c.Layers() {
				if info.ID != tt.want[i] {
					t.Errorf("Index %d: expected %s, got %s", i, tt.want[i], info.ID)
				}
			}
		})
	}

	if err := c.ReorderLayer("nope", 0); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("Expected ErrLayerNotFound, got %v", err)
	}
}

func TestSetActiveLayer_NotFound(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	before := c.ActiveLayer()

	if err := c.SetActiveLayer("ghost"); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("Expected ErrLayerNotFound, got %v", err)
	}
	if c.ActiveLayer() != before {
		t.Error("Expected active layer unchanged")
	}
}

func TestSetLayerOpacity_Clamps(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	id := c.ActiveLayer()

	for _, tt := range []struct{ in, want float64 }{
		{-0.5, 0}, {0.25, 0.25}, {3, 1}, {math.NaN(), 0},
	} {
		if err := c.SetLayerOpacity(id, tt.in); err != nil {
			t.Fatalf("SetLayerOpacity failed: %v", err)
		}
		info, _ := c.Layer(id)
		if info.Opacity != tt.want {
			t.Errorf("SetLayerOpacity(%v): expected %v, got %v", tt.in, tt.want, info.Opacity)
		}
	}
}

func TestSetLayerBlendMode_Invalid(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	if err := c.SetLayerBlendMode(c.ActiveLayer(), blend.Mode(200)); err == nil {
		t.Error("Expected error for unknown blend mode")
	}
}

func TestUpdateLayer_AppliesTogether(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	id := c.ActiveLayer()
	top, _ := c.AddLayer(-1, nil)
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	name, opacity, mode, locked := "Ink", 0.5, blend.Multiply, true
	offset, index := image.Pt(2, -1), 5
	info, err := c.UpdateLayer(id, LayerUpdate{
		Name: &name, Opacity: &opacity, BlendMode: &mode, Locked: &locked,
		Offset: &offset, Index: &index,
	})
	if err != nil {
		t.Fatalf("UpdateLayer failed: %v", err)
	}
	if info.Name != "Ink" || info.Opacity != 0.5 || info.BlendMode != blend.Multiply || !info.Locked {
		t.Errorf("Expected all fields applied, got %+v", info)
	}
	if info.Offset != offset {
		t.Errorf("Expected offset %v, got %v", offset, info.Offset)
	}
	if info.Index != 1 {
		t.Errorf("Expected index 1, got %d", info.Index)
	}
	if got := c.Layers()[0].ID; got != top {
		t.Errorf("Expected %s at the bottom, got %s", top, got)
	}

	select {
	case ev := <-ch:
		if ev.Reason != "layer-updated" || ev.LayerID != id {
			t.Errorf("Expected one layer-updated event for %s, got %+v", id, ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for invalidation")
	}
	select {
	case ev := <-ch:
		t.Errorf("Expected a single invalidation, got another: %+v", ev)
	default:
	}

	// A single render-affecting change keeps its own reason.
	visible := false
	if _, err := c.UpdateLayer(id, LayerUpdate{Visible: &visible}); err != nil {
		t.Fatalf("UpdateLayer failed: %v", err)
	}
	if ev := <-ch; ev.Reason != "visibility" {
		t.Errorf("Expected reason visibility, got %q", ev.Reason)
	}

	// Properties that do not affect rendering send nothing.
	if _, err := c.UpdateLayer(id, LayerUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateLayer failed: %v", err)
	}
	select {
	case ev := <-ch:
		t.Errorf("Unexpected event for rename: %+v", ev)
	default:
	}
}

func TestUpdateLayer_InvalidLeavesLayerUnchanged(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	id := c.ActiveLayer()
	before, _ := c.Layer(id)
	seq := c.Seq()

	name, opacity, mode := "Changed", 0.1, blend.Mode(200)
	_, err := c.UpdateLayer(id, LayerUpdate{Name: &name, Opacity: &opacity, BlendMode: &mode})
	if err == nil {
		t.Fatal("Expected error for unknown blend mode")
	}
	after, _ := c.Layer(id)
	if after != before {
		t.Errorf("Expected layer unchanged, got %+v", after)
	}
	if c.Seq() != seq {
		t.Errorf("Expected seq %d, got %d", seq, c.Seq())
	}

	if _, err := c.UpdateLayer("ghost", LayerUpdate{Name: &name}); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("Expected ErrLayerNotFound, got %v", err)
	}
}

// Scenario from the compositing contract: a half-transparent blue pixel
// over opaque red.
func TestComposite_RedBlueHalfOpacity(t *testing.T) {
	c := newTestCanvas(t, 4, 4)
	red := c.ActiveLayer()
	fillLayer(t, c, red, raster.RGB(1, 0, 0))

	blue, err := c.AddLayer(-1, nil)
	if err != nil {
		t.Fatalf("AddLayer failed: %v", err)
	}
	setPixel(t, c, blue, 1, 1, raster.RGB(0, 0, 1))
	if err := c.SetLayerOpacity(blue, 0.5); err != nil {
		t.Fatalf("SetLayerOpacity failed: %v", err)
	}

	out := c.Composite()

	mixed, _ := out.At(1, 1)
	want := raster.RGB(0.5, 0, 0.5)
	if !mixed.Similar(want, 1.0/255) {
		t.Errorf("Expected ~%v at (1,1), got %v", want, mixed)
	}

	pure, _ := out.At(0, 0)
	if pure != raster.RGB(1, 0, 0) {
		t.Errorf("Expected pure red at (0,0), got %v", pure)
	}
}

func TestComposite_HiddenLayerSkipped(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	fillLayer(t, c, c.ActiveLayer(), raster.RGB(1, 0, 0))
	top, _ := c.AddLayer(-1, nil)
	fillLayer(t, c, top, raster.RGB(0, 1, 0))

	if err := c.SetLayerVisible(top, false); err != nil {
		t.Fatalf("SetLayerVisible failed: %v", err)
	}
	if col, _ := c.Composite().At(0, 0); col != raster.RGB(1, 0, 0) {
		t.Errorf("Expected red with top layer hidden, got %v", col)
	}
}

func TestComposite_Offset(t *testing.T) {
	c := newTestCanvas(t, 4, 4)
	id := c.ActiveLayer()
	setPixel(t, c, id, 0, 0, raster.RGB(1, 1, 1))

	if err := c.SetLayerOffset(id, image.Pt(2, 3)); err != nil {
		t.Fatalf("SetLayerOffset failed: %v", err)
	}
	out := c.Composite()
	if col, _ := out.At(2, 3); col != raster.RGB(1, 1, 1) {
		t.Errorf("Expected white at (2,3), got %v", col)
	}
	if col, _ := out.At(0, 0); col != raster.Transparent {
		t.Errorf("Expected transparent at (0,0), got %v", col)
	}

	// Shifted entirely off canvas.
	if err := c.SetLayerOffset(id, image.Pt(10, 0)); err != nil {
		t.Fatalf("SetLayerOffset failed: %v", err)
	}
	empty, _ := raster.New(4, 4, raster.LayoutRGBA8)
	if !c.Composite().Equal(empty) {
		t.Error("Expected empty composite for off-canvas layer")
	}
}

func TestComposite_CacheMatchesUncached(t *testing.T) {
	c := newTestCanvas(t, 8, 8)
	fillLayer(t, c, c.ActiveLayer(), raster.RGBA(0.2, 0.4, 0.6, 0.8))
	top, _ := c.AddLayer(-1, nil)
	setPixel(t, c, top, 3, 3, raster.RGBA(1, 0.5, 0, 0.7))

	uncached := func() *raster.Buffer {
		var out *raster.Buffer
		c.ReadLayers(func(layers []*Layer, _ LayerID) {
			out = CompositeLayers(c.Width(), c.Height(), c.Layout(), layers)
		})
		return out
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"initial", func() error { return nil }},
		{"opacity", func() error { return c.SetLayerOpacity(top, 0.3) }},
		{"blend mode", func() error { return c.SetLayerBlendMode(top, blend.Screen) }},
		{"offset", func() error { return c.SetLayerOffset(top, image.Pt(-1, 2)) }},
		{"reorder", func() error { return c.ReorderLayer(top, 0) }},
		{"visibility", func() error { return c.SetLayerVisible(top, false) }},
	}

	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		first := c.Composite()
		if second := c.Composite(); second != first {
			t.Errorf("%s: expected cached buffer to be reused", s.name)
		}
		if !first.Equal(uncached()) {
			t.Errorf("%s: cached composite differs from fresh composite", s.name)
		}
	}
}

func TestComposite_Deterministic(t *testing.T) {
	c := newTestCanvas(t, 300, 300)
	fillLayer(t, c, c.ActiveLayer(), raster.RGB(0.1, 0.2, 0.3))
	top, _ := c.AddLayer(-1, nil)
	fillLayer(t, c, top, raster.RGBA(0.9, 0.5, 0.1, 0.6))
	_ = c.SetLayerBlendMode(top, blend.Overlay)

	var layers []*Layer
	c.ReadLayers(func(ls []*Layer, _ LayerID) { layers = ls })
	a := CompositeLayers(300, 300, raster.LayoutRGBA8, layers)
	b := CompositeLayers(300, 300, raster.LayoutRGBA8, layers)
	if !a.Equal(b) {
		t.Error("Expected identical output for identical input")
	}
}

func TestPaint_LockedLayer(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	id := c.ActiveLayer()
	if err := c.SetLayerLocked(id, true); err != nil {
		t.Fatalf("SetLayerLocked failed: %v", err)
	}

	called := false
	err := c.Paint(id, func(buf *raster.Buffer) (image.Rectangle, error) {
		called = true
		return buf.Bounds(), nil
	})
	if !errors.Is(err, ErrLayerLocked) {
		t.Errorf("Expected ErrLayerLocked, got %v", err)
	}
	if called {
		t.Error("Paint must not run for a locked layer")
	}
}

func TestPaint_NoChangeKeepsCache(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	first, seq := c.CompositeSeq()

	err := c.Paint(c.ActiveLayer(), func(*raster.Buffer) (image.Rectangle, error) {
		return image.Rectangle{}, nil
	})
	if err != nil {
		t.Fatalf("Paint failed: %v", err)
	}
	second, seq2 := c.CompositeSeq()
	if second != first || seq2 != seq {
		t.Error("Expected an empty change to keep the cache")
	}
}

func TestMergeDown(t *testing.T) {
	c := newTestCanvas(t, 4, 4)
	bottom := c.ActiveLayer()
	fillLayer(t, c, bottom, raster.RGB(1, 0, 0))
	top, _ := c.AddLayer(-1, nil)
	setPixel(t, c, top, 1, 1, raster.RGB(0, 0, 1))
	_ = c.SetLayerOpacity(top, 0.5)

	before := c.Composite().Clone()

	if err := c.MergeDown(top); err != nil {
		t.Fatalf("MergeDown failed: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Expected 1 layer after merge, got %d", c.Len())
	}
	if c.ActiveLayer() != bottom {
		t.Errorf("Expected merged-into layer to be active, got %s", c.ActiveLayer())
	}
	if !c.Composite().Equal(before) {
		t.Error("Expected merge to preserve the composite")
	}

	if err := c.MergeDown(bottom); !errors.Is(err, ErrLastLayer) {
		t.Errorf("Expected ErrLastLayer for bottom layer, got %v", err)
	}
}

func TestFlatten(t *testing.T) {
	c := newTestCanvas(t, 3, 3)
	fillLayer(t, c, c.ActiveLayer(), raster.RGB(0, 0, 1))
	top, _ := c.AddLayer(-1, nil)
	setPixel(t, c, top, 0, 0, raster.RGB(1, 1, 0))
	_ = c.SetLayerBlendMode(top, blend.Multiply)

	want := c.Composite().Clone()
	id := c.Flatten()

	if c.Len() != 1 || c.ActiveLayer() != id {
		t.Fatalf("Expected a single active layer, got %d layers", c.Len())
	}
	px, _ := c.LayerPixels(id)
	if !px.Equal(want) {
		t.Error("Expected flattened layer to hold the previous composite")
	}
}

func TestSubscribe_ReceivesInvalidations(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	id := c.ActiveLayer()
	setPixel(t, c, id, 1, 0, raster.RGB(1, 1, 1))

	select {
	case ev := <-ch:
		if ev.Reason != "pixels" || ev.LayerID != id {
			t.Errorf("Unexpected event %+v", ev)
		}
		if ev.Region != image.Rect(1, 0, 2, 1) {
			t.Errorf("Expected region (1,0)-(2,1), got %v", ev.Region)
		}
		if ev.Seq != c.Seq() {
			t.Errorf("Expected seq %d, got %d", c.Seq(), ev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for invalidation")
	}

	// Renaming does not change the rendered result.
	_ = c.SetLayerName(id, "Ink")
	select {
	case ev := <-ch:
		t.Errorf("Unexpected event for rename: %+v", ev)
	default:
	}
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = c.SetLayerOpacity(c.ActiveLayer(), float64(i%2))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Painting blocked on a slow subscriber")
	}
}

func TestExtensions(t *testing.T) {
	c := newTestCanvas(t, 2, 2)
	c.SetExtension("x.vendor", []byte{0, 1, 2})

	m := c.Meta()
	m.Extensions["x.vendor"][0] = 9
	if got := c.Meta().Extensions["x.vendor"]; got[0] != 0 {
		t.Error("Expected Meta to return a copy of extension data")
	}

	c.SetExtension("x.vendor", nil)
	if _, ok := c.Meta().Extensions["x.vendor"]; ok {
		t.Error("Expected nil value to delete the extension")
	}
}

func TestRestore(t *testing.T) {
	a, _ := raster.New(2, 2, raster.LayoutRGBA8)
	b, _ := raster.New(2, 2, raster.LayoutRGBA8)
	la := NewLayer("a", "A", a)
	lb := NewLayer("b", "B", b)
	lb.Opacity = 7

	c, err := Restore(2, 2, raster.LayoutRGBA8, []*Layer{la, lb}, "missing", Meta{})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if c.ActiveLayer() != "b" {
		t.Errorf("Expected unknown active id to select the top layer, got %s", c.ActiveLayer())
	}
	if info, _ := c.Layer("b"); info.Opacity != 1 {
		t.Errorf("Expected opacity clamped to 1, got %v", info.Opacity)
	}

	dup := NewLayer("a", "dup", b.Clone())
	if _, err := Restore(2, 2, raster.LayoutRGBA8, []*Layer{la, dup}, "", Meta{}); err == nil {
		t.Error("Expected duplicate ids to fail")
	}

	small, _ := raster.New(1, 2, raster.LayoutRGBA8)
	if _, err := Restore(2, 2, raster.LayoutRGBA8, []*Layer{NewLayer("", "s", small)}, "", Meta{}); !errors.Is(err, raster.ErrInvalidDimensions) {
		t.Errorf("Expected ErrInvalidDimensions, got %v", err)
	}

	if _, err := Restore(1<<31, 1<<31, raster.LayoutRGBA8, []*Layer{la}, "", Meta{}); !errors.Is(err, raster.ErrInvalidDimensions) {
		t.Errorf("Expected ErrInvalidDimensions for a wrapping size, got %v", err)
	}

	if _, err := Restore(2, 2, raster.LayoutRGBA8, nil, "", Meta{}); !errors.Is(err, ErrLastLayer) {
		t.Errorf("Expected ErrLastLayer for empty stack, got %v", err)
	}
}
