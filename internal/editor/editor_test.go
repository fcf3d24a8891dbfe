package editor

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/cwbudde/layerpaint/internal/session"
	"github.com/cwbudde/layerpaint/internal/store"
	"github.com/cwbudde/layerpaint/internal/tool"
)

func newTestEditor(t *testing.T, w, h int) *Editor {
	t.Helper()
	opts := DefaultOptions()
	opts.Width, opts.Height = w, h
	opts.SessionDir = t.TempDir()
	opts.Params.Color = raster.RGB(1, 0, 0)
	opts.Params.Size = 3
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func stroke(t *testing.T, e *Editor, pts ...tool.Event) {
	t.Helper()
	if err := e.PointerDown(pts[0]); err != nil {
		t.Fatalf("PointerDown failed: %v", err)
	}
	for _, p := range pts[1:] {
		if err := e.PointerMove(p); err != nil {
			t.Fatalf("PointerMove failed: %v", err)
		}
	}
	if err := e.PointerUp(pts[len(pts)-1]); err != nil {
		t.Fatalf("PointerUp failed: %v", err)
	}
}

func TestNew_BlankCanvas(t *testing.T) {
	e := newTestEditor(t, 8, 6)

	buf := e.DisplayBuffer()
	if buf.Width() != 8 || buf.Height() != 6 {
		t.Fatalf("Expected 8x6, got %dx%d", buf.Width(), buf.Height())
	}
	if col, _ := buf.At(3, 3); col != raster.Transparent {
		t.Errorf("Expected transparent pixel, got %v", col)
	}
	if kind, _ := e.ActiveTool(); kind != tool.Brush {
		t.Errorf("Expected brush, got %s", kind)
	}
	if e.Path() != "" {
		t.Errorf("Expected no path, got %q", e.Path())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Width = 0
	if _, err := New(opts); !errors.Is(err, raster.ErrInvalidDimensions) {
		t.Errorf("Expected ErrInvalidDimensions, got %v", err)
	}

	opts = DefaultOptions()
	opts.Params.Size = 0
	if _, err := New(opts); err == nil {
		t.Error("Expected error for zero brush size")
	}
}

func TestPointer_StrokeUpdatesDisplay(t *testing.T) {
	e := newTestEditor(t, 20, 10)
	events := e.Subscribe()
	defer e.Unsubscribe(events)

	stroke(t, e, tool.Event{X: 2, Y: 5}, tool.Event{X: 10, Y: 5}, tool.Event{X: 17, Y: 5})

	buf := e.DisplayBuffer()
	for _, x := range []int{2, 10, 17} {
		if col, _ := buf.At(x, 5); col != raster.RGB(1, 0, 0) {
			t.Errorf("Expected red at (%d,5), got %v", x, col)
		}
	}
	if col, _ := buf.At(10, 0); col != raster.Transparent {
		t.Errorf("Expected untouched pixel, got %v", col)
	}

	// The replay of the initial attach comes first, then paint events.
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Reason == "pixels" {
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for a paint invalidation")
		}
	}
}

func TestPointer_MoveWithoutDownIgnored(t *testing.T) {
	e := newTestEditor(t, 4, 4)
	seq := e.Canvas().Seq()
	if err := e.PointerMove(tool.Event{X: 1, Y: 1}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := e.PointerUp(tool.Event{X: 1, Y: 1}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if e.Canvas().Seq() != seq {
		t.Error("Expected no change without a gesture")
	}
}

func TestSetActiveTool_EndsGesture(t *testing.T) {
	e := newTestEditor(t, 10, 10)
	if err := e.PointerDown(tool.Event{X: 1, Y: 1}); err != nil {
		t.Fatalf("PointerDown failed: %v", err)
	}

	p := tool.DefaultParams()
	if err := e.SetActiveTool(tool.Eraser, p); err != nil {
		t.Fatalf("SetActiveTool failed: %v", err)
	}
	seq := e.Canvas().Seq()
	if err := e.PointerMove(tool.Event{X: 8, Y: 8}); err != nil {
		t.Errorf("Expected move after tool switch to be ignored, got %v", err)
	}
	if e.Canvas().Seq() != seq {
		t.Error("Expected the ended gesture to paint nothing")
	}

	p.Connectivity = 5
	if err := e.SetActiveTool(tool.FillBucket, p); err == nil {
		t.Error("Expected error for invalid params")
	}
	if kind, _ := e.ActiveTool(); kind != tool.Eraser {
		t.Errorf("Expected eraser to stay active, got %s", kind)
	}
}

func TestPointerDown_LockedLayer(t *testing.T) {
	e := newTestEditor(t, 4, 4)
	c := e.Canvas()
	_ = c.SetLayerLocked(c.ActiveLayer(), true)

	if err := e.PointerDown(tool.Event{X: 1, Y: 1}); !errors.Is(err, canvas.ErrLayerLocked) {
		t.Errorf("Expected ErrLayerLocked, got %v", err)
	}
	if err := e.PointerUp(tool.Event{X: 1, Y: 1}); err != nil {
		t.Errorf("Expected the failed gesture to be over, got %v", err)
	}
}

func TestSaveOpen_RelativePath(t *testing.T) {
	e := newTestEditor(t, 12, 12)
	stroke(t, e, tool.Event{X: 6, Y: 6})

	if err := e.SaveSession(""); !errors.Is(err, ErrNoPath) {
		t.Errorf("Expected ErrNoPath, got %v", err)
	}
	if err := e.SaveSession("art/doc.ksp"); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	want := filepath.Join(e.Options().SessionDir, "art", "doc.ksp")
	if e.Path() != want {
		t.Errorf("Expected path %s, got %s", want, e.Path())
	}
	before := e.DisplayBuffer().Clone()

	if err := e.NewCanvas(3, 3); err != nil {
		t.Fatalf("NewCanvas failed: %v", err)
	}
	if e.DisplayBuffer().Width() != 3 {
		t.Fatal("Expected the new canvas to be displayed")
	}

	if err := e.OpenSession("art/doc.ksp"); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if !e.DisplayBuffer().Equal(before) {
		t.Error("Expected the reopened document to match")
	}

	// Saving again without a path goes back to the same file.
	if err := e.SaveSession(""); err != nil {
		t.Errorf("SaveSession failed: %v", err)
	}
}

func TestOpenSession_FailureKeepsCanvas(t *testing.T) {
	e := newTestEditor(t, 5, 5)
	stroke(t, e, tool.Event{X: 2, Y: 2})
	c := e.Canvas()
	before := e.DisplayBuffer().Clone()

	data, err := session.Encode(c)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	binary.LittleEndian.PutUint16(data[4:], session.Version+1)
	path := filepath.Join(e.Options().SessionDir, "future.ksp")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if err := e.OpenSession("future.ksp"); !errors.Is(err, session.ErrCorruptSession) {
		t.Errorf("Expected ErrCorruptSession, got %v", err)
	}
	if e.Canvas() != c {
		t.Error("Expected the open canvas to be kept")
	}
	if !e.DisplayBuffer().Equal(before) {
		t.Error("Expected the display to be unchanged")
	}

	if err := e.OpenSession("missing.ksp"); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestExportImage(t *testing.T) {
	e := newTestEditor(t, 6, 4)
	stroke(t, e, tool.Event{X: 3, Y: 2})

	if err := e.ExportImage("out.png"); err != nil {
		t.Fatalf("ExportImage failed: %v", err)
	}
	got, err := session.Open(filepath.Join(e.Options().SessionDir, "out.png"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !got.Composite().Equal(e.DisplayBuffer()) {
		t.Error("Expected the exported image to match the display")
	}
	if e.Path() != "" {
		t.Error("Expected export to leave the document path alone")
	}

	if err := e.ExportImage("out.ksp"); !errors.Is(err, session.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}

	th := e.Thumbnail(3)
	if th.Bounds().Dx() != 3 || th.Bounds().Dy() != 2 {
		t.Errorf("Expected 3x2 thumbnail, got %v", th.Bounds())
	}
}

func TestReloadSession(t *testing.T) {
	e := newTestEditor(t, 4, 4)
	if err := e.SaveSession("doc.ksp"); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if reloaded, err := e.ReloadSession(); err != nil || reloaded {
		t.Fatalf("Expected no reload for an unchanged file, got %v %v", reloaded, err)
	}

	other, _ := canvas.New(4, 4, raster.LayoutRGBA8)
	other.SetExtension("origin", []byte("external"))
	if err := session.Save(e.Path(), other, session.DefaultOptions()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(e.Path(), future, future); err != nil {
		t.Fatal(err)
	}

	reloaded, err := e.ReloadSession()
	if err != nil || !reloaded {
		t.Fatalf("Expected a reload, got %v %v", reloaded, err)
	}
	if string(e.Canvas().Meta().Extensions["origin"]) != "external" {
		t.Error("Expected the external document to be open")
	}
}

func TestJournal_RecordAndReplay(t *testing.T) {
	e := newTestEditor(t, 16, 16)
	base := filepath.Join(e.Options().SessionDir, "base.ksp")
	if err := e.SaveSession(base); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	jpath := filepath.Join(t.TempDir(), "strokes.jsonl")
	jw, err := store.NewJournalWriter(jpath, false)
	if err != nil {
		t.Fatalf("NewJournalWriter failed: %v", err)
	}
	e.SetJournal(jw)

	stroke(t, e, tool.Event{X: 2, Y: 2}, tool.Event{X: 12, Y: 4})
	p := tool.DefaultParams()
	p.Color = raster.RGB(0, 0, 1)
	if err := e.SetActiveTool(tool.FillBucket, p); err != nil {
		t.Fatalf("SetActiveTool failed: %v", err)
	}
	stroke(t, e, tool.Event{X: 0, Y: 15})
	e.SetJournal(nil)
	if err := jw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	replay := newTestEditor(t, 1, 1)
	if err := replay.OpenSession(base); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	r, err := store.NewJournalReader(jpath)
	if err != nil {
		t.Fatalf("NewJournalReader failed: %v", err)
	}
	defer r.Close()

	n, err := replay.Replay(r)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if n != 6 {
		t.Errorf("Expected 6 entries, got %d", n)
	}
	if !replay.DisplayBuffer().Equal(e.DisplayBuffer()) {
		t.Error("Expected the replayed canvas to match the recorded one")
	}
}

func TestSubscribe_CanvasReplaced(t *testing.T) {
	e := newTestEditor(t, 4, 4)
	events := e.Subscribe()
	defer e.Unsubscribe(events)

	if err := e.NewCanvas(2, 2); err != nil {
		t.Fatalf("NewCanvas failed: %v", err)
	}
	deadline := time.After(time.Second)
	seen := 0
	for seen < 2 {
		select {
		case ev := <-events:
			if ev.Reason == "new" {
				seen++
			}
		case <-deadline:
			t.Fatalf("Expected two canvas replacement events, got %d", seen)
		}
	}
}
