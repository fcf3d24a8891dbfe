// Package editor is the entry point a user interface drives: it owns the
// open canvas, the active tool and the display buffer, and turns pointer
// events into tool calls.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/cwbudde/layerpaint/internal/session"
	"github.com/cwbudde/layerpaint/internal/store"
	"github.com/cwbudde/layerpaint/internal/tool"
)

// ErrNoPath is returned by SaveSession when neither an argument nor the
// current document provides a path.
var ErrNoPath = errors.New("no session path")

// Options configures an Editor.
type Options struct {
	Width, Height int
	Layout        raster.Layout
	// SessionDir resolves relative paths given to OpenSession and
	// SaveSession. Empty means the working directory.
	SessionDir string
	Session    session.Options
	Tool       tool.Kind
	Params     tool.Params
}

// DefaultOptions returns a 1024x768 RGBA8 canvas with the default brush.
func DefaultOptions() Options {
	return Options{
		Width:   1024,
		Height:  768,
		Layout:  raster.LayoutRGBA8,
		Session: session.DefaultOptions(),
		Tool:    tool.Brush,
		Params:  tool.DefaultParams(),
	}
}

// gesture is one pointer-down..pointer-up sequence.
type gesture struct {
	ctx    context.Context
	cancel context.CancelFunc
	layer  canvas.LayerID
	tool   tool.Tool
}

// Editor is safe for concurrent use. State changes take mu briefly; tool
// callbacks run under toolMu so that a pointer-down can cancel a slow
// operation still in progress.
type Editor struct {
	opts Options

	mu      sync.Mutex
	canvas  *canvas.Canvas
	sub     chan canvas.Invalidation
	path    string
	modTime int64
	kind    tool.Kind
	params  tool.Params
	gesture *gesture
	journal *store.JournalWriter

	toolMu sync.Mutex

	events *Broadcaster
	frame  atomic.Pointer[frame]
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	closed sync.Once
}

// New creates an editor holding a blank canvas and starts its background
// compositor. Call Close to stop it.
func New(opts Options) (*Editor, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool params: %w", err)
	}
	if _, err := tool.New(opts.Tool); err != nil {
		return nil, err
	}
	c, err := canvas.New(opts.Width, opts.Height, opts.Layout)
	if err != nil {
		return nil, err
	}

	e := &Editor{
		opts:   opts,
		kind:   opts.Tool,
		params: opts.Params,
		events: NewBroadcaster(),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.mu.Lock()
	e.attachLocked(c, "", "new")
	e.mu.Unlock()

	go e.compositor()
	return e, nil
}

// Close stops the compositor and releases all subscribers.
func (e *Editor) Close() {
	e.closed.Do(func() {
		e.mu.Lock()
		e.endGestureLocked()
		if e.sub != nil {
			e.canvas.Unsubscribe(e.sub)
			e.sub = nil
		}
		e.mu.Unlock()

		close(e.stop)
		<-e.done
		e.events.Close()
	})
}

// Canvas returns the open canvas. Layer commands go to it directly. The
// returned canvas stays valid after another document is opened but is no
// longer the one being displayed.
func (e *Editor) Canvas() *canvas.Canvas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas
}

// Path returns the file the open document was loaded from or last saved
// to, or "" for a new document.
func (e *Editor) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// Options returns the options the editor was created with.
func (e *Editor) Options() Options {
	return e.opts
}

// Subscribe returns a channel of invalidations for whichever canvas is
// open. Replacing the canvas is reported with Reason "new", "open" or
// "reload" and an empty region.
func (e *Editor) Subscribe() chan canvas.Invalidation {
	return e.events.Subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (e *Editor) Unsubscribe(ch chan canvas.Invalidation) {
	e.events.Unsubscribe(ch)
}

// attachLocked makes c the open canvas and forwards its invalidations.
func (e *Editor) attachLocked(c *canvas.Canvas, path, reason string) {
	e.endGestureLocked()
	if e.sub != nil {
		e.canvas.Unsubscribe(e.sub)
	}
	e.canvas = c
	e.path = path
	e.modTime = 0
	e.sub = c.Subscribe()
	go e.forward(e.sub)

	e.frame.Store(nil)
	e.events.Broadcast(canvas.Invalidation{Seq: c.Seq(), Reason: reason, Timestamp: c.Meta().Modified})
	e.poke()
	slog.Debug("Canvas attached", "reason", reason, "path", path, "width", c.Width(), "height", c.Height())
}

func (e *Editor) forward(ch chan canvas.Invalidation) {
	for ev := range ch {
		e.events.Broadcast(ev)
		e.poke()
	}
}

// ActiveTool returns the selected tool kind and its parameters.
func (e *Editor) ActiveTool() (tool.Kind, tool.Params) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind, e.params
}

// SetActiveTool selects a tool. A gesture in progress is cancelled.
func (e *Editor) SetActiveTool(kind tool.Kind, params tool.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if _, err := tool.New(kind); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.endGestureLocked()
	e.kind = kind
	e.params = params
	e.recordLocked(store.JournalEntry{Action: store.ActionTool, Tool: &kind, Params: &params})
	slog.Debug("Tool selected", "tool", kind, "size", params.Size)
	return nil
}

// PointerDown starts a gesture on the active layer with the active tool.
// A gesture still running is cancelled first.
func (e *Editor) PointerDown(ev tool.Event) error {
	e.mu.Lock()
	e.endGestureLocked()
	t, err := tool.New(e.kind)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &gesture{ctx: ctx, cancel: cancel, layer: e.canvas.ActiveLayer(), tool: t}
	e.gesture = g
	c, params := e.canvas, e.params
	e.recordLocked(store.JournalEntry{Action: store.ActionDown, Event: &ev})
	e.mu.Unlock()

	err = e.runTool(g, func() error { return t.OnPointerDown(ctx, c, g.layer, ev, params) })
	if err != nil {
		e.finishGesture(g)
	}
	return err
}

// PointerMove continues the current gesture. Without one it does nothing.
func (e *Editor) PointerMove(ev tool.Event) error {
	g, c, params := e.current()
	if g == nil {
		return nil
	}
	e.record(store.JournalEntry{Action: store.ActionMove, Event: &ev})
	return e.runTool(g, func() error { return g.tool.OnPointerMove(g.ctx, c, g.layer, ev, params) })
}

// PointerUp ends the current gesture. Without one it does nothing.
func (e *Editor) PointerUp(ev tool.Event) error {
	g, c, params := e.current()
	if g == nil {
		return nil
	}
	e.record(store.JournalEntry{Action: store.ActionUp, Event: &ev})
	defer e.finishGesture(g)
	return e.runTool(g, func() error { return g.tool.OnPointerUp(g.ctx, c, g.layer, ev, params) })
}

func (e *Editor) current() (*gesture, *canvas.Canvas, tool.Params) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gesture, e.canvas, e.params
}

// runTool serializes tool callbacks. A callback of a superseded gesture
// is skipped.
func (e *Editor) runTool(g *gesture, fn func() error) error {
	e.toolMu.Lock()
	defer e.toolMu.Unlock()

	if err := g.ctx.Err(); err != nil {
		return fmt.Errorf("gesture superseded: %w", err)
	}
	err := fn()
	if errors.Is(err, context.Canceled) {
		slog.Debug("Tool operation cancelled", "tool", g.tool.Kind(), "layer", g.layer)
	}
	return err
}

func (e *Editor) finishGesture(g *gesture) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gesture == g {
		e.endGestureLocked()
	}
}

func (e *Editor) endGestureLocked() {
	if e.gesture != nil {
		e.gesture.cancel()
		e.gesture = nil
	}
}
