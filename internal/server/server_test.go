package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/editor"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/cwbudde/layerpaint/internal/session"
	"github.com/cwbudde/layerpaint/internal/store"
	"github.com/cwbudde/layerpaint/internal/tool"
)

// newTestServer returns a server around a fresh 16x16 editor with a
// snapshot store in a temp directory.
func newTestServer(t *testing.T) (*Server, *editor.Editor) {
	t.Helper()
	opts := editor.DefaultOptions()
	opts.Width, opts.Height = 16, 16
	opts.SessionDir = t.TempDir()
	ed, err := editor.New(opts)
	if err != nil {
		t.Fatalf("editor.New failed: %v", err)
	}
	t.Cleanup(ed.Close)

	snaps, err := store.NewFSStore(t.TempDir(), session.Options{Compression: session.CompressionNone})
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	return NewServer("localhost:0", ed, snaps, Options{KeepSnapshots: 2}), ed
}

// do sends a request through the router and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_GetCanvas(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s.Router(), http.MethodGet, "/api/v1/canvas", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp canvasResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Width != 16 || resp.Height != 16 || resp.Layout != "rgba8" {
		t.Errorf("Unexpected canvas %+v", resp)
	}
	if len(resp.Layers) != 1 || resp.Layers[0].ID != resp.Active {
		t.Errorf("Expected one active layer, got %+v", resp.Layers)
	}
}

func TestServer_NewCanvas_Invalid(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s.Router(), http.MethodPost, "/api/v1/canvas", map[string]int{"width": 0, "height": 5})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = do(t, s.Router(), http.MethodPost, "/api/v1/canvas", map[string]int{"width": 1 << 31, "height": 1 << 31})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an oversized canvas, got %d", w.Code)
	}

	w = do(t, s.Router(), http.MethodPost, "/api/v1/canvas", map[string]int{"width": 4, "height": 5})
	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}
}

func TestServer_LayerLifecycle(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/v1/canvas/layers", map[string]any{"name": "Ink"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}
	var info canvas.LayerInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode layer: %v", err)
	}
	if info.Name != "Ink" || !info.Active || info.Index != 1 {
		t.Errorf("Unexpected layer %+v", info)
	}

	path := "/api/v1/canvas/layers/" + string(info.ID)
	w = do(t, h, http.MethodPatch, path, map[string]any{
		"opacity":   0.5,
		"blendMode": "multiply",
		"locked":    true,
		"offset":    map[string]int{"X": 2, "Y": -1},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	got, _ := ed.Canvas().Layer(info.ID)
	if got.Opacity != 0.5 || got.BlendMode.String() != "multiply" || !got.Locked || got.Offset.X != 2 {
		t.Errorf("Patch not applied: %+v", got)
	}

	w = do(t, h, http.MethodPatch, path, map[string]any{"blendMode": "glow"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown blend mode, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, path+"/merge-down", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for merge, got %d: %s", w.Code, w.Body)
	}
	if ed.Canvas().Len() != 1 {
		t.Errorf("Expected 1 layer after merge, got %d", ed.Canvas().Len())
	}

	only := ed.Canvas().ActiveLayer()
	w = do(t, h, http.MethodDelete, "/api/v1/canvas/layers/"+string(only), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 removing the last layer, got %d", w.Code)
	}
	w = do(t, h, http.MethodDelete, "/api/v1/canvas/layers/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_UpdateLayerIsAtomic(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Router()
	c := ed.Canvas()
	id := c.ActiveLayer()
	path := "/api/v1/canvas/layers/" + string(id)
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	w := do(t, h, http.MethodPatch, path, map[string]any{"name": "Ink", "opacity": 0.25, "blendMode": "glow"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if got, _ := c.Layer(id); got.Name == "Ink" || got.Opacity != 1 {
		t.Errorf("Expected layer unchanged after a rejected patch, got %+v", got)
	}

	w = do(t, h, http.MethodPatch, path, map[string]any{"opacity": 0.25, "visible": false, "offset": map[string]int{"X": 1, "Y": 1}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	select {
	case ev := <-ch:
		if ev.Reason != "layer-updated" {
			t.Errorf("Expected reason layer-updated, got %q", ev.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for invalidation")
	}
	select {
	case ev := <-ch:
		t.Errorf("Expected one invalidation per patch, got another: %+v", ev)
	default:
	}

	w = do(t, h, http.MethodPatch, "/api/v1/canvas/layers/nope", map[string]any{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_AddLayerName(t *testing.T) {
	s, ed := newTestServer(t)

	w := do(t, s.Router(), http.MethodPost, "/api/v1/canvas/layers", map[string]any{"name": "Sketch", "index": 0})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}
	var info canvas.LayerInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode layer: %v", err)
	}
	if info.Name != "Sketch" || info.Index != 0 {
		t.Errorf("Expected Sketch at index 0, got %+v", info)
	}
	if got, _ := ed.Canvas().Layer(info.ID); got.Name != "Sketch" {
		t.Errorf("Expected stored name Sketch, got %q", got.Name)
	}
}

func TestServer_ToolAndPointer(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Router()

	params := tool.DefaultParams()
	params.Color = raster.RGB(0, 1, 0)
	w := do(t, h, http.MethodPut, "/api/v1/tool", map[string]any{"kind": "fill-bucket", "params": params})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	if kind, _ := ed.ActiveTool(); kind != tool.FillBucket {
		t.Errorf("Expected fill bucket, got %s", kind)
	}

	w = do(t, h, http.MethodPut, "/api/v1/tool", map[string]any{"kind": "lasso"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown tool, got %d", w.Code)
	}

	for _, phase := range []string{"down", "up"} {
		w = do(t, h, http.MethodPost, "/api/v1/pointer/"+phase, tool.Event{X: 3, Y: 3})
		if w.Code != http.StatusOK {
			t.Fatalf("Pointer %s: expected status 200, got %d: %s", phase, w.Code, w.Body)
		}
	}
	if col, _ := ed.DisplayBuffer().At(15, 15); col != raster.RGB(0, 1, 0) {
		t.Errorf("Expected the canvas filled green, got %v", col)
	}

	w = do(t, h, http.MethodPost, "/api/v1/pointer/hover", tool.Event{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown phase, got %d", w.Code)
	}
}

func TestServer_Images(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodGet, "/api/v1/display.png", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("Expected a PNG, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("Expected width 16, got %d", img.Bounds().Dx())
	}

	w = do(t, h, http.MethodGet, "/api/v1/thumbnail.png?size=4", nil)
	img, err = png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Failed to decode thumbnail: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("Expected thumbnail width 4, got %d", img.Bounds().Dx())
	}

	w = do(t, h, http.MethodGet, "/api/v1/thumbnail.png?size=big", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestServer_SaveOpen(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/v1/canvas/save", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a path, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/v1/canvas/save", pathRequest{Path: "doc.ksp"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}

	w = do(t, h, http.MethodPost, "/api/v1/canvas/open", pathRequest{Path: "doc.ksp"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	if !strings.HasSuffix(ed.Path(), "doc.ksp") {
		t.Errorf("Expected doc.ksp to be open, got %s", ed.Path())
	}

	w = do(t, h, http.MethodPost, "/api/v1/canvas/open", pathRequest{Path: "doc.xcf"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an unsupported format, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/v1/canvas/export", pathRequest{Path: "doc.png"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for export, got %d: %s", w.Code, w.Body)
	}
}

func TestServer_Snapshots(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/v1/snapshots", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}
	var info store.SnapshotInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if info.Document != "untitled" || info.Reason != "manual" {
		t.Errorf("Unexpected snapshot %+v", info)
	}

	if err := ed.NewCanvas(3, 3); err != nil {
		t.Fatalf("NewCanvas failed: %v", err)
	}
	w = do(t, h, http.MethodPost, "/api/v1/snapshots/"+info.ID+"/restore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	if ed.Canvas().Width() != 16 {
		t.Errorf("Expected the 16px snapshot restored, got width %d", ed.Canvas().Width())
	}

	w = do(t, h, http.MethodGet, "/api/v1/snapshots", nil)
	var list []store.SnapshotInfo
	_ = json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 {
		t.Errorf("Expected 1 snapshot, got %d", len(list))
	}

	w = do(t, h, http.MethodDelete, "/api/v1/snapshots/"+info.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = do(t, h, http.MethodDelete, "/api/v1/snapshots/"+info.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_SnapshotsDisabled(t *testing.T) {
	_, ed := newTestServer(t)
	s := NewServer("localhost:0", ed, nil, Options{})

	w := do(t, s.Router(), http.MethodGet, "/api/v1/snapshots", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("Expected status 501, got %d", w.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	for origin, allowed := range map[string]bool{
		"http://localhost:5173": true,
		"http://127.0.0.1":      true,
		"https://example.com":   false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/canvas", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		got := w.Header().Get("Access-Control-Allow-Origin") == origin
		if got != allowed {
			t.Errorf("Origin %s: expected allowed=%v, got %v", origin, allowed, got)
		}
	}
}

func TestServer_EventStream(t *testing.T) {
	s, ed := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", resp.Header.Get("Content-Type"))
	}

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() canvas.Invalidation {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev canvas.Invalidation
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					t.Fatalf("Failed to parse event: %v", err)
				}
				return ev
			}
		}
		t.Fatalf("Stream ended: %v", scanner.Err())
		return canvas.Invalidation{}
	}

	if ev := readEvent(); ev.Reason != "sync" {
		t.Errorf("Expected a sync event first, got %+v", ev)
	}

	if _, err := ed.Canvas().AddLayer(-1, nil); err != nil {
		t.Fatalf("AddLayer failed: %v", err)
	}
	for {
		if ev := readEvent(); ev.Reason == "layer-added" {
			break
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{canvas.ErrLayerNotFound, http.StatusNotFound},
		{store.ErrNotFound, http.StatusNotFound},
		{canvas.ErrLastLayer, http.StatusConflict},
		{canvas.ErrLayerLocked, http.StatusConflict},
		{session.ErrCorruptSession, http.StatusUnprocessableEntity},
		{editor.ErrNoPath, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
