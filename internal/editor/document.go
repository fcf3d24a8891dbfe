package editor

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/session"
)

// Resolve maps a relative document path into the session directory.
func (e *Editor) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || e.opts.SessionDir == "" {
		return path
	}
	return filepath.Join(e.opts.SessionDir, path)
}

// NewCanvas replaces the open document with a blank canvas of the given
// size in the configured layout.
func (e *Editor) NewCanvas(width, height int) error {
	c, err := canvas.New(width, height, e.opts.Layout)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attachLocked(c, "", "new")
	slog.Info("New canvas", "width", width, "height", height, "layout", e.opts.Layout)
	return nil
}

// OpenSession loads a document in any registered format. On failure the
// open document is left untouched.
func (e *Editor) OpenSession(path string) error {
	path = e.Resolve(path)
	c, err := session.Open(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.attachLocked(c, path, "open")
	e.modTime = modTime(path)
	return nil
}

// SaveSession writes the open document. An empty path saves to the path
// the document came from. Saving to an image format flattens the output
// but keeps the layered document open under its previous path.
func (e *Editor) SaveSession(path string) error {
	e.mu.Lock()
	if path == "" {
		path = e.path
	} else {
		path = e.Resolve(path)
	}
	c := e.canvas
	e.mu.Unlock()

	if path == "" {
		return ErrNoPath
	}
	f, err := session.Lookup(path)
	if err != nil {
		return err
	}
	if err := session.Save(path, c, e.opts.Session); err != nil {
		return err
	}

	if !f.Lossy {
		e.mu.Lock()
		if e.canvas == c {
			e.path = path
			e.modTime = modTime(path)
		}
		e.mu.Unlock()
	}
	return nil
}

// ExportImage writes the flattened composite to an image format chosen by
// extension. The open document's path does not change.
func (e *Editor) ExportImage(path string) error {
	path = e.Resolve(path)
	f, err := session.Lookup(path)
	if err != nil {
		return err
	}
	if !f.Lossy {
		return fmt.Errorf("%w: %s is not an image format", session.ErrUnsupportedFormat, f.Name)
	}
	return session.Save(path, e.Canvas(), e.opts.Session)
}

// Thumbnail scales the display buffer so its longer side is at most
// maxSide pixels.
func (e *Editor) Thumbnail(maxSide int) *image.NRGBA {
	return session.Thumbnail(e.DisplayBuffer(), maxSide)
}

// ReloadSession re-reads the open document from disk if the file changed
// since it was opened or saved. It reports whether a reload happened. On
// failure the open document is left untouched.
func (e *Editor) ReloadSession() (bool, error) {
	e.mu.Lock()
	path, seen := e.path, e.modTime
	e.mu.Unlock()

	if path == "" {
		return false, nil
	}
	mt := modTime(path)
	if mt == 0 || mt == seen {
		return false, nil
	}

	c, err := session.Open(path)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.path != path {
		return false, nil
	}
	e.attachLocked(c, path, "reload")
	e.modTime = mt
	return true, nil
}

// Replace makes c the open document, for example a restored snapshot.
// path may be empty.
func (e *Editor) Replace(c *canvas.Canvas, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attachLocked(c, path, "open")
}

func modTime(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.ModTime().UnixNano()
}
