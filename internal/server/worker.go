package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/store"
	"github.com/cwbudde/layerpaint/internal/watch"
)

// startWorkers launches autosave and hot reload as configured. They stop
// when ctx is cancelled.
func (s *Server) startWorkers(ctx context.Context) {
	if s.snapshots != nil && s.opts.Autosave > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.monitorAutosave(ctx, s.opts.Autosave)
		}()
	}
	if s.opts.Watch {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.monitorSessionFile(ctx)
		}()
	}
}

// autosaveState remembers what the last autosave captured.
type autosaveState struct {
	canvas *canvas.Canvas
	seq    uint64
}

// monitorAutosave periodically snapshots the open document.
func (s *Server) monitorAutosave(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last autosaveState
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := s.autosave(&last)
			if err != nil {
				slog.Error("Autosave failed", "document", s.document(), "error", err)
			} else if saved {
				slog.Info("Autosave snapshot saved", "document", s.document(), "seq", last.seq)
			}
		}
	}
}

// autosave snapshots the open canvas if it changed since last and prunes
// old snapshots. It reports whether a snapshot was written.
func (s *Server) autosave(last *autosaveState) (bool, error) {
	c := s.editor.Canvas()
	seq := c.Seq()
	if c == last.canvas && seq == last.seq {
		slog.Debug("Skipping autosave, canvas unchanged", "seq", seq)
		return false, nil
	}

	doc := s.document()
	if _, err := s.snapshots.SaveSnapshot(doc, c, "autosave"); err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	last.canvas, last.seq = c, seq

	if s.opts.KeepSnapshots > 0 {
		if err := s.prune(doc); err != nil {
			slog.Warn("Failed to prune snapshots", "document", doc, "error", err)
		}
	}
	return true, nil
}

func (s *Server) prune(doc string) error {
	infos, err := s.snapshots.ListSnapshots(doc)
	if err != nil {
		return err
	}
	policy := store.Retention{KeepLast: s.opts.KeepSnapshots}
	for _, info := range policy.Select(infos, time.Now()) {
		if err := s.snapshots.DeleteSnapshot(info.Document, info.ID); err != nil {
			return err
		}
		slog.Debug("Snapshot pruned", "document", info.Document, "id", info.ID)
	}
	return nil
}

// monitorSessionFile reloads the open session when its file changes on
// disk, following the editor to whatever file is open.
func (s *Server) monitorSessionFile(ctx context.Context) {
	events := s.editor.Subscribe()
	defer s.editor.Unsubscribe(events)

	for {
		path := s.editor.Path()
		var changes chan string
		var w *watch.Watcher
		if path != "" {
			var err error
			w, err = watch.NewWatcher(0, path)
			if err != nil {
				slog.Warn("Cannot watch session file", "path", path, "error", err)
			} else {
				changes = w.Events
				slog.Debug("Watching session file", "path", path)
			}
		}

		next := s.watchUntilSwitch(ctx, path, changes, events)
		if w != nil {
			w.Close()
		}
		if !next {
			return
		}
	}
}

// watchUntilSwitch handles file changes until the editor opens another
// path (true) or the worker must stop (false).
func (s *Server) watchUntilSwitch(ctx context.Context, path string, changes chan string, events chan canvas.Invalidation) bool {
	// A save under a new name emits no event.
	pathCheck := time.NewTicker(time.Second)
	defer pathCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-pathCheck.C:
			if s.editor.Path() != path {
				return true
			}
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			reloaded, err := s.editor.ReloadSession()
			if err != nil {
				slog.Warn("Failed to reload session file", "path", path, "error", err)
			} else if reloaded {
				slog.Info("Session reloaded from disk", "path", path)
			}
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.Reason != "pixels" && s.editor.Path() != path {
				return true
			}
		}
	}
}
