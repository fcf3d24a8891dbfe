package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/cwbudde/layerpaint/internal/store"
)

var errNoSnapshots = errors.New("snapshots are disabled")

// document is the snapshot key of the open document.
func (s *Server) document() string {
	return store.DocumentKey(s.editor.Path())
}

func (s *Server) requireSnapshots(w http.ResponseWriter, r *http.Request) bool {
	if s.snapshots == nil {
		render.Status(r, http.StatusNotImplemented)
		render.JSON(w, r, errorResponse{Error: errNoSnapshots.Error()})
		return false
	}
	return true
}

// handleListSnapshots handles GET /api/v1/snapshots
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w, r) {
		return
	}
	infos, err := s.snapshots.ListSnapshots(s.document())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, infos)
}

// handleCreateSnapshot handles POST /api/v1/snapshots
func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w, r) {
		return
	}
	info, err := s.snapshots.SaveSnapshot(s.document(), s.editor.Canvas(), "manual")
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, info)
}

// handleRestoreSnapshot handles POST /api/v1/snapshots/{snapshotID}/restore.
// The restored canvas keeps the open document's path.
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w, r) {
		return
	}
	c, err := s.snapshots.LoadSnapshot(s.document(), chi.URLParam(r, "snapshotID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.editor.Replace(c, s.editor.Path())
	render.JSON(w, r, s.canvasInfo())
}

// handleDeleteSnapshot handles DELETE /api/v1/snapshots/{snapshotID}
func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w, r) {
		return
	}
	if err := s.snapshots.DeleteSnapshot(s.document(), chi.URLParam(r, "snapshotID")); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
