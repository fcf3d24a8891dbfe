package server

import (
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/tool"
)

// canvasResponse describes the open document.
type canvasResponse struct {
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Layout   string             `json:"layout"`
	Path     string             `json:"path,omitempty"`
	Active   canvas.LayerID     `json:"activeLayer"`
	Seq      uint64             `json:"seq"`
	Created  time.Time          `json:"created"`
	Modified time.Time          `json:"modified"`
	Layers   []canvas.LayerInfo `json:"layers"`
}

func (s *Server) canvasInfo() canvasResponse {
	c := s.editor.Canvas()
	meta := c.Meta()
	return canvasResponse{
		Width:    c.Width(),
		Height:   c.Height(),
		Layout:   c.Layout().String(),
		Path:     s.editor.Path(),
		Active:   c.ActiveLayer(),
		Seq:      c.Seq(),
		Created:  meta.Created,
		Modified: meta.Modified,
		Layers:   c.Layers(),
	}
}

// handleGetCanvas handles GET /api/v1/canvas
func (s *Server) handleGetCanvas(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.canvasInfo())
}

// handleNewCanvas handles POST /api/v1/canvas
func (s *Server) handleNewCanvas(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.editor.NewCanvas(req.Width, req.Height); err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, s.canvasInfo())
}

type pathRequest struct {
	Path string `json:"path"`
}

// handleOpen handles POST /api/v1/canvas/open
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		badRequest(w, r, "path is required")
		return
	}
	if err := s.editor.OpenSession(req.Path); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, s.canvasInfo())
}

// handleSave handles POST /api/v1/canvas/save. An empty body saves to the
// current path.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if err := s.editor.SaveSession(req.Path); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"path": s.editor.Path()})
}

// handleExport handles POST /api/v1/canvas/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		badRequest(w, r, "path is required")
		return
	}
	if err := s.editor.ExportImage(req.Path); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"path": s.editor.Resolve(req.Path)})
}

// handleListLayers handles GET /api/v1/canvas/layers
func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.editor.Canvas().Layers())
}

// handleAddLayer handles POST /api/v1/canvas/layers
func (s *Server) handleAddLayer(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Index *int   `json:"index"`
		Name  string `json:"name"`
	}{}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}

	c := s.editor.Canvas()
	id, err := c.AddLayer(index, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var info canvas.LayerInfo
	if req.Name != "" {
		info, err = c.UpdateLayer(id, canvas.LayerUpdate{Name: &req.Name})
	} else {
		info, err = c.Layer(id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, info)
}

// handleUpdateLayer handles PATCH /api/v1/canvas/layers/{layerID}
func (s *Server) handleUpdateLayer(w http.ResponseWriter, r *http.Request) {
	id := canvas.LayerID(chi.URLParam(r, "layerID"))
	var u canvas.LayerUpdate
	if !decode(w, r, &u) {
		return
	}

	info, err := s.editor.Canvas().UpdateLayer(id, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

// handleRemoveLayer handles DELETE /api/v1/canvas/layers/{layerID}
func (s *Server) handleRemoveLayer(w http.ResponseWriter, r *http.Request) {
	id := canvas.LayerID(chi.URLParam(r, "layerID"))
	if err := s.editor.Canvas().RemoveLayer(id); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// handleActivateLayer handles POST /api/v1/canvas/layers/{layerID}/activate
func (s *Server) handleActivateLayer(w http.ResponseWriter, r *http.Request) {
	id := canvas.LayerID(chi.URLParam(r, "layerID"))
	if err := s.editor.SetActiveLayer(id); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, s.canvasInfo())
}

// handleMergeDown handles POST /api/v1/canvas/layers/{layerID}/merge-down
func (s *Server) handleMergeDown(w http.ResponseWriter, r *http.Request) {
	id := canvas.LayerID(chi.URLParam(r, "layerID"))
	if err := s.editor.Canvas().MergeDown(id); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, s.canvasInfo())
}

// handleFlatten handles POST /api/v1/canvas/layers/flatten
func (s *Server) handleFlatten(w http.ResponseWriter, r *http.Request) {
	s.editor.Canvas().Flatten()
	render.JSON(w, r, s.canvasInfo())
}

type toolState struct {
	Kind   tool.Kind   `json:"kind"`
	Params tool.Params `json:"params"`
}

// handleGetTool handles GET /api/v1/tool
func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	kind, params := s.editor.ActiveTool()
	render.JSON(w, r, toolState{Kind: kind, Params: params})
}

// handleSetTool handles PUT /api/v1/tool. Omitted params keep the current
// values.
func (s *Server) handleSetTool(w http.ResponseWriter, r *http.Request) {
	kind, params := s.editor.ActiveTool()
	req := toolState{Kind: kind, Params: params}
	if !decode(w, r, &req) {
		return
	}
	if err := s.editor.SetActiveTool(req.Kind, req.Params); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	s.handleGetTool(w, r)
}

// handlePointer handles POST /api/v1/pointer/{phase}
func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var ev tool.Event
	if !decode(w, r, &ev) {
		return
	}

	var err error
	switch chi.URLParam(r, "phase") {
	case "down":
		err = s.editor.PointerDown(ev)
	case "move":
		err = s.editor.PointerMove(ev)
	case "up":
		err = s.editor.PointerUp(ev)
	default:
		badRequest(w, r, "phase must be down, move or up")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]uint64{"seq": s.editor.Canvas().Seq()})
}

// handleDisplay handles GET /api/v1/display.png
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	writePNG(w, s.editor.DisplayBuffer().ToNRGBA())
}

// handleThumbnail handles GET /api/v1/thumbnail.png?size=N
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	size := 128
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 4096 {
			badRequest(w, r, "size must be an integer in [1, 4096]")
			return
		}
		size = n
	}
	writePNG(w, s.editor.Thumbnail(size))
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}
