package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/editor"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/cwbudde/layerpaint/internal/session"
	"github.com/cwbudde/layerpaint/internal/store"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verr *store.ValidationError
	switch {
	case errors.Is(err, canvas.ErrLayerNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, canvas.ErrLastLayer), errors.Is(err, canvas.ErrLayerLocked):
		return http.StatusConflict
	case errors.Is(err, session.ErrCorruptSession), errors.Is(err, session.ErrTruncatedData),
		errors.Is(err, session.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, raster.ErrInvalidDimensions), errors.Is(err, raster.ErrIndexOutOfBounds),
		errors.Is(err, session.ErrUnsupportedFormat), errors.Is(err, editor.ErrNoPath),
		errors.As(err, &verr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError renders err as JSON with a matching status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

// badRequest renders a 400 with msg.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: msg})
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		badRequest(w, r, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
