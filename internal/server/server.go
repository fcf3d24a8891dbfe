// Package server exposes an editor over HTTP for previewing and driving
// it from a browser or script: canvas and layer commands, tool selection,
// pointer events, the display image and a stream of invalidations.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwbudde/layerpaint/internal/editor"
	"github.com/cwbudde/layerpaint/internal/store"
)

// Options configures the background workers.
type Options struct {
	// Autosave is the snapshot interval; 0 disables autosave.
	Autosave time.Duration
	// KeepSnapshots bounds autosave history per document; 0 keeps all.
	KeepSnapshots int
	// Watch reloads the open session when its file changes on disk.
	Watch bool
}

// Server represents the HTTP server
type Server struct {
	editor    *editor.Editor
	snapshots store.Store
	opts      Options
	addr      string
	server    *http.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server for ed. snapshots may be nil, which disables
// autosave and the snapshot endpoints.
func NewServer(addr string, ed *editor.Editor, snapshots store.Store, opts Options) *Server {
	return &Server{
		editor:    ed,
		snapshots: snapshots,
		opts:      opts,
		addr:      addr,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowLocalOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/canvas", func(r chi.Router) {
			r.Get("/", s.handleGetCanvas)
			r.Post("/", s.handleNewCanvas)
			r.Post("/open", s.handleOpen)
			r.Post("/save", s.handleSave)
			r.Post("/export", s.handleExport)

			r.Route("/layers", func(r chi.Router) {
				r.Get("/", s.handleListLayers)
				r.Post("/", s.handleAddLayer)
				r.Post("/flatten", s.handleFlatten)
				r.Route("/{layerID}", func(r chi.Router) {
					r.Patch("/", s.handleUpdateLayer)
					r.Delete("/", s.handleRemoveLayer)
					r.Post("/activate", s.handleActivateLayer)
					r.Post("/merge-down", s.handleMergeDown)
				})
			})
		})

		r.Get("/tool", s.handleGetTool)
		r.Put("/tool", s.handleSetTool)
		r.Post("/pointer/{phase}", s.handlePointer)

		r.Get("/display.png", s.handleDisplay)
		r.Get("/thumbnail.png", s.handleThumbnail)
		r.Get("/events", s.handleStream)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleListSnapshots)
			r.Post("/", s.handleCreateSnapshot)
			r.Post("/{snapshotID}/restore", s.handleRestoreSnapshot)
			r.Delete("/{snapshotID}", s.handleDeleteSnapshot)
		})
	})
	return r
}

// Start starts the background workers and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.startWorkers(ctx)

	slog.Info("Starting HTTP server", "addr", s.addr, "autosave", s.opts.Autosave, "watch", s.opts.Watch)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its workers.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// allowLocalOrigin admits browser pages served from this machine.
func allowLocalOrigin(_ *http.Request, origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}
