package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/server"
	"github.com/cwbudde/layerpaint/internal/store"
)

var (
	serveAddr     string
	serveAutosave time.Duration
	serveKeep     int
	serveNoWatch  bool
	serveJournal  string
)

var serveCmd = &cobra.Command{
	Use:   "serve [session]",
	Short: "Start the preview server",
	Long: `Serve the editor over HTTP: canvas and layer commands, tool selection,
pointer events, the display and thumbnail images and an event stream of
canvas invalidations. The open session is snapshotted periodically and
reloaded when its file changes on disk.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().DurationVar(&serveAutosave, "autosave", 0, "Snapshot interval, 0 disables (default from config)")
	serveCmd.Flags().IntVar(&serveKeep, "keep-snapshots", 0, "Snapshots kept per document (default from config)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the session when it changes on disk")
	serveCmd.Flags().StringVar(&serveJournal, "journal", "", "Record pointer and tool input to this journal")
}

func runServe(cmd *cobra.Command, args []string) error {
	ed, err := newEditor("")
	if err != nil {
		return err
	}
	defer ed.Close()

	if len(args) == 1 {
		if err := ed.OpenSession(args[0]); err != nil {
			return err
		}
	}

	if serveJournal != "" {
		jw, err := store.NewJournalWriter(serveJournal, true)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer jw.Close()
		ed.SetJournal(jw)
	}

	snapshots, err := store.NewFSStore(cfg.DataDir, cfg.SessionOptions())
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	flags := cmd.Flags()
	addr := cfg.Server.Addr
	if flags.Changed("addr") {
		addr = serveAddr
	}
	opts := server.Options{
		Autosave:      cfg.Server.Autosave,
		KeepSnapshots: cfg.Server.KeepSnapshots,
		Watch:         !serveNoWatch,
	}
	if flags.Changed("autosave") {
		opts.Autosave = serveAutosave
	}
	if flags.Changed("keep-snapshots") {
		opts.KeepSnapshots = serveKeep
	}

	srv := server.NewServer(addr, ed, snapshots, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
