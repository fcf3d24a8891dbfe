package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/config"
	"github.com/cwbudde/layerpaint/internal/editor"
	"github.com/cwbudde/layerpaint/internal/raster"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger

	// cfg holds the loaded settings; commands read it after PersistentPreRunE.
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "layerpaint",
	Short: "Layered raster painting engine",
	Long: `layerpaint edits layered raster documents: create and inspect sessions,
manage layers, replay stroke journals, convert between formats and serve
a live preview of the editor over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./"+config.DefaultFile+" if present)")
}

// editorOptions maps the loaded config onto editor options.
func editorOptions(c config.Config) (editor.Options, error) {
	params, err := c.ToolParams()
	if err != nil {
		return editor.Options{}, err
	}
	return editor.Options{
		Width:      c.Canvas.Width,
		Height:     c.Canvas.Height,
		Layout:     c.Layout(),
		SessionDir: c.SessionDir,
		Session:    c.SessionOptions(),
		Tool:       c.ToolKind(),
		Params:     params,
	}, nil
}

// newEditor builds an editor from cfg. When layout is non-empty it
// overrides the configured canvas layout.
func newEditor(layout string) (*editor.Editor, error) {
	opts, err := editorOptions(cfg)
	if err != nil {
		return nil, err
	}
	if layout != "" {
		l, err := raster.ParseLayout(layout)
		if err != nil {
			return nil, err
		}
		opts.Layout = l
	}
	return editor.New(opts)
}

// openEditor builds an editor and opens path in it.
func openEditor(path string) (*editor.Editor, error) {
	ed, err := newEditor("")
	if err != nil {
		return nil, err
	}
	if err := ed.OpenSession(path); err != nil {
		ed.Close()
		return nil, err
	}
	return ed, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
