// Package config loads layerpaint settings from a YAML file, a .env file
// and LAYERPAINT_* environment variables, in that order of precedence
// (later wins). Command flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/cwbudde/layerpaint/internal/session"
	"github.com/cwbudde/layerpaint/internal/tool"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "layerpaint.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LAYERPAINT_"

// Config holds all settings.
type Config struct {
	// SessionDir resolves relative session paths.
	SessionDir string `yaml:"session_dir"`
	// DataDir holds snapshots.
	DataDir string `yaml:"data_dir"`

	Canvas CanvasConfig `yaml:"canvas"`
	Server ServerConfig `yaml:"server"`
	Tool   ToolConfig   `yaml:"tool"`

	// Compression for saved sessions: none or zstd.
	Compression string `yaml:"compression"`
}

// CanvasConfig holds defaults for new canvases.
type CanvasConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Layout string `yaml:"layout"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Addr     string        `yaml:"addr"`
	Autosave time.Duration `yaml:"autosave"`
	// KeepSnapshots bounds autosave history per document; 0 keeps all.
	KeepSnapshots int `yaml:"keep_snapshots"`
}

// ToolConfig is the initially active tool.
type ToolConfig struct {
	Kind         string  `yaml:"kind"`
	Color        string  `yaml:"color"`
	Size         float64 `yaml:"size"`
	Tolerance    float64 `yaml:"tolerance"`
	Connectivity int     `yaml:"connectivity"`
	Smoothing    float64 `yaml:"smoothing"`
}

// ValidationError reports an impossible setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Default returns the built-in settings.
func Default() Config {
	p := tool.DefaultParams()
	return Config{
		SessionDir:  ".",
		DataDir:     "./data",
		Compression: string(session.CompressionZstd),
		Canvas: CanvasConfig{
			Width:  1024,
			Height: 768,
			Layout: raster.LayoutRGBA8.String(),
		},
		Server: ServerConfig{
			Addr:          "localhost:8080",
			Autosave:      2 * time.Minute,
			KeepSnapshots: 20,
		},
		Tool: ToolConfig{
			Kind:         tool.Brush.String(),
			Color:        p.Color.String(),
			Size:         p.Size,
			Tolerance:    p.Tolerance,
			Connectivity: p.Connectivity,
			Smoothing:    p.Smoothing,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path, a .env file
// in the working directory and the environment. An empty path means
// DefaultFile, which may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from LAYERPAINT_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SESSION_DIR":   &c.SessionDir,
		"DATA_DIR":      &c.DataDir,
		"COMPRESSION":   &c.Compression,
		"CANVAS_LAYOUT": &c.Canvas.Layout,
		"SERVER_ADDR":   &c.Server.Addr,
		"TOOL_KIND":     &c.Tool.Kind,
		"TOOL_COLOR":    &c.Tool.Color,
	}
	ints := map[string]*int{
		"CANVAS_WIDTH":          &c.Canvas.Width,
		"CANVAS_HEIGHT":         &c.Canvas.Height,
		"SERVER_KEEP_SNAPSHOTS": &c.Server.KeepSnapshots,
		"TOOL_CONNECTIVITY":     &c.Tool.Connectivity,
	}
	floats := map[string]*float64{
		"TOOL_SIZE":      &c.Tool.Size,
		"TOOL_TOLERANCE": &c.Tool.Tolerance,
		"TOOL_SMOOTHING": &c.Tool.Smoothing,
	}

	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return &ValidationError{Field: EnvPrefix + key, Reason: "not an integer"}
			}
			*dst = n
		}
	}
	for key, dst := range floats {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return &ValidationError{Field: EnvPrefix + key, Reason: "not a number"}
			}
			*dst = f
		}
	}
	if v, ok := lookup(EnvPrefix + "SERVER_AUTOSAVE"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return &ValidationError{Field: EnvPrefix + "SERVER_AUTOSAVE", Reason: "not a duration"}
		}
		c.Server.Autosave = d
	}
	return nil
}

// Validate rejects impossible values.
func (c Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return &ValidationError{Field: "canvas.width/height", Reason: "must be positive"}
	}
	if _, err := raster.ParseLayout(c.Canvas.Layout); err != nil {
		return &ValidationError{Field: "canvas.layout", Reason: err.Error()}
	}
	if _, err := session.ParseCompression(c.Compression); err != nil {
		return &ValidationError{Field: "compression", Reason: err.Error()}
	}
	if c.Server.Addr == "" {
		return &ValidationError{Field: "server.addr", Reason: "cannot be empty"}
	}
	if c.Server.Autosave < 0 {
		return &ValidationError{Field: "server.autosave", Reason: "cannot be negative"}
	}
	if c.Server.KeepSnapshots < 0 {
		return &ValidationError{Field: "server.keep_snapshots", Reason: "cannot be negative"}
	}
	if _, err := tool.ParseKind(c.Tool.Kind); err != nil {
		return &ValidationError{Field: "tool.kind", Reason: err.Error()}
	}
	if _, err := c.ToolParams(); err != nil {
		return err
	}
	return nil
}

// Layout returns the parsed default canvas layout.
func (c Config) Layout() raster.Layout {
	l, err := raster.ParseLayout(c.Canvas.Layout)
	if err != nil {
		return raster.LayoutRGBA8
	}
	return l
}

// SessionOptions returns the encoder options for saved sessions.
func (c Config) SessionOptions() session.Options {
	comp, err := session.ParseCompression(c.Compression)
	if err != nil {
		return session.DefaultOptions()
	}
	return session.Options{Compression: comp}
}

// ToolKind returns the parsed default tool kind.
func (c Config) ToolKind() tool.Kind {
	k, err := tool.ParseKind(c.Tool.Kind)
	if err != nil {
		return tool.Brush
	}
	return k
}

// ToolParams returns the validated default tool params.
func (c Config) ToolParams() (tool.Params, error) {
	col, err := raster.ParseColor(c.Tool.Color)
	if err != nil {
		return tool.Params{}, &ValidationError{Field: "tool.color", Reason: err.Error()}
	}
	p := tool.Params{
		Color:        col,
		Size:         c.Tool.Size,
		Tolerance:    c.Tool.Tolerance,
		Connectivity: c.Tool.Connectivity,
		Smoothing:    c.Tool.Smoothing,
	}
	if err := p.Validate(); err != nil {
		return tool.Params{}, &ValidationError{Field: "tool", Reason: err.Error()}
	}
	return p, nil
}
