package session

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format reads and/or writes documents for a set of file extensions.
// Either direction may be nil.
type Format struct {
	Name       string
	Extensions []string
	Decode     func(r io.Reader) (*canvas.Canvas, error)
	Encode     func(w io.Writer, c *canvas.Canvas, opts Options) error
	// Lossy formats keep only the flattened composite.
	Lossy bool
}

var registry = struct {
	sync.RWMutex
	byExt map[string]Format
}{byExt: make(map[string]Format)}

// Register makes f available for its extensions, replacing any earlier
// registration of the same extension.
func Register(f Format) {
	registry.Lock()
	defer registry.Unlock()
	for _, ext := range f.Extensions {
		registry.byExt[normalizeExt(ext)] = f
	}
}

// Formats lists registered formats sorted by name.
func Formats() []Format {
	registry.RLock()
	defer registry.RUnlock()

	seen := make(map[string]bool)
	var out []Format
	for _, f := range registry.byExt {
		if !seen[f.Name] {
			seen[f.Name] = true
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b Format) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Lookup finds the format for a path by its extension.
func Lookup(path string) (Format, error) {
	ext := normalizeExt(filepath.Ext(path))
	registry.RLock()
	f, ok := registry.byExt[ext]
	registry.RUnlock()
	if !ok {
		return Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Open reads a document with the format matching the file extension.
func Open(path string) (*canvas.Canvas, error) {
	f, err := Lookup(path)
	if err != nil {
		return nil, err
	}
	if f.Decode == nil {
		return nil, fmt.Errorf("%w: %s cannot be read", ErrUnsupportedFormat, f.Name)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	c, err := f.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	slog.Info("Document opened", "path", path, "format", f.Name, "layers", c.Len())
	return c, nil
}

// Save writes c with the format matching the file extension. The file is
// written to a temporary sibling and renamed into place, so a failed save
// leaves any previous file intact.
func Save(path string, c *canvas.Canvas, opts Options) error {
	f, err := Lookup(path)
	if err != nil {
		return err
	}
	if f.Encode == nil {
		return fmt.Errorf("%w: %s cannot be written", ErrUnsupportedFormat, f.Name)
	}

	var buf bytes.Buffer
	if err := f.Encode(&buf, c, opts); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := WriteFileAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("Document saved", "path", path, "format", f.Name, "bytes", buf.Len())
	return nil
}

// WriteFileAtomic writes data to path via a ".tmp" sibling and a rename.
// Missing parent directories are created.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// decodeKSP accepts both the current container and legacy KSP1 files.
func decodeKSP(r io.Reader) (*canvas.Canvas, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte(LegacyMagic)) {
		return DecodeLegacy(data)
	}
	return Decode(data)
}

func encodeKSP(w io.Writer, c *canvas.Canvas, opts Options) error {
	return EncodeTo(w, c, opts)
}

func init() {
	Register(Format{Name: "ksp", Extensions: []string{"ksp"}, Decode: decodeKSP, Encode: encodeKSP})
	Register(Format{Name: "png", Extensions: []string{"png"}, Decode: decodeImage(png.Decode), Encode: encodePNG, Lossy: true})
	Register(Format{Name: "bmp", Extensions: []string{"bmp"}, Decode: decodeImage(bmp.Decode), Encode: encodeBMP, Lossy: true})
	Register(Format{Name: "tiff", Extensions: []string{"tif", "tiff"}, Decode: decodeImage(tiff.Decode), Encode: encodeTIFF, Lossy: true})
}
