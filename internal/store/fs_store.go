package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/session"
	"github.com/oklog/ulid/v2"
)

// FSStore implements the Store interface on the filesystem. Snapshots are
// stored as <baseDir>/snapshots/<document>/<id>.ksp with a <id>.json
// sidecar holding SnapshotInfo.
//
// Thread-safety: every file is written to a temp name and renamed into
// place, and snapshot ids are unique, so concurrent calls need no locks.
type FSStore struct {
	baseDir string
	opts    session.Options
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string, opts session.Options) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir, opts: opts}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) documentDir(document string) string {
	return filepath.Join(fs.baseDir, "snapshots", document)
}

func (fs *FSStore) snapshotPath(document, id string) string {
	return filepath.Join(fs.documentDir(document), id+".ksp")
}

func (fs *FSStore) infoPath(document, id string) string {
	return filepath.Join(fs.documentDir(document), id+".json")
}

func checkKeys(document, id string, needID bool) error {
	if document == "" {
		return fmt.Errorf("document cannot be empty")
	}
	if strings.ContainsAny(document, `/\`) || document == "." || document == ".." {
		return fmt.Errorf("invalid document key %q", document)
	}
	if needID {
		if _, err := ulid.ParseStrict(id); err != nil {
			return &NotFoundError{Document: document, ID: id}
		}
	}
	return nil
}

// SaveSnapshot encodes c and stores it with a fresh ULID.
func (fs *FSStore) SaveSnapshot(document string, c *canvas.Canvas, reason string) (SnapshotInfo, error) {
	if err := checkKeys(document, "", false); err != nil {
		return SnapshotInfo{}, err
	}
	if c == nil {
		return SnapshotInfo{}, fmt.Errorf("canvas cannot be nil")
	}

	var buf bytes.Buffer
	if err := session.EncodeTo(&buf, c, fs.opts); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := time.Now().UTC()
	info := SnapshotInfo{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Document:  document,
		Timestamp: now,
		Reason:    reason,
		Width:     c.Width(),
		Height:    c.Height(),
		Layers:    c.Len(),
		Size:      int64(buf.Len()),
	}

	// Session first: a sidecar never points at a missing file.
	if err := session.WriteFileAtomic(fs.snapshotPath(document, info.ID), buf.Bytes()); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to write snapshot: %w", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to serialize snapshot info: %w", err)
	}
	if err := session.WriteFileAtomic(fs.infoPath(document, info.ID), data); err != nil {
		os.Remove(fs.snapshotPath(document, info.ID))
		return SnapshotInfo{}, fmt.Errorf("failed to write snapshot info: %w", err)
	}

	slog.Debug("Snapshot saved", "document", document, "id", info.ID, "bytes", info.Size, "reason", reason)
	return info, nil
}

// LoadSnapshot decodes the stored session of a snapshot.
func (fs *FSStore) LoadSnapshot(document, id string) (*canvas.Canvas, error) {
	if err := checkKeys(document, id, true); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.snapshotPath(document, id))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Document: document, ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	c, err := session.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	slog.Debug("Snapshot loaded", "document", document, "id", id)
	return c, nil
}

// ListSnapshots reads every sidecar. Unreadable sidecars are skipped with
// a warning.
func (fs *FSStore) ListSnapshots(document string) ([]SnapshotInfo, error) {
	var docs []string
	if document != "" {
		if err := checkKeys(document, "", false); err != nil {
			return nil, err
		}
		docs = []string{document}
	} else {
		entries, err := os.ReadDir(filepath.Join(fs.baseDir, "snapshots"))
		if os.IsNotExist(err) {
			return []SnapshotInfo{}, nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				docs = append(docs, e.Name())
			}
		}
	}

	infos := []SnapshotInfo{}
	for _, doc := range docs {
		entries, err := os.ReadDir(fs.documentDir(doc))
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to read document directory: %w", err)
		}

		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(fs.documentDir(doc), e.Name()))
			if err != nil {
				slog.Warn("Failed to read snapshot info", "document", doc, "file", e.Name(), "error", err)
				continue
			}
			var info SnapshotInfo
			if err := json.Unmarshal(data, &info); err != nil {
				slog.Warn("Failed to parse snapshot info", "document", doc, "file", e.Name(), "error", err)
				continue
			}
			if err := info.Validate(); err != nil {
				slog.Warn("Invalid snapshot info", "document", doc, "file", e.Name(), "error", err)
				continue
			}
			infos = append(infos, info)
		}
	}

	slices.SortFunc(infos, func(a, b SnapshotInfo) int {
		if c := strings.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return strings.Compare(a.Document, b.Document)
	})
	slog.Debug("Listed snapshots", "document", document, "count", len(infos))
	return infos, nil
}

// DeleteSnapshot removes a snapshot's session file and sidecar.
func (fs *FSStore) DeleteSnapshot(document, id string) error {
	if err := checkKeys(document, id, true); err != nil {
		return err
	}

	info := fs.infoPath(document, id)
	if _, err := os.Stat(info); os.IsNotExist(err) {
		return &NotFoundError{Document: document, ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}

	if err := os.Remove(info); err != nil {
		return fmt.Errorf("failed to remove snapshot info: %w", err)
	}
	if err := os.Remove(fs.snapshotPath(document, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}

	slog.Debug("Snapshot deleted", "document", document, "id", id)
	return nil
}
