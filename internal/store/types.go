package store

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SnapshotInfo describes one stored snapshot. It is persisted as a JSON
// sidecar next to the snapshot's session file so listing never has to
// decode pixels.
type SnapshotInfo struct {
	// ID is a ULID; lexical order equals creation order.
	ID string `json:"id"`

	// Document is the key of the document the snapshot belongs to.
	Document string `json:"document"`

	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`

	Width  int `json:"width"`
	Height int `json:"height"`
	Layers int `json:"layers"`

	// Size is the session file size in bytes.
	Size int64 `json:"size"`
}

// Validate checks that the info can address a snapshot.
func (s *SnapshotInfo) Validate() error {
	if s.Document == "" {
		return &ValidationError{Field: "Document", Reason: "cannot be empty"}
	}
	if _, err := ulid.ParseStrict(s.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a ULID"}
	}
	if s.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if s.Width <= 0 || s.Height <= 0 {
		return &ValidationError{Field: "Width/Height", Reason: "must be positive"}
	}
	if s.Layers <= 0 {
		return &ValidationError{Field: "Layers", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a snapshot validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// DocumentKey derives a snapshot document key from a session path: the
// file name without extension, reduced to letters, digits, '-' and '_'.
func DocumentKey(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if key == "" || key == "." || strings.Trim(key, "_") == "" {
		return "untitled"
	}
	return key
}

// Retention selects snapshots to delete. Zero fields disable a rule.
type Retention struct {
	// KeepLast keeps the newest N snapshots of each document.
	KeepLast int
	// OlderThan deletes snapshots older than this age.
	OlderThan time.Duration
}

// Select returns the snapshots in infos that the policy deletes, oldest
// first. A snapshot matched by both rules is returned once.
func (r Retention) Select(infos []SnapshotInfo, now time.Time) []SnapshotInfo {
	sorted := slices.Clone(infos)
	slices.SortFunc(sorted, func(a, b SnapshotInfo) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	drop := make(map[string]bool)
	if r.OlderThan > 0 {
		cutoff := now.Add(-r.OlderThan)
		for _, info := range sorted {
			if info.Timestamp.Before(cutoff) {
				drop[info.Document+"/"+info.ID] = true
			}
		}
	}
	if r.KeepLast > 0 {
		perDoc := make(map[string]int)
		for i := len(sorted) - 1; i >= 0; i-- {
			info := sorted[i]
			perDoc[info.Document]++
			if perDoc[info.Document] > r.KeepLast {
				drop[info.Document+"/"+info.ID] = true
			}
		}
	}

	var out []SnapshotInfo
	for _, info := range sorted {
		if drop[info.Document+"/"+info.ID] {
			out = append(out, info)
		}
	}
	return out
}
