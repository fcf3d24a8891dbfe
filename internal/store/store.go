package store

import "github.com/cwbudde/layerpaint/internal/canvas"

// Store defines the interface for snapshot persistence. A snapshot is a
// complete copy of a document at one point in time, kept so an autosave
// history can be browsed and restored independently of the document file.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a snapshot doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveSnapshot stores the current state of c under document and
	// returns the new snapshot's metadata. reason is a free-form label
	// such as "autosave" or "manual".
	SaveSnapshot(document string, c *canvas.Canvas, reason string) (SnapshotInfo, error)

	// LoadSnapshot restores a canvas from a snapshot.
	LoadSnapshot(document, id string) (*canvas.Canvas, error)

	// ListSnapshots returns metadata for the snapshots of one document,
	// or of every document when document is empty, oldest first.
	ListSnapshots(document string) ([]SnapshotInfo, error)

	// DeleteSnapshot removes a snapshot and its metadata.
	DeleteSnapshot(document, id string) error
}

// ErrNotFound is returned when a requested snapshot does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing snapshot.
type NotFoundError struct {
	Document string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "snapshot not found: " + e.Document + "/" + e.ID
	}
	return "snapshot not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
