package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/tool"
)

// Action names a journaled editor input.
type Action string

const (
	ActionTool  Action = "tool"  // select a tool and its params
	ActionLayer Action = "layer" // select the target layer
	ActionDown  Action = "down"
	ActionMove  Action = "move"
	ActionUp    Action = "up"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionTool, ActionLayer, ActionDown, ActionMove, ActionUp:
		return true
	}
	return false
}

// JournalEntry is one line of a stroke journal. Replaying the entries of
// a journal against the canvas they were recorded on reproduces its
// strokes.
type JournalEntry struct {
	// Seq is assigned by the writer and increases by one per entry.
	Seq int `json:"seq"`

	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`

	// Layer is set for ActionLayer.
	Layer canvas.LayerID `json:"layer,omitempty"`

	// Tool and Params are set for ActionTool. Params may be nil, meaning
	// the tool's defaults.
	Tool   *tool.Kind   `json:"tool,omitempty"`
	Params *tool.Params `json:"params,omitempty"`

	// Event is set for pointer actions.
	Event *tool.Event `json:"event,omitempty"`
}

// Validate checks that the fields required by the action are present.
func (e *JournalEntry) Validate() error {
	if !e.Action.Valid() {
		return &ValidationError{Field: "Action", Reason: fmt.Sprintf("unknown action %q", e.Action)}
	}
	switch e.Action {
	case ActionTool:
		if e.Tool == nil {
			return &ValidationError{Field: "Tool", Reason: "required for tool action"}
		}
		if e.Params != nil {
			if err := e.Params.Validate(); err != nil {
				return &ValidationError{Field: "Params", Reason: err.Error()}
			}
		}
	case ActionLayer:
		if e.Layer == "" {
			return &ValidationError{Field: "Layer", Reason: "required for layer action"}
		}
	default:
		if e.Event == nil {
			return &ValidationError{Field: "Event", Reason: "required for pointer action"}
		}
	}
	return nil
}

// JournalWriter appends entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type JournalWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	seq    int
}

// NewJournalWriter opens a journal at path, creating parent directories.
// If append is true, new entries go after the existing ones and sequence
// numbers continue from the last entry.
func NewJournalWriter(path string, append bool) (*JournalWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	seq := 0
	if append {
		if r, err := NewJournalReader(path); err == nil {
			entries, err := r.ReadAll()
			r.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read existing journal: %w", err)
			}
			if n := len(entries); n > 0 {
				seq = entries[n-1].Seq
			}
		}
	}

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &JournalWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
		seq:    seq,
	}, nil
}

// Write validates entry, stamps it and buffers it. The stamped entry is
// returned.
func (jw *JournalWriter) Write(entry JournalEntry) (JournalEntry, error) {
	if err := entry.Validate(); err != nil {
		return entry, err
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.seq++
	entry.Seq = jw.seq
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		jw.seq--
		return entry, fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if _, err := jw.writer.Write(data); err != nil {
		return entry, fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := jw.writer.WriteByte('\n'); err != nil {
		return entry, fmt.Errorf("failed to write newline: %w", err)
	}
	return entry, nil
}

// Flush writes buffered entries and syncs the file.
func (jw *JournalWriter) Flush() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	if err := jw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file.
func (jw *JournalWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := jw.file.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the journal.
func (jw *JournalWriter) Path() string {
	return jw.path
}

// JournalReader reads entries from a JSONL journal.
type JournalReader struct {
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
}

// NewJournalReader opens the journal at path.
func NewJournalReader(path string) (*JournalReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("journal %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	r := ReadJournal(file)
	r.closer = file
	return r, nil
}

// ReadJournal reads entries from r, for example stdin.
func ReadJournal(r io.Reader) *JournalReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &JournalReader{scanner: scanner}
}

// Read returns the next entry, skipping blank lines.
// Returns io.EOF when no more entries are available.
func (jr *JournalReader) Read() (*JournalEntry, error) {
	for jr.scanner.Scan() {
		jr.line++
		line := jr.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", jr.line, err)
		}
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", jr.line, err)
		}
		return &entry, nil
	}
	if err := jr.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan journal line: %w", err)
	}
	return nil, io.EOF
}

// ReadAll reads all remaining entries.
func (jr *JournalReader) ReadAll() ([]JournalEntry, error) {
	var entries []JournalEntry
	for {
		entry, err := jr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the underlying file, if the reader opened one.
func (jr *JournalReader) Close() error {
	if jr.closer == nil {
		return nil
	}
	if err := jr.closer.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
