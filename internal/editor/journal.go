package editor

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/store"
	"github.com/cwbudde/layerpaint/internal/tool"
)

// SetJournal records every subsequent tool selection, layer selection and
// pointer event to w. nil stops recording. The caller owns w.
func (e *Editor) SetJournal(w *store.JournalWriter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.journal = w
}

// SetActiveLayer selects the layer tools paint on.
func (e *Editor) SetActiveLayer(id canvas.LayerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.canvas.SetActiveLayer(id); err != nil {
		return err
	}
	e.recordLocked(store.JournalEntry{Action: store.ActionLayer, Layer: id})
	return nil
}

func (e *Editor) record(entry store.JournalEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordLocked(entry)
}

func (e *Editor) recordLocked(entry store.JournalEntry) {
	if e.journal == nil {
		return
	}
	if _, err := e.journal.Write(entry); err != nil {
		slog.Warn("Failed to record journal entry", "action", entry.Action, "error", err)
	}
}

// Apply performs one journaled input.
func (e *Editor) Apply(entry store.JournalEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	switch entry.Action {
	case store.ActionTool:
		params := tool.DefaultParams()
		if entry.Params != nil {
			params = *entry.Params
		}
		return e.SetActiveTool(*entry.Tool, params)
	case store.ActionLayer:
		return e.SetActiveLayer(entry.Layer)
	case store.ActionDown:
		return e.PointerDown(*entry.Event)
	case store.ActionMove:
		return e.PointerMove(*entry.Event)
	default:
		return e.PointerUp(*entry.Event)
	}
}

// Replay applies every entry read from r and returns how many were
// applied. It stops at the first failing entry.
func (e *Editor) Replay(r *store.JournalReader) (int, error) {
	n := 0
	for {
		entry, err := r.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := e.Apply(*entry); err != nil {
			return n, fmt.Errorf("journal entry %d (%s): %w", entry.Seq, entry.Action, err)
		}
		n++
	}
}
