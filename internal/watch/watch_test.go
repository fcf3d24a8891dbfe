package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReportsWatchedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.ksp")
	other := filepath.Join(dir, "other.ksp")
	if err := os.WriteFile(target, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(10*time.Millisecond, target)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	// Replace the target the way an atomic save does.
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatal(err)
	}

	want, _ := filepath.Abs(target)
	select {
	case got := <-w.Events:
		if got != want {
			t.Errorf("Expected event for %s, got %s", want, got)
		}
	case err := <-w.Errors:
		t.Fatalf("Unexpected watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestWatcher_CloseClosesChannels(t *testing.T) {
	w, err := NewWatcher(0, filepath.Join(t.TempDir(), "missing.ksp"))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-w.Events; ok {
		t.Error("Expected Events to be closed")
	}
	// Close is idempotent.
	if err := w.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	if _, err := NewWatcher(0, filepath.Join(t.TempDir(), "no", "such", "file")); err == nil {
		t.Error("Expected error for a missing directory")
	}
}
