package chunkstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIngestAndListOrdered(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	payloads := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	for _, p := range payloads {
		if _, err := store.Ingest("sess-a", p); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	refs, err := store.ListOrdered("sess-a")
	if err != nil {
		t.Fatalf("ListOrdered() error = %v", err)
	}
	if len(refs) != len(payloads) {
		t.Fatalf("ListOrdered() returned %d refs, want %d", len(refs), len(payloads))
	}
	for i, r := range refs {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			t.Fatalf("reading chunk %d: %v", i, err)
		}
		if string(data) != string(payloads[i]) {
			t.Errorf("chunk %d = %v, want %v", i, data, payloads[i])
		}
	}
}

func TestIngestEmptyPayload(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Ingest("sess", nil); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Ingest(nil) error = %v, want ErrEmptyPayload", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Ingest("alice", []byte{1}); err != nil {
		t.Fatalf("Ingest(alice) error = %v", err)
	}
	if _, err := store.Ingest("bob", []byte{2}); err != nil {
		t.Fatalf("Ingest(bob) error = %v", err)
	}

	refs, err := store.ListOrdered("alice")
	if err != nil {
		t.Fatalf("ListOrdered(alice) error = %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("alice has %d chunks, want 1", len(refs))
	}
	if got := store.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}

	if removed := store.Clear("alice"); removed != 1 {
		t.Errorf("Clear(alice) removed %d, want 1", removed)
	}
	refs, err = store.ListOrdered("bob")
	if err != nil {
		t.Fatalf("ListOrdered(bob) error = %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("bob has %d chunks after clearing alice, want 1", len(refs))
	}
}

func TestListOrderedUnknownSession(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	refs, err := store.ListOrdered("never-seen")
	if err != nil {
		t.Fatalf("ListOrdered() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("ListOrdered() returned %d refs, want 0", len(refs))
	}
}

func TestSweepRemovesStaleChunks(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ref, err := store.Ingest("sess", []byte{1, 2})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(ref.Path, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
	fresh, err := store.Ingest("sess", []byte{3, 4})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if removed := store.Sweep(time.Now(), time.Hour); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Errorf("fresh chunk removed by sweep: %v", err)
	}
}

func TestSweepRemovesLeakedRootFiles(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// A crash mid-transcription leaves the staged utterance WAV at the
	// root. The sweep must pick it up once it goes stale.
	leaked := filepath.Join(store.Root(), "utterance_1234.wav")
	if err := os.WriteFile(leaked, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(leaked, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
	fresh := filepath.Join(store.Root(), "utterance_5678.wav")
	if err := os.WriteFile(fresh, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if removed := store.Sweep(time.Now(), time.Hour); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, err := os.Stat(leaked); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("stale utterance file still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("in-flight utterance file removed by sweep: %v", err)
	}
}

func TestSweepZeroAgeRemovesAll(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Ingest("sess", []byte{byte(i + 1)}); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}
	if removed := store.Sweep(time.Now(), 0); removed != 3 {
		t.Errorf("Sweep(0) removed %d, want 3", removed)
	}
	if got := store.Count(); got != 0 {
		t.Errorf("Count() after full sweep = %d, want 0", got)
	}
}

func TestSanitizeSession(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ref, err := store.Ingest("../../etc/passwd", []byte{1})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	rel, err := filepath.Rel(store.Root(), ref.Path)
	if err != nil {
		t.Fatalf("Rel() error = %v", err)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		t.Errorf("chunk escaped root: %s", ref.Path)
	}
}
