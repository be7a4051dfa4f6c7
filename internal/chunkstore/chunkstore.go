// Package chunkstore stages raw PCM chunks on disk between ingestion and
// utterance assembly.
//
// Each session gets its own subdirectory under the store root so concurrent
// speakers never interleave audio. Chunk file names embed a microsecond
// timestamp and a process-wide sequence number, so lexical order equals
// arrival order.
package chunkstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// ErrEmptyPayload is returned by Ingest when the chunk body has no bytes.
var ErrEmptyPayload = errors.New("chunkstore: empty payload")

const chunkExt = ".pcm"

// Ref identifies one staged chunk.
type Ref struct {
	// Session is the owning session id.
	Session string
	// Name is the chunk file name within the session directory.
	Name string
	// Path is the absolute or root-relative path to the chunk file.
	Path string
}

// Store stages chunks under a root directory, one subdirectory per session.
type Store struct {
	root string
	seq  atomic.Uint64
}

// New creates the root directory if needed and returns a Store over it.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("chunkstore: root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("chunkstore: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Ingest writes one chunk for the session and returns its Ref.
func (s *Store) Ingest(session string, payload []byte) (Ref, error) {
	if len(payload) == 0 {
		return Ref{}, ErrEmptyPayload
	}
	dir := s.sessionDir(session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Ref{}, fmt.Errorf("chunkstore: create session dir: %w", err)
	}

	name := fmt.Sprintf("chunk_%020d_%08d%s", time.Now().UnixMicro(), s.seq.Add(1), chunkExt)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return Ref{}, fmt.Errorf("chunkstore: write chunk: %w", err)
	}
	return Ref{Session: session, Name: name, Path: path}, nil
}

// ListOrdered returns the session's staged chunks in arrival order. A
// session with no staged chunks yields an empty slice and no error.
func (s *Store) ListOrdered(session string) ([]Ref, error) {
	dir := s.sessionDir(session)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("chunkstore: list session: %w", err)
	}

	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), chunkExt) {
			continue
		}
		refs = append(refs, Ref{
			Session: session,
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Clear removes all staged chunks for the session, best effort. It returns
// the number of files removed; individual delete failures are skipped.
func (s *Store) Clear(session string) int {
	refs, err := s.ListOrdered(session)
	if err != nil {
		return 0
	}
	removed := 0
	for _, r := range refs {
		if os.Remove(r.Path) == nil {
			removed++
		}
	}
	// The empty directory is harmless, but drop it so sessions do not
	// accumulate forever.
	_ = os.Remove(s.sessionDir(session))
	return removed
}

// Count returns the total number of staged chunks across all sessions.
func (s *Store) Count() int {
	total := 0
	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), chunkExt) {
			total++
		}
		return nil
	})
	return total
}

// Sweep removes chunks whose modification time is older than maxAge and
// prunes emptied session directories. Stale regular files at the root are
// removed too; transient utterance WAVs are staged there and a crash
// between staging and cleanup would otherwise leak them. It returns the
// number of files removed. maxAge <= 0 removes everything.
func (s *Store) Sweep(now time.Time, maxAge time.Duration) int {
	removed := 0
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if !e.IsDir() {
			info, err := e.Info()
			if err != nil {
				continue
			}
			if maxAge > 0 && now.Sub(info.ModTime()) <= maxAge {
				continue
			}
			if os.Remove(filepath.Join(s.root, e.Name())) == nil {
				removed++
			}
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		chunks, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, c := range chunks {
			if c.IsDir() || !strings.HasSuffix(c.Name(), chunkExt) {
				continue
			}
			info, err := c.Info()
			if err != nil {
				continue
			}
			if maxAge > 0 && now.Sub(info.ModTime()) <= maxAge {
				continue
			}
			if os.Remove(filepath.Join(dir, c.Name())) == nil {
				removed++
			}
		}
		_ = os.Remove(dir)
	}
	return removed
}

// sessionDir maps a session id onto a directory under the root. The id is
// filtered so client-supplied values cannot escape the root.
func (s *Store) sessionDir(session string) string {
	return filepath.Join(s.root, sanitizeSession(session))
}

// sanitizeSession reduces a session id to a safe directory name. Anything
// outside [A-Za-z0-9._-] becomes an underscore, and an empty or dot-only
// result falls back to "default".
func sanitizeSession(session string) string {
	var b strings.Builder
	for _, r := range session {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if strings.Trim(name, ".") == "" {
		return "default"
	}
	return name
}
