// Package cache manages the synthesized-reply files served back to clients.
//
// Replies are plain WAV files in one directory; the id doubles as the file
// name. Serving is optionally destructive: with serve-then-delete enabled a
// reply is removed right after its bytes leave the process, so the cache
// holds only replies nobody has collected yet.
package cache

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// ErrNotFound is returned when no reply file exists under the given name.
var ErrNotFound = errors.New("cache: response not found")

const (
	wavExt     = ".wav"
	tempPrefix = "temp_"
)

// Cache stores synthesized replies under one directory.
type Cache struct {
	dir             string
	serveThenDelete bool
	seq             atomic.Uint64
}

// New creates the cache directory if needed and returns a Cache over it.
func New(dir string, serveThenDelete bool) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	return &Cache{dir: dir, serveThenDelete: serveThenDelete}, nil
}

// Dir returns the cache directory. The synthesizer writes its output here.
func (c *Cache) Dir() string {
	return c.dir
}

// NextID returns a fresh reply id. The microsecond timestamp keeps ids
// sortable; the sequence counter keeps them unique within the process even
// when two pipelines finish in the same microsecond.
func (c *Cache) NextID() string {
	return fmt.Sprintf("response_%d_%04d", time.Now().UnixMicro(), c.seq.Add(1))
}

// SanitizeName filters a client-supplied reply name. It reports false for
// anything that is not a bare .wav file name, so path traversal never
// reaches the filesystem.
func SanitizeName(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) {
		return "", false
	}
	if !strings.HasSuffix(name, wavExt) {
		return "", false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
		default:
			return "", false
		}
	}
	if strings.Trim(strings.TrimSuffix(name, wavExt), ".") == "" {
		return "", false
	}
	return name, true
}

// Fetch returns the path of the named reply, or ErrNotFound.
func (c *Cache) Fetch(name string) (string, error) {
	clean, ok := SanitizeName(name)
	if !ok {
		return "", ErrNotFound
	}
	path := filepath.Join(c.dir, clean)
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// FetchLatest returns the name of the most recently modified reply, or
// ErrNotFound when the cache is empty. Staged intermediates are ignored.
func (c *Cache) FetchLatest() (string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", fmt.Errorf("cache: list dir: %w", err)
	}

	var (
		latest     string
		latestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isReply(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = e.Name()
			latestTime = info.ModTime()
		}
	}
	if latest == "" {
		return "", ErrNotFound
	}
	return latest, nil
}

// ServeFile streams the named reply to the client. With serve-then-delete
// enabled the file is unlinked after the transfer; the open handle keeps the
// bytes readable for the duration, so an in-flight read never truncates.
func (c *Cache) ServeFile(w http.ResponseWriter, r *http.Request, name string) error {
	path, err := c.Fetch(name)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrNotFound
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cache: stat reply: %w", err)
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, name, info.ModTime(), f)

	if c.serveThenDelete {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("cache: delete served reply: %w", err)
		}
	}
	return nil
}

// Count returns the number of cached reply files, intermediates included.
// Mirrors what /status reports for the cache directory.
func (c *Cache) Count() int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), wavExt) {
			n++
		}
	}
	return n
}

// Sweep removes reply files older than maxAge, best effort, and returns the
// number removed. maxAge <= 0 removes everything. Intermediates are swept
// too, so a crashed synthesis cannot leak disk forever.
func (c *Cache) Sweep(now time.Time, maxAge time.Duration) int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), wavExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if maxAge > 0 && now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if os.Remove(filepath.Join(c.dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}

// isReply reports whether name is a finished reply file.
func isReply(name string) bool {
	return strings.HasSuffix(name, wavExt) && !strings.HasPrefix(name, tempPrefix)
}
