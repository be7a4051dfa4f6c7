package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/voicelay/voicelay/internal/chunkstore"
)

// Reaper periodically sweeps expired replies and abandoned chunks. Ticks
// run at a fixed period with no catch-up; a missed tick is simply absorbed
// by the next one.
type Reaper struct {
	cache    *Cache
	chunks   *chunkstore.Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	// Swept, when non-nil, receives the per-tick removal count. Used by
	// tests and the metrics layer.
	Swept func(replies, chunks int)
}

// NewReaper returns a Reaper sweeping both stores every interval, removing
// files older than maxAge.
func NewReaper(c *Cache, chunks *chunkstore.Store, interval, maxAge time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		cache:    c,
		chunks:   chunks,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick. It always
// returns ctx.Err().
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "max_age", r.maxAge)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return ctx.Err()
		case now := <-ticker.C:
			r.tick(now)
		}
	}
}

func (r *Reaper) tick(now time.Time) {
	replies := r.cache.Sweep(now, r.maxAge)
	staged := r.chunks.Sweep(now, r.maxAge)
	if replies > 0 || staged > 0 {
		r.logger.Info("swept expired files", "replies", replies, "chunks", staged)
	}
	if r.Swept != nil {
		r.Swept(replies, staged)
	}
}
