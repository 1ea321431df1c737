// Package janitor periodically reclaims expired sessions and their files.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytget/yt-web-downloader/internal/metrics"
	"github.com/ytget/yt-web-downloader/internal/platform"
	"github.com/ytget/yt-web-downloader/internal/session"
)

// Defaults
const (
	DefaultRetention = 60 * time.Minute
	DefaultInterval  = 30 * time.Minute
)

// Cleanup kinds reported to metrics
const (
	KindExpired = "expired"
	KindOrphan  = "orphan"
)

// Config holds janitor settings
type Config struct {
	DownloadDir string
	Retention   time.Duration
	Interval    time.Duration
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Removed int
	Orphans int
	Errors  int
}

// Janitor removes sessions older than the retention window. Expiry is based
// on creation time so a running job is never judged by its last update.
type Janitor struct {
	store   *session.Store
	cfg     Config
	mu      sync.Mutex
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// Option configures a Janitor
type Option func(*Janitor)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// WithLogger sets the janitor logger
func WithLogger(logger zerolog.Logger) Option {
	return func(j *Janitor) {
		j.logger = logger.With().Str("component", "janitor").Logger()
	}
}

// WithMetrics attaches a metrics collector
func WithMetrics(mc *metrics.Collector) Option {
	return func(j *Janitor) { j.metrics = mc }
}

// New creates a janitor
func New(store *session.Store, cfg Config, opts ...Option) *Janitor {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	j := &Janitor{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps on every tick until ctx is cancelled
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.logger.Info().
		Dur("interval", j.cfg.Interval).
		Dur("retention", j.cfg.Retention).
		Msg("Cleanup routine started")

	for {
		select {
		case <-ctx.Done():
			j.logger.Debug().Msg("Cleanup routine stopped")
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep performs one cleanup pass. Concurrent callers are serialized.
func (j *Janitor) Sweep() SweepResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	var res SweepResult

	for _, id := range j.store.ListIDs() {
		sess, err := j.store.Get(id)
		if err != nil {
			continue
		}
		if sess.Age(now) <= j.cfg.Retention {
			continue
		}

		dir := platform.SessionDir(j.cfg.DownloadDir, id)
		if err := platform.RemoveDirectory(dir); err != nil {
			res.Errors++
			j.logger.Warn().Err(err).Str("session_id", id).Str("dir", dir).Msg("Failed to delete session directory")
		}
		if j.store.Remove(id) {
			res.Removed++
			j.logger.Debug().Str("session_id", id).Str("status", sess.Status.String()).Msg("Deleted expired session")
		}
	}

	res.Orphans, res.Errors = j.sweepOrphans(now, res.Errors)

	j.metrics.RecordCleanup(KindExpired, res.Removed)
	j.metrics.RecordCleanup(KindOrphan, res.Orphans)
	j.metrics.SetLiveSessions(j.store.Len())

	j.logger.Info().
		Int("expired_count", res.Removed).
		Int("orphan_count", res.Orphans).
		Int("error_count", res.Errors).
		Msg("Cleanup completed")

	return res
}

// sweepOrphans removes stale directories that belong to no live session,
// such as leftovers from a previous process.
func (j *Janitor) sweepOrphans(now time.Time, errCount int) (int, int) {
	dirs, err := platform.ListSessionDirs(j.cfg.DownloadDir)
	if err != nil {
		j.logger.Warn().Err(err).Str("dir", j.cfg.DownloadDir).Msg("Failed to list download directory")
		return 0, errCount + 1
	}

	removed := 0
	for _, d := range dirs {
		if now.Sub(d.ModTime) <= j.cfg.Retention {
			continue
		}
		if _, err := j.store.Get(d.Name); err == nil {
			continue
		}
		if err := platform.RemoveDirectory(d.Path); err != nil {
			errCount++
			j.logger.Warn().Err(err).Str("dir", d.Path).Msg("Failed to delete orphan directory")
			continue
		}
		removed++
	}
	return removed, errCount
}
