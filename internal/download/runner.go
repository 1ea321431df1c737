package download

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ytget/yt-web-downloader/internal/metrics"
	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/platform"
	"github.com/ytget/yt-web-downloader/internal/session"
	"github.com/ytget/yt-web-downloader/internal/tracing"
)

// Parallelism limits
const (
	DefaultMaxParallel = 2
	MinParallel        = 1
	MaxParallel        = 10
)

// errStaleJob rejects writes from a job that no longer owns its session
var errStaleJob = errors.New("job superseded")

// RunnerConfig holds the job runner settings
type RunnerConfig struct {
	DownloadDir    string
	OutputTemplate string
	MaxParallel    int
}

// Runner executes download jobs in the background, one per session at a time.
// Jobs report back exclusively through the session store.
type Runner struct {
	store   *session.Store
	fetcher Fetcher
	scanner Scanner
	cfg     RunnerConfig

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger  zerolog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner logger
func WithRunnerLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger.With().Str("component", "runner").Logger()
	}
}

// WithRunnerMetrics attaches a metrics collector
func WithRunnerMetrics(mc *metrics.Collector) RunnerOption {
	return func(r *Runner) { r.metrics = mc }
}

// WithRunnerTracer sets the tracer used for job spans
func WithRunnerTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRunner creates a job runner
func NewRunner(store *session.Store, fetcher Fetcher, scanner Scanner, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	cfg.MaxParallel = ClampParallel(cfg.MaxParallel)
	if cfg.OutputTemplate == "" {
		cfg.OutputTemplate = model.DefaultOutputTemplate
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:   store,
		fetcher: fetcher,
		scanner: scanner,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxParallel),
		ctx:     ctx,
		cancel:  cancel,
		logger:  zerolog.Nop(),
		tracer:  noop.NewTracerProvider().Tracer("noop"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ClampParallel bounds a parallelism setting to the supported range
func ClampParallel(n int) int {
	if n < MinParallel {
		return DefaultMaxParallel
	}
	if n > MaxParallel {
		return MaxParallel
	}
	return n
}

// Start flips the session into downloading and schedules the job. It fails
// with model.ErrNotFound for unknown sessions and model.ErrInvalidState when
// a job is already running. Never blocks on the job itself.
func (r *Runner) Start(id string, req model.DownloadRequest) (model.Session, error) {
	if r.ctx.Err() != nil {
		return model.Session{}, fmt.Errorf("%w: runner is shut down", model.ErrInvalidState)
	}

	sess, err := r.store.Mutate(id, func(s *model.Session) error {
		if s.Status.IsActive() {
			return fmt.Errorf("%w: already downloading", model.ErrInvalidState)
		}
		if !s.Status.CanStart() {
			return fmt.Errorf("%w: cannot start from %s", model.ErrInvalidState, s.Status)
		}
		s.Status = model.StatusDownloading
		s.Progress = model.Progress{ETASec: -1}
		s.ArtifactPath = ""
		s.Request = req
		s.Attempt++
		return nil
	})
	if err != nil {
		return sess, err
	}

	r.wg.Add(1)
	go r.run(sess.ID, sess.Attempt, req)

	return sess, nil
}

// Wait blocks until every scheduled job has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels running jobs and waits for them to exit
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

// run executes one job and records its terminal outcome
func (r *Runner) run(id string, attempt int, req model.DownloadRequest) {
	defer r.wg.Done()

	started := r.now()
	log := r.logger.With().Str("session_id", id).Int("attempt", attempt).Logger()

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "download.job", trace.WithAttributes(
		tracing.AttrSessionID.String(id),
		tracing.AttrAttempt.Int(attempt),
		tracing.AttrFormat.String(req.Format),
	))
	defer span.End()

	result := metrics.ResultError
	var size int64
	r.metrics.DownloadStarted()
	defer func() {
		r.metrics.DownloadFinished(result, r.now().Sub(started), size)
	}()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Download job panicked")
			span.SetStatus(codes.Error, "panic")
			result = metrics.ResultError
			r.fail(id, attempt, fmt.Errorf("%w: internal error: %v", model.ErrDownload, p))
		}
	}()

	if err := r.acquire(ctx); err != nil {
		r.fail(id, attempt, fmt.Errorf("%w: %v", model.ErrDownload, err))
		return
	}
	defer r.release()

	log.Info().Str("format", req.Format).Str("subtitle_lang", req.SubtitleLang).Msg("Download job started")

	path, artifactSize, err := r.execute(ctx, cancel, id, attempt, req)
	if err != nil {
		if errors.Is(err, model.ErrUnsafeArtifact) {
			result = metrics.ResultInfected
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Dur("duration", r.now().Sub(started)).Msg("Download job failed")
		r.fail(id, attempt, err)
		return
	}

	if err := r.complete(id, attempt, path, artifactSize); err != nil {
		log.Warn().Err(err).Msg("Discarding job result")
		if errors.Is(err, model.ErrNotFound) {
			// session reclaimed while the job ran
			_ = platform.RemoveDirectory(platform.SessionDir(r.cfg.DownloadDir, id))
		}
		return
	}

	result = metrics.ResultSuccess
	size = artifactSize
	span.SetStatus(codes.Ok, "")
	log.Info().Str("artifact", path).Int64("size", artifactSize).Dur("duration", r.now().Sub(started)).Msg("Download job completed")
}

// execute prepares the session directory, runs the fetcher and scans the result
func (r *Runner) execute(ctx context.Context, cancel context.CancelFunc, id string, attempt int, req model.DownloadRequest) (string, int64, error) {
	sess, err := r.store.Get(id)
	if err != nil {
		return "", 0, err
	}
	sourceURL := sess.SourceURL()
	if sourceURL == "" {
		return "", 0, fmt.Errorf("%w: session has no source URL", model.ErrDownload)
	}

	dir, err := platform.EnsureSessionDir(r.cfg.DownloadDir, id)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", model.ErrDownload, err)
	}
	if err := platform.PurgeDirectory(dir); err != nil {
		return "", 0, fmt.Errorf("%w: failed to clear previous files: %v", model.ErrDownload, err)
	}

	tracker := &progressTracker{}
	onProgress := func(u model.TransferUpdate) {
		err := r.report(id, attempt, tracker.apply(u))
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, errStaleJob) {
			cancel()
		}
	}

	path, err := r.fetcher.Fetch(ctx, model.FetchRequest{
		URL:            sourceURL,
		Format:         req.Format,
		SubtitleLang:   req.SubtitleLang,
		OutputDir:      dir,
		OutputTemplate: r.cfg.OutputTemplate,
	}, onProgress)
	if err != nil {
		if !errors.Is(err, model.ErrDownload) {
			err = fmt.Errorf("%w: %v", model.ErrDownload, err)
		}
		return "", 0, err
	}

	size, err := platform.RegularFileSize(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: artifact not on disk: %v", model.ErrDownload, err)
	}

	if err := r.scan(ctx, path); err != nil {
		if rmErr := platform.RemoveFile(path); rmErr != nil {
			r.logger.Error().Err(rmErr).Str("session_id", id).Str("path", path).Msg("Failed to remove rejected artifact")
		}
		return "", 0, err
	}

	return path, size, nil
}

// scan fails closed: a scanner error rejects the artifact like an infection
func (r *Runner) scan(ctx context.Context, path string) error {
	clean, err := r.scanner.Scan(ctx, path)
	if err != nil {
		r.metrics.RecordScan(metrics.ResultError)
		return fmt.Errorf("%w: scan failed: %v", model.ErrUnsafeArtifact, err)
	}
	if !clean {
		r.metrics.RecordScan(metrics.ResultInfected)
		return model.ErrUnsafeArtifact
	}
	r.metrics.RecordScan(metrics.ResultSuccess)
	return nil
}

func (r *Runner) acquire(ctx context.Context) error {
	select {
	case r.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	<-r.slots
}

// ownedBy reports whether attempt is still the live job of the session
func ownedBy(s *model.Session, attempt int) error {
	if s.Attempt != attempt || !s.Status.IsActive() {
		return errStaleJob
	}
	return nil
}

// report stores an in-flight progress snapshot
func (r *Runner) report(id string, attempt int, p model.Progress) error {
	_, err := r.store.Mutate(id, func(s *model.Session) error {
		if err := ownedBy(s, attempt); err != nil {
			return err
		}
		if p.DownloadedBytes < s.Progress.DownloadedBytes {
			p.DownloadedBytes = s.Progress.DownloadedBytes
		}
		s.Progress = p
		return nil
	})
	return err
}

// complete moves the session to completed with its artifact
func (r *Runner) complete(id string, attempt int, path string, size int64) error {
	_, err := r.store.Mutate(id, func(s *model.Session) error {
		if err := ownedBy(s, attempt); err != nil {
			return err
		}
		s.Status = model.StatusCompleted
		s.ArtifactPath = path
		s.Progress.Finished = true
		s.Progress.ETASec = 0
		s.Progress.Error = ""
		if size > s.Progress.DownloadedBytes {
			s.Progress.DownloadedBytes = size
		}
		if s.Progress.TotalBytes < s.Progress.DownloadedBytes {
			s.Progress.TotalBytes = s.Progress.DownloadedBytes
		}
		return nil
	})
	return err
}

// fail moves the session to error, keeping the transferred byte count
func (r *Runner) fail(id string, attempt int, cause error) {
	_, err := r.store.Mutate(id, func(s *model.Session) error {
		if err := ownedBy(s, attempt); err != nil {
			return err
		}
		s.Status = model.StatusError
		s.ArtifactPath = ""
		s.Progress.Finished = false
		s.Progress.ETASec = -1
		s.Progress.Error = errorMessage(cause)
		return nil
	})
	if err != nil && !errors.Is(err, errStaleJob) && !errors.Is(err, model.ErrNotFound) {
		r.logger.Error().Err(err).Str("session_id", id).Msg("Failed to record job failure")
	}
}

// errorMessage renders the client-facing reason for a failed job
func errorMessage(err error) string {
	if errors.Is(err, model.ErrUnsafeArtifact) {
		return "Virus detected. Download aborted."
	}
	return err.Error()
}

// progressTracker turns per-stream engine counters into a single
// non-decreasing byte count for the whole job. A counter drop right after a
// finished stream, or with a different total, starts the next stream; any
// other drop is clamped.
type progressTracker struct {
	mu           sync.Mutex
	base         int64
	lastRaw      int64
	lastTotal    int64
	lastFinished bool
	reported     int64
}

func (t *progressTracker) apply(u model.TransferUpdate) model.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u.DownloadedBytes < t.lastRaw && (t.lastFinished || u.TotalBytes != t.lastTotal) {
		done := t.lastRaw
		if t.lastTotal > done {
			done = t.lastTotal
		}
		t.base += done
		t.lastRaw = u.DownloadedBytes
	} else if u.DownloadedBytes > t.lastRaw {
		t.lastRaw = u.DownloadedBytes
	}
	t.lastTotal = u.TotalBytes
	t.lastFinished = u.Finished

	downloaded := t.base + u.DownloadedBytes
	if downloaded < t.reported {
		downloaded = t.reported
	}
	t.reported = downloaded

	var total int64
	if u.TotalBytes > 0 {
		total = t.base + u.TotalBytes
		if total < downloaded {
			total = downloaded
		}
	}

	eta := -1
	if u.ETA > 0 {
		eta = int(u.ETA.Seconds())
	}

	return model.Progress{
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		Speed:           u.Speed,
		ETASec:          eta,
	}
}
