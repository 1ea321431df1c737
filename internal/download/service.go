package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ytget/yt-web-downloader/internal/metrics"
	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/platform"
	"github.com/ytget/yt-web-downloader/internal/progress"
	"github.com/ytget/yt-web-downloader/internal/session"
	"github.com/ytget/yt-web-downloader/internal/tracing"
)

// DefaultInspectTimeout bounds a single metadata lookup
const DefaultInspectTimeout = 60 * time.Second

// ServiceConfig holds orchestrator settings
type ServiceConfig struct {
	DefaultFormat  string
	InspectTimeout time.Duration
}

// Service coordinates the client-facing operations. It holds no reference to
// running jobs; results are observed through the session store only.
type Service struct {
	store     *session.Store
	runner    *Runner
	inspector Inspector
	reporter  *progress.Reporter
	playlists PlaylistLister
	cfg       ServiceConfig

	logger  zerolog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithPlaylistLister enables playlist expansion for URLs carrying a list id
func WithPlaylistLister(lister PlaylistLister) ServiceOption {
	return func(s *Service) { s.playlists = lister }
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "orchestrator").Logger()
	}
}

// WithServiceMetrics attaches a metrics collector
func WithServiceMetrics(mc *metrics.Collector) ServiceOption {
	return func(s *Service) { s.metrics = mc }
}

// WithServiceTracer sets the tracer used for inspection spans
func WithServiceTracer(tracer trace.Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService creates the orchestrator
func NewService(store *session.Store, runner *Runner, inspector Inspector, cfg ServiceConfig, opts ...ServiceOption) *Service {
	if strings.TrimSpace(cfg.DefaultFormat) == "" {
		cfg.DefaultFormat = model.DefaultFormatSelector
	}
	if cfg.InspectTimeout <= 0 {
		cfg.InspectTimeout = DefaultInspectTimeout
	}

	s := &Service{
		store:     store,
		runner:    runner,
		inspector: inspector,
		reporter:  progress.NewReporter(store),
		cfg:       cfg,
		logger:    zerolog.Nop(),
		tracer:    noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inspect resolves rawURL into metadata and creates a ready session for it.
// No session is stored when the lookup fails.
func (s *Service) Inspect(ctx context.Context, rawURL string) (model.Summary, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return model.Summary{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.InspectTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "download.inspect", trace.WithAttributes(
		tracing.AttrURL.String(target),
	))
	defer span.End()

	meta, err := s.inspector.Inspect(ctx, target)
	if err != nil {
		s.metrics.RecordInspection(metrics.ResultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn().Err(err).Str("url", target).Msg("Inspection failed")
		if !errors.Is(err, model.ErrInspection) {
			err = fmt.Errorf("%w: %v", model.ErrInspection, err)
		}
		return model.Summary{}, err
	}

	if meta.WebpageURL == "" {
		meta.WebpageURL = target
	}

	if s.playlists != nil && platform.IsPlaylistURL(target) {
		entries, err := s.playlists.ListPlaylist(ctx, target)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", target).Msg("Playlist listing failed, continuing with single item")
		} else {
			meta.Entries = entries
		}
	}

	id, err := s.store.Create(meta)
	if err != nil {
		s.metrics.RecordInspection(metrics.ResultError)
		return model.Summary{}, err
	}

	s.metrics.RecordInspection(metrics.ResultSuccess)
	s.metrics.RecordSessionCreated()
	s.metrics.SetLiveSessions(s.store.Len())
	span.SetAttributes(tracing.AttrSessionID.String(id))

	s.logger.Info().
		Str("session_id", id).
		Str("title", meta.DisplayTitle()).
		Int("formats", len(meta.Formats)).
		Int("playlist_entries", len(meta.Entries)).
		Msg("Session created")

	return model.NewSummary(id, meta), nil
}

// StartDownload schedules a job for the session and returns immediately
func (s *Service) StartDownload(ctx context.Context, id, format, subtitleLang string) error {
	format = strings.TrimSpace(format)
	if format == "" {
		format = s.cfg.DefaultFormat
	}

	_, span := s.tracer.Start(ctx, "download.start", trace.WithAttributes(
		tracing.AttrSessionID.String(id),
		tracing.AttrFormat.String(format),
	))
	defer span.End()

	sess, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if sess.SourceURL() == "" {
		return fmt.Errorf("%w: session has no source URL", model.ErrInvalidState)
	}
	subtitleLang = strings.TrimSpace(subtitleLang)
	if subtitleLang != "" && !sess.Metadata.HasSubtitle(subtitleLang) {
		return fmt.Errorf("%w: subtitles not available for %q", model.ErrInvalidRequest, subtitleLang)
	}

	if _, err := s.runner.Start(id, model.DownloadRequest{
		Format:       format,
		SubtitleLang: subtitleLang,
	}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.logger.Info().Str("session_id", id).Str("format", format).Msg("Download scheduled")
	return nil
}

// Poll returns the latest progress snapshot of a session
func (s *Service) Poll(id string) (progress.Report, error) {
	return s.reporter.Report(id)
}

// FetchFile returns the completed artifact of a session. It never returns a
// partial file and never deletes anything.
func (s *Service) FetchFile(id string) (model.Artifact, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return model.Artifact{}, err
	}
	if sess.Status != model.StatusCompleted || sess.ArtifactPath == "" {
		return model.Artifact{}, fmt.Errorf("%w: session is %s", model.ErrArtifactMissing, sess.Status)
	}

	size, err := platform.RegularFileSize(sess.ArtifactPath)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("%w: %v", model.ErrArtifactMissing, err)
	}
	return model.NewArtifact(sess.ArtifactPath, size), nil
}

// ValidateURL accepts absolute http(s) URLs with a host
func ValidateURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url is required", model.ErrInvalidRequest)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: malformed url: %v", model.ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", model.ErrInvalidRequest, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url has no host", model.ErrInvalidRequest)
	}
	return trimmed, nil
}
