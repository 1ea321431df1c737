// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/ytget/yt-web-downloader/internal/config"
	"github.com/ytget/yt-web-downloader/internal/metrics"
	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/progress"
)

// Route names used for rate limiting and metrics labels
const (
	RouteInfo     = "info"
	RouteDownload = "download"
	RouteProgress = "progress"
	RouteFile     = "download_file"
)

// Server timeouts. Writes are unbounded because artifacts can be large.
const (
	readHeaderTimeout      = 10 * time.Second
	idleTimeout            = 120 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// Orchestrator is the set of operations the HTTP layer calls into
type Orchestrator interface {
	Inspect(ctx context.Context, rawURL string) (model.Summary, error)
	StartDownload(ctx context.Context, id, format, subtitleLang string) error
	Poll(id string) (progress.Report, error)
	FetchFile(id string) (model.Artifact, error)
}

// Config holds HTTP server settings
type Config struct {
	Addr            string
	StaticDir       string
	RateLimits      config.RateLimits
	TrustedProxies  []netip.Prefix
	ShutdownTimeout time.Duration
}

// Server routes client requests to the orchestrator
type Server struct {
	cfg     Config
	orch    Orchestrator
	router  chi.Router
	server  *http.Server
	limiter *rateLimiter
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the access and error logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With().Str("component", "http").Logger()
	}
}

// WithMetrics enables request metrics and the /metrics endpoint
func WithMetrics(mc *metrics.Collector) Option {
	return func(s *Server) { s.metrics = mc }
}

// New creates a server with its routes mounted
func New(orch Orchestrator, cfg Config, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		orch:    orch,
		limiter: newRateLimiter(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRouter()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.realIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(s.loggingMiddleware)

	limits := s.cfg.RateLimits
	r.With(s.rateLimit(RouteInfo, limits.Info)).Post("/info", s.handleInfo)
	r.With(s.rateLimit(RouteDownload, limits.Download)).Post("/download", s.handleDownload)
	r.With(s.rateLimit(RouteProgress, limits.Progress)).Get("/progress/{session_id}", s.handleProgress)
	r.With(s.rateLimit(RouteFile, limits.File)).Get("/download_file/{session_id}", s.handleDownloadFile)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.GetHandler())
	}
	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	s.router = r
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests within the shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
