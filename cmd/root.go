package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ytget/yt-web-downloader/internal/config"
	"github.com/ytget/yt-web-downloader/internal/download"
	"github.com/ytget/yt-web-downloader/internal/janitor"
	"github.com/ytget/yt-web-downloader/internal/logger"
	"github.com/ytget/yt-web-downloader/internal/metrics"
	"github.com/ytget/yt-web-downloader/internal/platform"
	"github.com/ytget/yt-web-downloader/internal/server"
	"github.com/ytget/yt-web-downloader/internal/session"
	"github.com/ytget/yt-web-downloader/internal/tracing"
)

var (
	version = "dev"
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "yt-web-downloader",
	Short:         "Web service for downloading online media with yt-dlp",
	Long:          `Inspects media URLs, runs yt-dlp downloads in the background, scans the results with ClamAV and serves them over HTTP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./ytwd.yaml)")
	rootCmd.Flags().StringP("listen", "l", "",
		"address to listen on (default :8000)")
	rootCmd.Flags().StringP("download-dir", "d", "",
		"directory for session downloads")
	rootCmd.Flags().Int("max-parallel", 0,
		"maximum concurrent downloads (1-10)")
	rootCmd.Flags().Bool("no-scan", false,
		"disable ClamAV scanning of downloaded files")

	_ = v.BindPFlag(config.KeyListenAddr, rootCmd.Flags().Lookup("listen"))
	_ = v.BindPFlag(config.KeyDownloadDir, rootCmd.Flags().Lookup("download-dir"))
	_ = v.BindPFlag(config.KeyMaxParallel, rootCmd.Flags().Lookup("max-parallel"))
}

func runServer(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if noScan, _ := cmd.Flags().GetBool("no-scan"); noScan {
		settings.ScanEnabled = false
	}

	log, err := logger.New(settings.Log.Level, settings.Log.Format, nil)
	if err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}
	log.Info().Str("version", version).Msg("Starting yt-web-downloader")
	if used := v.ConfigFileUsed(); used != "" {
		log.Info().Str("config", used).Msg("Loaded config file")
	}

	if err := platform.CreateDirectoryIfNotExists(settings.DownloadDir); err != nil {
		return fmt.Errorf("preparing download directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(settings.Tracing)
	if err != nil {
		return fmt.Errorf("configuring tracing: %w", err)
	}
	if tp.Enabled() {
		log.Info().Str("exporter", settings.Tracing.Exporter).Msg("Tracing enabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	mc := metrics.NewCollector(log, metrics.DefaultNamespace)
	store := session.NewStore()

	engine := platform.NewEngine(
		platform.WithExecutable(settings.YtdlpPath),
		platform.WithEngineLogger(log.With().Str("component", "ytdlp").Logger()),
	)

	runner := download.NewRunner(store, engine, newScanner(settings, log), download.RunnerConfig{
		DownloadDir:    settings.DownloadDir,
		OutputTemplate: settings.FilenameTemplate,
		MaxParallel:    settings.MaxParallelDownloads,
	},
		download.WithRunnerLogger(log),
		download.WithRunnerMetrics(mc),
		download.WithRunnerTracer(tp.Tracer()),
	)
	defer runner.Close()

	svc := download.NewService(store, runner, engine, download.ServiceConfig{
		DefaultFormat:  settings.DefaultFormat,
		InspectTimeout: settings.InspectTimeout,
	},
		download.WithPlaylistLister(platform.NewPlaylistLister(settings.InspectTimeout, 0)),
		download.WithServiceLogger(log),
		download.WithServiceMetrics(mc),
		download.WithServiceTracer(tp.Tracer()),
	)

	jan := janitor.New(store, janitor.Config{
		DownloadDir: settings.DownloadDir,
		Retention:   settings.Retention,
		Interval:    settings.CleanupInterval,
	},
		janitor.WithLogger(log),
		janitor.WithMetrics(mc),
	)
	go jan.Run(ctx)

	trusted, err := config.ParseTrustedProxies(settings.TrustedProxies)
	if err != nil {
		return err
	}

	srv := server.New(svc, server.Config{
		Addr:            settings.ListenAddr,
		StaticDir:       settings.StaticDir,
		RateLimits:      settings.RateLimits,
		TrustedProxies:  trusted,
		ShutdownTimeout: settings.ShutdownTimeout,
	},
		server.WithLogger(log),
		server.WithMetrics(mc),
	)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serving HTTP: %w", err)
	}
	log.Info().Msg("Stopped")
	return nil
}

func newScanner(settings config.Settings, log zerolog.Logger) download.Scanner {
	if !settings.ScanEnabled {
		log.Warn().Msg("Virus scanning disabled; artifacts are served unscanned")
		return platform.AllowAllScanner{}
	}
	return platform.NewClamScanner(settings.ClamscanPath)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(ver string) {
	version = ver
	rootCmd.Version = ver
}
