package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/tracing"
)

// EnvPrefix is prepended to environment overrides, e.g. YTWD_LISTEN_ADDR
const EnvPrefix = "YTWD"

// Settings keys
const (
	KeyListenAddr        = "listen_addr"
	KeyDownloadDir       = "download_dir"
	KeyRetention         = "retention"
	KeyCleanupInterval   = "cleanup_interval"
	KeyMaxParallel       = "max_parallel_downloads"
	KeyDefaultFormat     = "default_format"
	KeyFilenameTemplate  = "filename_template"
	KeyYtdlpPath         = "ytdlp_path"
	KeyClamscanPath      = "clamscan_path"
	KeyScanEnabled       = "scan_enabled"
	KeyInspectTimeout    = "inspect_timeout"
	KeyShutdownTimeout   = "shutdown_timeout"
	KeyStaticDir         = "static_dir"
	KeyTrustedProxies    = "trusted_proxies"
	KeyRateLimitInfo     = "rate_limits.info"
	KeyRateLimitDownload = "rate_limits.download"
	KeyRateLimitProgress = "rate_limits.progress"
	KeyRateLimitFile     = "rate_limits.file"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyTracingEnabled    = "tracing.enabled"
	KeyTracingExporter   = "tracing.exporter"
	KeyTracingEndpoint   = "tracing.otlp_endpoint"
	KeyTracingSampleRate = "tracing.sample_rate"
	KeyTracingService    = "tracing.service_name"
)

// Default values
const (
	DefaultListenAddr       = ":8000"
	DefaultDownloadDir      = "downloads"
	DefaultRetention        = 60 * time.Minute
	DefaultCleanupInterval  = 30 * time.Minute
	DefaultMaxParallel      = 2
	DefaultFilenameTemplate = "%(title)s.%(ext)s"
	DefaultClamscanPath     = "clamscan"
	DefaultScanEnabled      = true
	DefaultInspectTimeout   = 60 * time.Second
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
)

// Per-client request limits, in requests per minute
const (
	DefaultRateLimitInfo     = 10
	DefaultRateLimitDownload = 5
	DefaultRateLimitProgress = 20
	DefaultRateLimitFile     = 10
)

// Parallelism bounds
const (
	MinParallel = 1
	MaxParallel = 10
)

// RateLimits holds per-endpoint limits in requests per minute
type RateLimits struct {
	Info     int `mapstructure:"info"`
	Download int `mapstructure:"download"`
	Progress int `mapstructure:"progress"`
	File     int `mapstructure:"file"`
}

// LogSettings configures the logger
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Settings is the complete service configuration
type Settings struct {
	ListenAddr           string         `mapstructure:"listen_addr"`
	DownloadDir          string         `mapstructure:"download_dir"`
	Retention            time.Duration  `mapstructure:"retention"`
	CleanupInterval      time.Duration  `mapstructure:"cleanup_interval"`
	MaxParallelDownloads int            `mapstructure:"max_parallel_downloads"`
	DefaultFormat        string         `mapstructure:"default_format"`
	FilenameTemplate     string         `mapstructure:"filename_template"`
	YtdlpPath            string         `mapstructure:"ytdlp_path"`
	ClamscanPath         string         `mapstructure:"clamscan_path"`
	ScanEnabled          bool           `mapstructure:"scan_enabled"`
	InspectTimeout       time.Duration  `mapstructure:"inspect_timeout"`
	ShutdownTimeout      time.Duration  `mapstructure:"shutdown_timeout"`
	StaticDir            string         `mapstructure:"static_dir"`
	TrustedProxies       []string       `mapstructure:"trusted_proxies"`
	RateLimits           RateLimits     `mapstructure:"rate_limits"`
	Log                  LogSettings    `mapstructure:"log"`
	Tracing              tracing.Config `mapstructure:"tracing"`
}

// Defaults returns the built-in configuration
func Defaults() Settings {
	return Settings{
		ListenAddr:           DefaultListenAddr,
		DownloadDir:          DefaultDownloadDir,
		Retention:            DefaultRetention,
		CleanupInterval:      DefaultCleanupInterval,
		MaxParallelDownloads: DefaultMaxParallel,
		DefaultFormat:        model.DefaultFormatSelector,
		FilenameTemplate:     DefaultFilenameTemplate,
		ClamscanPath:         DefaultClamscanPath,
		ScanEnabled:          DefaultScanEnabled,
		InspectTimeout:       DefaultInspectTimeout,
		ShutdownTimeout:      DefaultShutdownTimeout,
		RateLimits: RateLimits{
			Info:     DefaultRateLimitInfo,
			Download: DefaultRateLimitDownload,
			Progress: DefaultRateLimitProgress,
			File:     DefaultRateLimitFile,
		},
		Log: LogSettings{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// SetDefaults registers every key with its default on v
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault(KeyListenAddr, d.ListenAddr)
	v.SetDefault(KeyDownloadDir, d.DownloadDir)
	v.SetDefault(KeyRetention, d.Retention)
	v.SetDefault(KeyCleanupInterval, d.CleanupInterval)
	v.SetDefault(KeyMaxParallel, d.MaxParallelDownloads)
	v.SetDefault(KeyDefaultFormat, d.DefaultFormat)
	v.SetDefault(KeyFilenameTemplate, d.FilenameTemplate)
	v.SetDefault(KeyYtdlpPath, d.YtdlpPath)
	v.SetDefault(KeyClamscanPath, d.ClamscanPath)
	v.SetDefault(KeyScanEnabled, d.ScanEnabled)
	v.SetDefault(KeyInspectTimeout, d.InspectTimeout)
	v.SetDefault(KeyShutdownTimeout, d.ShutdownTimeout)
	v.SetDefault(KeyStaticDir, d.StaticDir)
	v.SetDefault(KeyTrustedProxies, []string{})
	v.SetDefault(KeyRateLimitInfo, d.RateLimits.Info)
	v.SetDefault(KeyRateLimitDownload, d.RateLimits.Download)
	v.SetDefault(KeyRateLimitProgress, d.RateLimits.Progress)
	v.SetDefault(KeyRateLimitFile, d.RateLimits.File)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
	v.SetDefault(KeyTracingEnabled, d.Tracing.Enabled)
	v.SetDefault(KeyTracingExporter, d.Tracing.Exporter)
	v.SetDefault(KeyTracingEndpoint, d.Tracing.OTLPEndpoint)
	v.SetDefault(KeyTracingSampleRate, d.Tracing.SampleRate)
	v.SetDefault(KeyTracingService, d.Tracing.ServiceName)
}

// Load reads defaults, the optional config file and YTWD_* environment
// overrides into Settings. With an empty cfgFile, ./ytwd.yaml is used when
// present.
func Load(v *viper.Viper, cfgFile string) (Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("ytwd")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding config: %w", err)
	}

	s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Normalize fills empty values and clamps ranges
func (s *Settings) Normalize() {
	if s.MaxParallelDownloads < MinParallel {
		s.MaxParallelDownloads = MinParallel
	}
	if s.MaxParallelDownloads > MaxParallel {
		s.MaxParallelDownloads = MaxParallel
	}
	if strings.TrimSpace(s.DefaultFormat) == "" {
		s.DefaultFormat = model.DefaultFormatSelector
	}
	if strings.TrimSpace(s.FilenameTemplate) == "" {
		s.FilenameTemplate = DefaultFilenameTemplate
	}
	if s.ClamscanPath == "" {
		s.ClamscanPath = DefaultClamscanPath
	}
	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
}

// Validate reports settings that cannot be used
func (s Settings) Validate() error {
	var errs []error

	if s.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if s.DownloadDir == "" {
		errs = append(errs, errors.New("download_dir is required"))
	}
	if s.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if s.CleanupInterval <= 0 {
		errs = append(errs, errors.New("cleanup_interval must be positive"))
	}
	if s.InspectTimeout <= 0 {
		errs = append(errs, errors.New("inspect_timeout must be positive"))
	}
	if strings.ContainsAny(s.FilenameTemplate, `/\`) {
		errs = append(errs, errors.New("filename_template must not contain path separators"))
	}

	limits := map[string]int{
		KeyRateLimitInfo:     s.RateLimits.Info,
		KeyRateLimitDownload: s.RateLimits.Download,
		KeyRateLimitProgress: s.RateLimits.Progress,
		KeyRateLimitFile:     s.RateLimits.File,
	}
	for key, limit := range limits {
		if limit < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", key))
		}
	}

	if _, err := ParseTrustedProxies(s.TrustedProxies); err != nil {
		errs = append(errs, err)
	}

	switch s.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", s.Log.Format))
	}

	return errors.Join(errs...)
}

// ParseTrustedProxies converts IP addresses and CIDR ranges into prefixes.
// A bare address matches only itself.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid CIDR %q: %w", KeyTrustedProxies, entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid address %q: %w", KeyTrustedProxies, entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
