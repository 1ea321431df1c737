package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"
	"github.com/ytget/yt-web-downloader/internal/model"
)

// Engine defaults
const (
	DefaultProgressInterval = 500 * time.Millisecond
	DefaultMaxRetries       = 1
	DefaultRetryBackoff     = 2 * time.Second
	SubtitleFormat          = "srt/best"
)

// Engine drives the yt-dlp binary through go-ytdlp for both metadata
// extraction and media transfer.
type Engine struct {
	executable       string
	progressInterval time.Duration
	maxRetries       int
	retryBackoff     time.Duration
	logger           zerolog.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithExecutable points the engine at a specific yt-dlp binary
func WithExecutable(path string) EngineOption {
	return func(e *Engine) { e.executable = path }
}

// WithProgressInterval sets how often progress updates are emitted
func WithProgressInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.progressInterval = d
		}
	}
}

// WithRetries sets the retry count and backoff for failed transfers
func WithRetries(maxRetries int, backoff time.Duration) EngineOption {
	return func(e *Engine) {
		if maxRetries >= 0 {
			e.maxRetries = maxRetries
		}
		e.retryBackoff = backoff
	}
}

// WithEngineLogger sets the engine logger
func WithEngineLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a yt-dlp backed engine
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		progressInterval: DefaultProgressInterval,
		maxRetries:       DefaultMaxRetries,
		retryBackoff:     DefaultRetryBackoff,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) command() *ytdlp.Command {
	dl := ytdlp.New()
	if e.executable != "" {
		dl = dl.SetExecutable(e.executable)
	}
	return dl
}

// Inspect extracts metadata for a single media item without downloading it
func (e *Engine) Inspect(ctx context.Context, url string) (model.Metadata, error) {
	dl := e.command().
		SkipDownload().
		NoPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("%w: %v", model.ErrInspection, err)
	}
	if result == nil || strings.TrimSpace(result.Stdout) == "" {
		return model.Metadata{}, fmt.Errorf("%w: empty extractor output", model.ErrInspection)
	}

	meta, err := ParseInfoJSON([]byte(result.Stdout))
	if err != nil {
		return model.Metadata{}, fmt.Errorf("%w: %v", model.ErrInspection, err)
	}
	return meta, nil
}

// Fetch downloads req.URL into req.OutputDir and returns the artifact path
func (e *Engine) Fetch(ctx context.Context, req model.FetchRequest, onProgress func(model.TransferUpdate)) (string, error) {
	tmpl := req.OutputTemplate
	if tmpl == "" {
		tmpl = model.DefaultOutputTemplate
	}
	format := req.Format
	if format == "" {
		format = model.DefaultFormatSelector
	}

	dl := e.command().
		RestrictFilenames().
		NoPlaylist().
		Continue().
		PrintJSON().
		Format(format).
		Output(filepath.Join(req.OutputDir, tmpl))

	if req.SubtitleLang != "" {
		dl = dl.WriteSubs().
			WriteAutoSubs().
			SubLangs(req.SubtitleLang).
			SubFormat(SubtitleFormat)
	}

	if onProgress != nil {
		dl.ProgressFunc(e.progressInterval, func(update ytdlp.ProgressUpdate) {
			onProgress(translateProgress(update))
		})
	}

	result, err := e.runWithRetry(ctx, dl, req.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrDownload, err)
	}

	hint := ""
	if result != nil {
		info, err := result.GetExtractedInfo()
		if err == nil && len(info) > 0 && info[0].Filename != nil {
			hint = *info[0].Filename
		}
	}

	path, err := FindArtifact(req.OutputDir, hint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrDownload, err)
	}
	return path, nil
}

// runWithRetry attempts the transfer with a fixed backoff between attempts
func (e *Engine) runWithRetry(ctx context.Context, dl *ytdlp.Command, url string) (*ytdlp.Result, error) {
	var lastErr error
	var result *ytdlp.Result

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.retryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			e.logger.Info().Str("url", url).Int("attempt", attempt+1).Msg("Retrying download")
		}

		res, err := dl.Run(ctx, url)
		if err == nil {
			return res, nil
		}

		lastErr = err
		result = res
		e.logger.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("Download attempt failed")

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	return result, lastErr
}

// translateProgress converts a go-ytdlp update into the engine-neutral form
func translateProgress(update ytdlp.ProgressUpdate) model.TransferUpdate {
	out := model.TransferUpdate{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		ETA:             update.ETA(),
		Finished:        update.Status == ytdlp.ProgressStatusFinished,
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			out.Speed = float64(update.DownloadedBytes) / elapsed.Seconds()
		}
	}
	return out
}

// infoJSON mirrors the subset of yt-dlp's info dict the service exposes
type infoJSON struct {
	Title             string                    `json:"title"`
	Thumbnail         string                    `json:"thumbnail"`
	Duration          float64                   `json:"duration"`
	Uploader          string                    `json:"uploader"`
	WebpageURL        string                    `json:"webpage_url"`
	OriginalURL       string                    `json:"original_url"`
	ExtractorKey      string                    `json:"extractor_key"`
	Extractor         string                    `json:"extractor"`
	Formats           []formatJSON              `json:"formats"`
	Subtitles         map[string][]subtitleJSON `json:"subtitles"`
	AutomaticCaptions map[string][]subtitleJSON `json:"automatic_captions"`
}

type formatJSON struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Resolution     string  `json:"resolution"`
	FormatNote     string  `json:"format_note"`
	Filesize       float64 `json:"filesize"`
	FilesizeApprox float64 `json:"filesize_approx"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	Protocol       string  `json:"protocol"`
}

type subtitleJSON struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ParseInfoJSON decodes a yt-dlp single-item JSON dump into Metadata.
// Uploaded subtitles take precedence over automatic captions of the same
// language.
func ParseInfoJSON(data []byte) (model.Metadata, error) {
	var raw infoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Metadata{}, fmt.Errorf("failed to decode extractor output: %w", err)
	}
	if raw.Title == "" && raw.WebpageURL == "" && len(raw.Formats) == 0 {
		return model.Metadata{}, errors.New("extractor output has no media information")
	}

	meta := model.Metadata{
		Title:      raw.Title,
		Thumbnail:  raw.Thumbnail,
		Duration:   raw.Duration,
		Uploader:   raw.Uploader,
		WebpageURL: raw.WebpageURL,
		Site:       raw.ExtractorKey,
		Formats:    make([]model.Format, 0, len(raw.Formats)),
		Subtitles:  make(map[string][]model.SubtitleTrack),
	}
	if meta.WebpageURL == "" {
		meta.WebpageURL = raw.OriginalURL
	}
	if meta.Site == "" {
		meta.Site = raw.Extractor
	}

	for _, f := range raw.Formats {
		meta.Formats = append(meta.Formats, model.Format{
			FormatID:       f.FormatID,
			Ext:            f.Ext,
			Resolution:     f.Resolution,
			FormatNote:     f.FormatNote,
			Filesize:       int64(f.Filesize),
			FilesizeApprox: int64(f.FilesizeApprox),
			VCodec:         f.VCodec,
			ACodec:         f.ACodec,
			FPS:            f.FPS,
			TBR:            f.TBR,
			Protocol:       f.Protocol,
		})
	}

	// Automatic captions replace uploaded tracks of the same language
	for lang, tracks := range raw.Subtitles {
		meta.Subtitles[lang] = convertTracks(tracks)
	}
	for lang, tracks := range raw.AutomaticCaptions {
		meta.Subtitles[lang] = convertTracks(tracks)
	}

	return meta, nil
}

func convertTracks(tracks []subtitleJSON) []model.SubtitleTrack {
	out := make([]model.SubtitleTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, model.SubtitleTrack{Ext: t.Ext, URL: t.URL, Name: t.Name})
	}
	return out
}
