package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultFormatSelector is used when a client does not pick a format
const DefaultFormatSelector = "bestvideo+bestaudio/best"

// Format describes one downloadable stream variant reported by the engine
type Format struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext,omitempty"`
	Resolution     string  `json:"resolution,omitempty"`
	FormatNote     string  `json:"format_note,omitempty"`
	Filesize       int64   `json:"filesize,omitempty"`
	FilesizeApprox int64   `json:"filesize_approx,omitempty"`
	VCodec         string  `json:"vcodec,omitempty"`
	ACodec         string  `json:"acodec,omitempty"`
	FPS            float64 `json:"fps,omitempty"`
	TBR            float64 `json:"tbr,omitempty"`
	Protocol       string  `json:"protocol,omitempty"`
}

// SubtitleTrack is one available rendition of a subtitle language
type SubtitleTrack struct {
	Ext  string `json:"ext,omitempty"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}

// Metadata is the snapshot captured at inspection time. It is never mutated
// after the session is created and is shared read-only between copies.
type Metadata struct {
	Title      string                     `json:"title"`
	Thumbnail  string                     `json:"thumbnail,omitempty"`
	Duration   float64                    `json:"duration,omitempty"`
	Uploader   string                     `json:"uploader,omitempty"`
	WebpageURL string                     `json:"webpage_url"`
	Site       string                     `json:"-"`
	Formats    []Format                   `json:"formats"`
	Subtitles  map[string][]SubtitleTrack `json:"-"`
	Entries    []PlaylistEntry            `json:"entries,omitempty"`
}

// DisplayTitle returns title or the source URL in order of preference
func (m Metadata) DisplayTitle() string {
	if m.Title != "" && !strings.HasPrefix(m.Title, "http") {
		return m.Title
	}
	return m.WebpageURL
}

// HasSubtitle returns true if the given language has at least one track
func (m Metadata) HasSubtitle(lang string) bool {
	tracks, ok := m.Subtitles[lang]
	return ok && len(tracks) > 0
}

// Progress is the client-facing projection of the running or last job
type Progress struct {
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Speed           float64 `json:"speed"` // bytes per second
	ETASec          int     `json:"eta"`   // -1 if unknown
	Finished        bool    `json:"finished,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Percent returns the completion ratio in the 0..100 range, 0 when unknown
func (p Progress) Percent() float64 {
	if p.Finished {
		return 100
	}
	if p.TotalBytes <= 0 {
		return 0
	}
	pct := float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ETAString returns ETA formatted as hh:mm:ss, or "—" if unknown
func (p Progress) ETAString() string {
	if p.ETASec <= 0 {
		return "—"
	}

	hours := p.ETASec / 3600
	minutes := (p.ETASec % 3600) / 60
	seconds := p.ETASec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// DownloadRequest carries the client's choices for one job
type DownloadRequest struct {
	Format       string `json:"format_code"`
	SubtitleLang string `json:"subtitle_lang,omitempty"`
}

// Session is one client-visible unit of work: inspection, download, retrieval
type Session struct {
	ID           string
	Status       SessionStatus
	Metadata     Metadata
	Progress     Progress
	Request      DownloadRequest
	Attempt      int // incremented on every accepted start
	ArtifactPath string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SourceURL returns the canonical URL captured at inspection time
func (s *Session) SourceURL() string {
	return s.Metadata.WebpageURL
}

// Consistent reports whether the artifact invariant holds:
// an artifact path is present if and only if the session is completed.
func (s *Session) Consistent() bool {
	return (s.ArtifactPath != "") == (s.Status == StatusCompleted)
}

// Age returns how long ago the session was created
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Summary is returned to the client after a successful inspection
type Summary struct {
	SessionID string                     `json:"session_id"`
	Info      Metadata                   `json:"info"`
	Subtitles map[string][]SubtitleTrack `json:"subtitles"`
	Site      string                     `json:"site"`
}

// NewSummary builds the inspection response for a stored session
func NewSummary(id string, meta Metadata) Summary {
	subs := meta.Subtitles
	if subs == nil {
		subs = map[string][]SubtitleTrack{}
	}
	site := meta.Site
	if site == "" {
		site = "unknown"
	}
	return Summary{
		SessionID: id,
		Info:      meta,
		Subtitles: subs,
		Site:      site,
	}
}

// Artifact points to a completed, scanned file ready to be served
type Artifact struct {
	Path     string
	Filename string
	Size     int64
}

// NewArtifact derives the download filename from the artifact path
func NewArtifact(path string, size int64) Artifact {
	return Artifact{
		Path:     path,
		Filename: filepath.Base(path),
		Size:     size,
	}
}
