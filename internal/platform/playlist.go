package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/yt-web-downloader/internal/model"
	ytplaylist "github.com/ytget/ytdlp/v2"
)

// Timeout constants
const (
	DefaultListTimeout = 60 * time.Second
)

// URL parameters
const (
	PlaylistParam = "list"
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// PlaylistLister enumerates the entries of a YouTube playlist
type PlaylistLister struct {
	timeout  time.Duration
	maxItems int
}

// NewPlaylistLister creates a lister; maxItems of 0 lists everything
func NewPlaylistLister(timeout time.Duration, maxItems int) *PlaylistLister {
	if timeout <= 0 {
		timeout = DefaultListTimeout
	}
	return &PlaylistLister{
		timeout:  timeout,
		maxItems: maxItems,
	}
}

// ListPlaylist returns the playlist entries referenced by rawURL
func (p *PlaylistLister) ListPlaylist(ctx context.Context, rawURL string) ([]model.PlaylistEntry, error) {
	playlistID := ExtractPlaylistID(rawURL)
	if playlistID == "" {
		return nil, fmt.Errorf("could not extract playlist ID from URL: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	d := ytplaylist.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, p.maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	entries := make([]model.PlaylistEntry, 0, len(items))
	for _, it := range items {
		if it.VideoID == "" {
			continue
		}
		entries = append(entries, model.PlaylistEntry{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
		})
	}
	return entries, nil
}

// IsPlaylistURL reports whether rawURL carries a playlist reference
func IsPlaylistURL(rawURL string) bool {
	return ExtractPlaylistID(rawURL) != ""
}

// ExtractPlaylistID returns the value of the list query parameter
func ExtractPlaylistID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get(PlaylistParam))
}
