package download

import (
	"context"

	"github.com/ytget/yt-web-downloader/internal/model"
)

// Inspector resolves a URL into metadata without writing any file
type Inspector interface {
	Inspect(ctx context.Context, url string) (model.Metadata, error)
}

// Fetcher performs one transfer and returns the final artifact path.
// onProgress may be called from the fetcher's own goroutines.
type Fetcher interface {
	Fetch(ctx context.Context, req model.FetchRequest, onProgress func(model.TransferUpdate)) (string, error)
}

// Scanner returns true when the file at path is safe to serve
type Scanner interface {
	Scan(ctx context.Context, path string) (bool, error)
}

// PlaylistLister enumerates the entries of a playlist URL
type PlaylistLister interface {
	ListPlaylist(ctx context.Context, url string) ([]model.PlaylistEntry, error)
}
