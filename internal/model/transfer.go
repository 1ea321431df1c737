package model

import "time"

// DefaultOutputTemplate names downloaded files after the media title
const DefaultOutputTemplate = "%(title)s.%(ext)s"

// FetchRequest is handed to the download engine for one job
type FetchRequest struct {
	URL            string
	Format         string
	SubtitleLang   string
	OutputDir      string
	OutputTemplate string
}

// TransferUpdate is one progress tick reported by the download engine.
// Byte counters refer to the file currently being transferred; a job that
// fetches several streams (video + audio) restarts them per stream.
type TransferUpdate struct {
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes per second, 0 if unknown
	ETA             time.Duration
	Finished        bool
}
