package platform

// Package platform contains OS and external tooling glue: the yt-dlp backed
// inspection/download engine, playlist listing, the ClamAV scanner and the
// per-session filesystem layout helpers.
