package model

// PlaylistEntry is a single item of a playlist referenced by the inspected URL.
// Entries are informational: a session always downloads its own source URL.
type PlaylistEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}
