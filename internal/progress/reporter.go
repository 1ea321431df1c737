// Package progress projects session records into client-facing snapshots.
package progress

import (
	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/session"
)

// Report is what a polling client sees for one session
type Report struct {
	Status   model.SessionStatus `json:"status"`
	Progress model.Progress      `json:"progress"`
	Percent  float64             `json:"percent"`
	ETA      string              `json:"eta"`
}

// Reporter reads progress straight from the store, without caching
type Reporter struct {
	store *session.Store
}

// NewReporter creates a reporter over the given store
func NewReporter(store *session.Store) *Reporter {
	return &Reporter{store: store}
}

// Report returns the latest snapshot or model.ErrNotFound
func (r *Reporter) Report(id string) (Report, error) {
	sess, err := r.store.Get(id)
	if err != nil {
		return Report{}, err
	}
	return NewReport(sess), nil
}

// NewReport builds the snapshot for a session copy
func NewReport(sess model.Session) Report {
	return Report{
		Status:   sess.Status,
		Progress: sess.Progress,
		Percent:  sess.Progress.Percent(),
		ETA:      sess.Progress.ETAString(),
	}
}
