package progress

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/session"
)

func TestReporter_UnknownSession(t *testing.T) {
	r := NewReporter(session.NewStore())

	_, err := r.Report("missing")
	require.True(t, errors.Is(err, model.ErrNotFound))
}

func TestReporter_ReadsLatestMutation(t *testing.T) {
	store := session.NewStore()
	id, err := store.Create(model.Metadata{Title: "t", WebpageURL: "https://example.com/v"})
	require.NoError(t, err)

	r := NewReporter(store)
	rep, err := r.Report(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusReady, rep.Status)
	require.Equal(t, 0.0, rep.Percent)

	_, err = store.Mutate(id, func(s *model.Session) error {
		s.Status = model.StatusDownloading
		s.Progress = model.Progress{DownloadedBytes: 25, TotalBytes: 100, ETASec: 75}
		return nil
	})
	require.NoError(t, err)

	rep, err = r.Report(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusDownloading, rep.Status)
	require.Equal(t, int64(25), rep.Progress.DownloadedBytes)
	require.Equal(t, 25.0, rep.Percent)
	require.Equal(t, "01:15", rep.ETA)
}

func TestReport_JSONShape(t *testing.T) {
	rep := NewReport(model.Session{
		Status:   model.StatusError,
		Progress: model.Progress{ETASec: -1, Error: "Virus detected. Download aborted."},
	})

	data, err := json.Marshal(rep)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "error", decoded["status"])

	prog, ok := decoded["progress"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Virus detected. Download aborted.", prog["error"])
}
