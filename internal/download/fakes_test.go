package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/session"
)

type fakeInspector struct {
	meta  model.Metadata
	err   error
	calls atomic.Int32
}

func (f *fakeInspector) Inspect(_ context.Context, url string) (model.Metadata, error) {
	f.calls.Add(1)
	if f.err != nil {
		return model.Metadata{}, f.err
	}
	meta := f.meta
	if meta.WebpageURL == "" {
		meta.WebpageURL = url
	}
	return meta, nil
}

type fakeLister struct {
	entries []model.PlaylistEntry
	err     error
}

func (f *fakeLister) ListPlaylist(context.Context, string) ([]model.PlaylistEntry, error) {
	return f.entries, f.err
}

// fakeFetcher writes "<title>-<n>.mp4" into the output directory. When gate
// is set, each call blocks until the gate is closed or the job is cancelled.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	reqs    []model.FetchRequest
	gate    chan struct{}
	updates []model.TransferUpdate
	observe func()
	err     error
	panics  bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, req model.FetchRequest, onProgress func(model.TransferUpdate)) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.reqs = append(f.reqs, req)
	gate := f.gate
	updates := f.updates
	observe := f.observe
	fetchErr := f.err
	panics := f.panics
	f.mu.Unlock()

	if panics {
		panic("engine exploded")
	}

	for _, u := range updates {
		onProgress(u)
		if observe != nil {
			observe()
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if fetchErr != nil {
		return "", fetchErr
	}

	path := filepath.Join(req.OutputDir, fmt.Sprintf("clip-%d.mp4", n))
	if err := os.WriteFile(path, []byte(fmt.Sprintf("payload %d", n)), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) lastRequest() model.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeScanner struct {
	clean bool
	err   error
	calls atomic.Int32
}

func (f *fakeScanner) Scan(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return f.clean, f.err
}

type testEnv struct {
	store     *session.Store
	runner    *Runner
	service   *Service
	inspector *fakeInspector
	fetcher   *fakeFetcher
	scanner   *fakeScanner
	dir       string
}

func newTestEnv(t *testing.T, maxParallel int) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     session.NewStore(),
		inspector: &fakeInspector{meta: model.Metadata{
			Title:     "Clip",
			Site:      "Youtube",
			Subtitles: map[string][]model.SubtitleTrack{"en": {{Ext: "vtt"}}},
		}},
		fetcher:   &fakeFetcher{},
		scanner:   &fakeScanner{clean: true},
		dir:       t.TempDir(),
	}
	env.runner = NewRunner(env.store, env.fetcher, env.scanner, RunnerConfig{
		DownloadDir: env.dir,
		MaxParallel: maxParallel,
	})
	env.service = NewService(env.store, env.runner, env.inspector, ServiceConfig{})
	t.Cleanup(env.runner.Close)
	return env
}

func (e *testEnv) inspect(t *testing.T) string {
	t.Helper()
	summary, err := e.service.Inspect(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	return summary.SessionID
}

func waitForStatus(t *testing.T, svc *Service, id string, want model.SessionStatus) model.Session {
	t.Helper()
	require.Eventually(t, func() bool {
		rep, err := svc.Poll(id)
		return err == nil && rep.Status == want
	}, 5*time.Second, 5*time.Millisecond, "session %s never reached %s", id, want)

	sess, err := svc.store.Get(id)
	require.NoError(t, err)
	return sess
}
