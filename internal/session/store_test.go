package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ytget/yt-web-downloader/internal/model"
)

func testMeta(url string) model.Metadata {
	return model.Metadata{Title: "clip", WebpageURL: url}
}

func startDraft(s *model.Session) error {
	if !s.Status.CanStart() {
		return model.ErrInvalidState
	}
	s.Status = model.StatusDownloading
	s.ArtifactPath = ""
	s.Progress = model.Progress{ETASec: -1}
	return nil
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore()

	id, err := store.Create(testMeta("https://example.com/v"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, id, sess.ID)
	require.Equal(t, model.StatusReady, sess.Status)
	require.Equal(t, "https://example.com/v", sess.SourceURL())
	require.Empty(t, sess.ArtifactPath)
	require.Equal(t, -1, sess.Progress.ETASec)
	require.False(t, sess.CreatedAt.IsZero())
}

func TestStore_GetUnknown(t *testing.T) {
	store := NewStore()

	_, err := store.Get("missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	id, err := store.Create(testMeta("https://example.com/v"))
	require.NoError(t, err)

	sess, err := store.Get(id)
	require.NoError(t, err)
	sess.Status = model.StatusCompleted
	sess.ArtifactPath = "/tmp/x"

	again, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusReady, again.Status, "mutating a copy must not leak into the store")
}

func TestStore_CreateRetriesOnCollision(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	var calls int
	store := NewStore(WithIDGenerator(func() (string, error) {
		id := ids[calls]
		calls++
		return id, nil
	}))

	first, err := store.Create(testMeta("u1"))
	require.NoError(t, err)
	require.Equal(t, "dup", first)

	second, err := store.Create(testMeta("u2"))
	require.NoError(t, err)
	require.Equal(t, "fresh", second)
}

func TestStore_CreateExhausted(t *testing.T) {
	store := NewStore(WithIDGenerator(func() (string, error) {
		return "", errors.New("entropy gone")
	}))

	_, err := store.Create(testMeta("u"))
	require.ErrorIs(t, err, model.ErrIDExhausted)
	require.Equal(t, 0, store.Len())
}

func TestStore_MutateUnknown(t *testing.T) {
	store := NewStore()

	_, err := store.Mutate("missing", startDraft)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_MutateDiscardsOnError(t *testing.T) {
	store := NewStore()
	id, err := store.Create(testMeta("u"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Mutate(id, func(s *model.Session) error {
		s.Status = model.StatusDownloading
		return boom
	})
	require.ErrorIs(t, err, boom)

	sess, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusReady, sess.Status)
}

func TestStore_MutateRejectsIllegalTransition(t *testing.T) {
	store := NewStore()
	id, err := store.Create(testMeta("u"))
	require.NoError(t, err)

	_, err = store.Mutate(id, func(s *model.Session) error {
		s.Status = model.StatusCompleted
		s.ArtifactPath = "/tmp/file"
		return nil
	})
	require.ErrorIs(t, err, model.ErrInvalidState, "ready -> completed skips downloading")
}

func TestStore_MutateRejectsArtifactWithoutCompletion(t *testing.T) {
	store := NewStore()
	id, err := store.Create(testMeta("u"))
	require.NoError(t, err)

	_, err = store.Mutate(id, func(s *model.Session) error {
		s.Status = model.StatusDownloading
		s.ArtifactPath = "/tmp/partial"
		return nil
	})
	require.ErrorIs(t, err, model.ErrInvalidState)
}

func TestStore_MutateKeepsMetadataImmutable(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))
	id, err := store.Create(testMeta("https://example.com/original"))
	require.NoError(t, err)

	now = now.Add(time.Minute)
	updated, err := store.Mutate(id, func(s *model.Session) error {
		s.Metadata.WebpageURL = "https://evil.example.com"
		s.CreatedAt = time.Time{}
		return startDraft(s)
	})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/original", updated.SourceURL())
	require.Equal(t, now.Add(-time.Minute), updated.CreatedAt)
	require.Equal(t, now, updated.UpdatedAt)
}

func TestStore_RemoveAndList(t *testing.T) {
	store := NewStore()
	created := make(map[string]bool)
	for i := 0; i < 40; i++ {
		id, err := store.Create(testMeta(fmt.Sprintf("u%d", i)))
		require.NoError(t, err)
		created[id] = true
	}

	ids := store.ListIDs()
	require.Len(t, ids, 40)
	for _, id := range ids {
		require.True(t, created[id])
	}

	require.True(t, store.Remove(ids[0]))
	require.False(t, store.Remove(ids[0]), "second remove reports absence")
	require.Equal(t, 39, store.Len())

	_, err := store.Get(ids[0])
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_ConcurrentStartExactlyOneWins(t *testing.T) {
	store := NewStore()
	id, err := store.Create(testMeta("u"))
	require.NoError(t, err)

	const workers = 64
	var wins, rejected atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.Mutate(id, startDraft)
			if err == nil {
				wins.Add(1)
			} else if errors.Is(err, model.ErrInvalidState) {
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(workers-1), rejected.Load())
}

func TestStore_ConcurrentProgressIsNotLost(t *testing.T) {
	store := NewStore()
	id, err := store.Create(testMeta("u"))
	require.NoError(t, err)
	_, err = store.Mutate(id, startDraft)
	require.NoError(t, err)

	const increments = 200
	var wg sync.WaitGroup
	for i := 0; i < increments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Mutate(id, func(s *model.Session) error {
				s.Progress.DownloadedBytes++
				return nil
			})
		}()
	}
	wg.Wait()

	sess, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, int64(increments), sess.Progress.DownloadedBytes)
}

// TestStore_StateMachineProperty drives random operation sequences and checks
// that every observable session stays consistent and only moves along legal edges.
func TestStore_StateMachineProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := NewStore()
		var ids []string
		last := make(map[string]model.SessionStatus)

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.IntRange(0, 4).Draw(t, "op")
			if op == 0 || len(ids) == 0 {
				id, err := store.Create(testMeta("u"))
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				ids = append(ids, id)
				last[id] = model.StatusReady
				continue
			}

			id := rapid.SampledFrom(ids).Draw(t, "id")
			target := rapid.SampledFrom([]model.SessionStatus{
				model.StatusReady, model.StatusDownloading, model.StatusCompleted, model.StatusError,
			}).Draw(t, "target")
			withArtifact := rapid.Bool().Draw(t, "artifact")

			before, getErr := store.Get(id)
			_, err := store.Mutate(id, func(s *model.Session) error {
				s.Status = target
				s.ArtifactPath = ""
				if withArtifact {
					s.ArtifactPath = "/tmp/" + id
				}
				return nil
			})

			if getErr != nil {
				if !errors.Is(err, model.ErrNotFound) {
					t.Fatalf("expected not found for removed session, got %v", err)
				}
				continue
			}

			legal := model.CanTransition(before.Status, target) && (withArtifact == (target == model.StatusCompleted))
			if legal && err != nil {
				t.Fatalf("legal mutation %s -> %s rejected: %v", before.Status, target, err)
			}
			if !legal && err == nil {
				t.Fatalf("illegal mutation %s -> %s (artifact=%v) accepted", before.Status, target, withArtifact)
			}
			if err == nil {
				last[id] = target
			}

			if op == 4 {
				store.Remove(id)
			}
		}

		for _, id := range store.ListIDs() {
			sess, err := store.Get(id)
			if err != nil {
				t.Fatalf("listed id %s not gettable: %v", id, err)
			}
			if !sess.Consistent() {
				t.Fatalf("session %s violates artifact invariant: %+v", id, sess)
			}
			if sess.Status != last[id] {
				t.Fatalf("session %s status %s, expected %s", id, sess.Status, last[id])
			}
		}
	})
}
