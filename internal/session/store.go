package session

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/yt-web-downloader/internal/model"
)

const (
	// ShardCount is the number of independently locked partitions
	ShardCount = 16

	// MaxIDAttempts bounds id allocation retries on collision or generator failure
	MaxIDAttempts = 8
)

// MutateFunc edits a draft copy of a session. Returning an error discards the draft.
type MutateFunc func(s *model.Session) error

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// Store is a sharded, concurrency-safe map of session id to session record
type Store struct {
	shards [ShardCount]*shard
	now    func() time.Time
	newID  func() (string, error)
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides session id generation
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		newID: generateSessionID,
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*model.Session)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%ShardCount]
}

// Create inserts a new Ready session with the given metadata and returns its id
func (s *Store) Create(meta model.Metadata) (string, error) {
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil || id == "" {
			continue
		}

		sh := s.shardFor(id)
		sh.mu.Lock()
		if _, exists := sh.sessions[id]; exists {
			sh.mu.Unlock()
			continue
		}
		now := s.now()
		sh.sessions[id] = &model.Session{
			ID:        id,
			Status:    model.StatusReady,
			Metadata:  meta,
			Progress:  model.Progress{ETASec: -1},
			CreatedAt: now,
			UpdatedAt: now,
		}
		sh.mu.Unlock()
		return id, nil
	}
	return "", model.ErrIDExhausted
}

// Get returns a copy of the session
func (s *Store) Get(id string) (model.Session, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, exists := sh.sessions[id]
	if !exists {
		return model.Session{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return *sess, nil
}

// Mutate applies fn to a draft of the session under the shard lock and commits
// it only if fn succeeds, the status change is a legal transition and the
// artifact invariant still holds. Identity, metadata and creation time are
// immutable; changes to them are discarded. Returns the committed copy.
func (s *Store) Mutate(id string, fn MutateFunc) (model.Session, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, exists := sh.sessions[id]
	if !exists {
		return model.Session{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}

	draft := *sess
	if err := fn(&draft); err != nil {
		return *sess, err
	}

	draft.ID = sess.ID
	draft.Metadata = sess.Metadata
	draft.CreatedAt = sess.CreatedAt

	if !model.CanTransition(sess.Status, draft.Status) {
		return *sess, fmt.Errorf("%w: cannot move from %s to %s", model.ErrInvalidState, sess.Status, draft.Status)
	}
	if !draft.Consistent() {
		return *sess, fmt.Errorf("%w: artifact path must be set only when completed", model.ErrInvalidState)
	}

	draft.UpdatedAt = s.now()
	*sess = draft
	return draft, nil
}

// Remove deletes the session record. Reports whether it existed.
func (s *Store) Remove(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.sessions[id]; !exists {
		return false
	}
	delete(sh.sessions, id)
	return true
}

// ListIDs returns a snapshot of all session ids
func (s *Store) ListIDs() []string {
	ids := make([]string, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id := range sh.sessions {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	return ids
}

// Len returns the number of stored sessions
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// generateSessionID generates a unique session ID using UUID v7
func generateSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
