package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already registered")
)

// SessionPolicy bounds how many sessions are kept and for how long.
// Zero values mean unbounded.
type SessionPolicy struct {
	Capacity int
	TTL      time.Duration
}

// SessionStore maps session ids to their built indexes. Indexes are only
// registered once fully built and are never replaced.
type SessionStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, VectorIndex]
	log   *zap.Logger
}

func NewSessionStore(policy SessionPolicy, log *zap.Logger) *SessionStore {
	s := &SessionStore{log: log}
	s.cache = expirable.NewLRU[string, VectorIndex](policy.Capacity, s.onEvict, policy.TTL)
	return s
}

func (s *SessionStore) onEvict(sessionID string, idx VectorIndex) {
	s.log.Info("session evicted", zap.String("session_id", sessionID), zap.Int("chunks", idx.Len()))
	if err := idx.Close(); err != nil {
		s.log.Warn("failed to release evicted session index", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *SessionStore) Register(sessionID string, idx VectorIndex) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if idx == nil {
		return errors.New("session index is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Contains(sessionID) {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	s.cache.Add(sessionID, idx)
	return nil
}

// Lookup returns the session's index and restarts its idle timer.
func (s *SessionStore) Lookup(sessionID string) (VectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	// Re-adding an existing key resets its expiry without the evict callback.
	s.cache.Add(sessionID, idx)
	return idx, nil
}

func (s *SessionStore) Len() int {
	return s.cache.Len()
}
