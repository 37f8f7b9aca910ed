// Package memory implements the engine's stores in process memory. It is
// the default backend for tests and single-process use.
package memory

import (
	"context"
	"sync"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ProgressStore implements progress.Repository.
type ProgressStore struct {
	mu    sync.RWMutex
	users map[string]*progress.Progress
}

// NewProgressStore creates an empty store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{users: make(map[string]*progress.Progress)}
}

// Get returns a copy of the user's progress.
func (s *ProgressStore) Get(_ context.Context, userID string) (*progress.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[userID]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return p.Clone(), nil
}

// Save stores a copy of p if its version is current.
func (s *ProgressStore) Save(_ context.Context, p *progress.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if cur, ok := s.users[p.UserID]; ok {
		stored = cur.Version
	}
	if stored != p.Version {
		return shared.ErrProgressVersionStale
	}

	p.Version++
	s.users[p.UserID] = p.Clone()
	return nil
}

// Delete removes the user's progress.
func (s *ProgressStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return shared.ErrProgressNotFound
	}
	delete(s.users, userID)
	return nil
}

// Len returns the number of users with progress.
func (s *ProgressStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
