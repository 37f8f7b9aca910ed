package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// RatingStore implements rating.Repository.
type RatingStore struct {
	mu      sync.RWMutex
	content map[string]*rating.ContentRating
}

// NewRatingStore creates an empty store.
func NewRatingStore() *RatingStore {
	return &RatingStore{content: make(map[string]*rating.ContentRating)}
}

// Get returns a copy of the content's state.
func (s *RatingStore) Get(_ context.Context, contentID string) (*rating.ContentRating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.content[contentID]
	if !ok {
		return nil, shared.ErrContentNotFound
	}
	return c.Clone(), nil
}

// Save stores a copy of c if its version is current.
func (s *RatingStore) Save(_ context.Context, c *rating.ContentRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if cur, ok := s.content[c.ContentID]; ok {
		stored = cur.Version
	}
	if stored != c.Version {
		return shared.NewDomainError("rating", "Save", shared.ErrConcurrentModification, "content rating version is stale")
	}

	c.Version++
	s.content[c.ContentID] = c.Clone()
	return nil
}

// RatedBy lists content the user rated or viewed, sorted by id.
func (s *RatingStore) RatedBy(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, c := range s.content {
		_, rated := c.Ratings[userID]
		_, viewed := c.ViewedBy[userID]
		if rated || viewed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
