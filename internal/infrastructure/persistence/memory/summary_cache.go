package memory

import (
	"context"
	"sync"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
)

// SummaryCache implements progress.SummaryCache without expiry; entries
// live until invalidated.
type SummaryCache struct {
	mu      sync.RWMutex
	entries map[string]progress.Summary
}

// NewSummaryCache creates an empty cache.
func NewSummaryCache() *SummaryCache {
	return &SummaryCache{entries: make(map[string]progress.Summary)}
}

// GetSummary returns a cached summary.
func (c *SummaryCache) GetSummary(_ context.Context, userID string) (*progress.Summary, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

// SetSummary caches s.
func (c *SummaryCache) SetSummary(_ context.Context, s *progress.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.UserID] = *s
	return nil
}

// Invalidate drops the user's entry.
func (c *SummaryCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}
