package memory

import (
	"context"
	"sync"
	"sync/atomic"
)

// EarnCounterStore implements achievement.EarnCounter. The map is only
// locked to find a counter; increments are atomic per achievement.
type EarnCounterStore struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

// NewEarnCounterStore creates an empty store.
func NewEarnCounterStore() *EarnCounterStore {
	return &EarnCounterStore{counters: make(map[string]*atomic.Int64)}
}

// IncrementEarned adds one to the counter and returns the new total.
func (s *EarnCounterStore) IncrementEarned(_ context.Context, achievementID string) (int64, error) {
	return s.counter(achievementID).Add(1), nil
}

// TotalEarned returns the counter, 0 if never incremented.
func (s *EarnCounterStore) TotalEarned(_ context.Context, achievementID string) (int64, error) {
	s.mu.RLock()
	c, ok := s.counters[achievementID]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return c.Load(), nil
}

// AllTotals returns every non-zero counter.
func (s *EarnCounterStore) AllTotals(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.counters))
	for id, c := range s.counters {
		if v := c.Load(); v > 0 {
			out[id] = v
		}
	}
	return out, nil
}

func (s *EarnCounterStore) counter(id string) *atomic.Int64 {
	s.mu.RLock()
	c, ok := s.counters[id]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.counters[id]; !ok {
		c = new(atomic.Int64)
		s.counters[id] = c
	}
	return c
}
