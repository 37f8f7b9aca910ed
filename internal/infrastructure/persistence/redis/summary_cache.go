package redis

import (
	"context"
	"errors"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/pkg/circuitbreaker"
)

// SummaryCache implements progress.SummaryCache on top of Cache.
type SummaryCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewSummaryCache creates a summary cache; ttl <= 0 uses TTLSummaryCache.
func NewSummaryCache(cache *Cache, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = TTLSummaryCache
	}
	return &SummaryCache{cache: cache, ttl: ttl}
}

// WithBreaker guards every call with cb. While the circuit is open reads
// are misses and writes fail fast with circuitbreaker.ErrCircuitOpen.
func (c *SummaryCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *SummaryCache {
	c.breaker = cb
	return c
}

// GetSummary returns the cached summary; a miss is (nil, false, nil).
func (c *SummaryCache) GetSummary(ctx context.Context, userID string) (*progress.Summary, bool, error) {
	var (
		s     progress.Summary
		found bool
	)
	err := c.guard(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, c.key(userID), &s)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		found = err == nil
		return err
	})
	if circuitbreaker.IsRejection(err) {
		return nil, false, nil
	}
	if err != nil || !found {
		return nil, false, err
	}
	return &s, true, nil
}

// SetSummary stores s under its user id.
func (c *SummaryCache) SetSummary(ctx context.Context, s *progress.Summary) error {
	return c.guard(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, c.key(s.UserID), s, c.ttl)
	})
}

// Invalidate drops the cached summary of a user.
func (c *SummaryCache) Invalidate(ctx context.Context, userID string) error {
	return c.guard(ctx, func(ctx context.Context) error {
		return c.cache.Delete(ctx, c.key(userID))
	})
}

func (c *SummaryCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

func (c *SummaryCache) key(userID string) string {
	return c.cache.Key(PrefixSummary, userID)
}
