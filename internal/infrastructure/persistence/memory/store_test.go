package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestProgressStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore()

	_, err := s.Get(ctx, "u1")
	assert.True(t, shared.IsNotFound(err))

	p, err := progress.New("u1", now)
	require.NoError(t, err)
	_, err = p.VisitTribe("adai", now)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.HasVisitedTribe("adai"))

	// The returned copy is detached from the stored state.
	_, _ = got.VisitTribe("alban", now)
	again, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, again.HasVisitedTribe("alban"))

	require.NoError(t, s.Delete(ctx, "u1"))
	assert.True(t, shared.IsNotFound(s.Delete(ctx, "u1")))
}

func TestProgressStore_RejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore()

	p, _ := progress.New("u1", now)
	require.NoError(t, s.Save(ctx, p))

	a, _ := s.Get(ctx, "u1")
	b, _ := s.Get(ctx, "u1")
	require.NoError(t, s.Save(ctx, a))

	err := s.Save(ctx, b)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestRatingStore_RatedBy(t *testing.T) {
	ctx := context.Background()
	s := NewRatingStore()

	c1, err := rating.New("art-1", shared.ContentArtifact, now)
	require.NoError(t, err)
	_, err = c1.Rate("u1", 5, "", now)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, c1))

	c2, _ := rating.New("vr-1", shared.ContentVRExperience, now)
	c2.RecordView("u1", true, now)
	require.NoError(t, s.Save(ctx, c2))

	c3, _ := rating.New("art-2", shared.ContentArtifact, now)
	c3.RecordView("u2", true, now)
	require.NoError(t, s.Save(ctx, c3))

	ids, err := s.RatedBy(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"art-1", "vr-1"}, ids)
}

func TestEarnCounterStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewEarnCounterStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementEarned(ctx, "tribe_visitor")
		}()
	}
	wg.Wait()

	total, err := s.TotalEarned(ctx, "tribe_visitor")
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)

	none, err := s.TotalEarned(ctx, "vr_pioneer")
	require.NoError(t, err)
	assert.Zero(t, none)

	all, err := s.AllTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"tribe_visitor": 100}, all)
}

func TestDirectory_LookupAndTotals(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory([]content.Item{
		{ID: "adai", Kind: shared.ContentTribe, Title: "Adai"},
		{ID: "alban", Kind: shared.ContentTribe, Title: "Alban"},
		{ID: "art-1", Kind: shared.ContentArtifact, Title: "Saukele", Category: "jewelry"},
	})

	n, err := d.TotalTribes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cat, err := content.Category(ctx, d, shared.ContentArtifact, "art-1")
	require.NoError(t, err)
	assert.Equal(t, "jewelry", cat)

	ok, err := content.Exists(ctx, d, shared.ContentArtifact, "adai")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Lookup(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestSummaryCache(t *testing.T) {
	ctx := context.Background()
	c := NewSummaryCache()

	_, ok, err := c.GetSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetSummary(ctx, &progress.Summary{UserID: "u1", TribesVisited: 2}))
	s, ok, err := c.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, s.TribesVisited)

	require.NoError(t, c.Invalidate(ctx, "u1"))
	_, ok, _ = c.GetSummary(ctx, "u1")
	assert.False(t, ok)
}
