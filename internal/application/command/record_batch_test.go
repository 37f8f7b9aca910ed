package command

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

func TestRecordBatch_CollectsItemErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := NewRecordBatchHandler(f.activity, 4, Options{})

	res, err := batch.Handle(ctx, RecordBatchCommand{Items: []RecordActivityCommand{
		visit("u1", "adai"),
		visit("u2", "atlantis"),
		completeVR("u1", "yurt_assembly", 90),
		visit("u2", "alban"),
		completeVR("u3", "yurt_assembly", 120),
	}})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Failed)

	failed := res.Errors()
	require.Len(t, failed, 2)
	assert.Equal(t, 1, failed[0].Index)
	assert.True(t, shared.IsNotFound(failed[0].Err))
	assert.Equal(t, 4, failed[1].Index)
	assert.True(t, shared.IsInvalidArgument(failed[1].Err))

	assert.Equal(t, []string{"vr_pioneer"}, res.Items[2].Result.NewlyGranted)
	assert.Equal(t, 2, res.Items[2].Result.Summary.AchievementsEarned)
}

func TestRecordBatch_PerUserOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := NewRecordBatchHandler(f.activity, 0, Options{})

	tribes := f.tribeIDs(t, 10)
	var items []RecordActivityCommand
	for _, tribe := range tribes {
		for u := 0; u < 5; u++ {
			items = append(items, visit(fmt.Sprintf("user-%d", u), tribe))
		}
	}

	res, err := batch.Handle(ctx, RecordBatchCommand{Items: items})
	require.NoError(t, err)
	assert.Equal(t, len(items), res.Succeeded)

	for u := 0; u < 5; u++ {
		p, err := f.progress.Get(ctx, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		require.Len(t, p.TribesVisited, len(tribes))
		for i, item := range p.TribesVisited {
			assert.Equal(t, tribes[i], item.ID)
		}
		assert.Equal(t, []string{"tribe_visitor", "steppe_wanderer"}, p.EarnedIDs())
	}
}

func TestRecordBatch_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := NewRecordBatchHandler(f.activity, 2, Options{})
	res, err := batch.Handle(ctx, RecordBatchCommand{Items: []RecordActivityCommand{
		visit("u1", "adai"),
		visit("u2", "adai"),
	}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0, f.progress.Len())
}
