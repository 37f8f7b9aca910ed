package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

func TestDeleteProgress_RemovesProgressAndRatings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)
	_, err = f.content.RecordRating(ctx, RecordRatingCommand{ContentID: "dombra", UserID: "u1", Rating: 5})
	require.NoError(t, err)
	_, err = f.content.RecordRating(ctx, RecordRatingCommand{ContentID: "dombra", UserID: "u2", Rating: 3})
	require.NoError(t, err)
	_, err = f.content.RecordView(ctx, RecordViewCommand{ContentID: "kobyz", UserID: "u1"})
	require.NoError(t, err)

	res, err := f.delete.Handle(ctx, DeleteProgressCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, res.ProgressDeleted)
	assert.Equal(t, []string{"dombra"}, res.RatingsRemoved)

	_, err = f.progress.Get(ctx, "u1")
	assert.True(t, shared.IsNotFound(err))

	c, err := f.ratings.Get(ctx, "dombra")
	require.NoError(t, err)
	assert.Equal(t, 3.0, c.Average())
	assert.Equal(t, 1, c.RatingCount())

	viewed, err := f.ratings.Get(ctx, "kobyz")
	require.NoError(t, err)
	assert.Equal(t, int64(1), viewed.ViewCount)
	assert.NotContains(t, viewed.ViewedBy, "u1")

	_, ok, err := f.cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	types := f.publisher.types()
	assert.Equal(t, shared.EventProgressDeleted, types[len(types)-1])

	// Achievements already granted keep their global counters.
	total, err := f.counters.TotalEarned(ctx, "tribe_visitor")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestDeleteProgress_RatingsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.content.RecordRating(ctx, RecordRatingCommand{ContentID: "dombra", UserID: "u1", Rating: 4})
	require.NoError(t, err)

	res, err := f.delete.Handle(ctx, DeleteProgressCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, res.ProgressDeleted)
	assert.Equal(t, []string{"dombra"}, res.RatingsRemoved)
}

func TestDeleteProgress_UnknownUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.delete.Handle(ctx, DeleteProgressCommand{UserID: "nobody"})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.delete.Handle(ctx, DeleteProgressCommand{UserID: " "})
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestDeleteProgress_UserCanStartOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)
	_, err = f.delete.Handle(ctx, DeleteProgressCommand{UserID: "u1"})
	require.NoError(t, err)

	res, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"tribe_visitor"}, res.NewlyGranted)
	assert.Equal(t, int64(1), res.Summary.Version)
}
