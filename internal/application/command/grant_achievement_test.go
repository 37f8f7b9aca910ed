package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

func TestGrantAchievement_Explicit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.activity.Handle(ctx, RecordActivityCommand{UserID: "u1", Kind: "learning_time", Minutes: 5})
	require.NoError(t, err)

	res, err := f.grant.Handle(ctx, GrantAchievementCommand{UserID: "u1", AchievementID: "vr_pioneer"})
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, int64(1), res.TotalEarned)
	assert.Empty(t, res.AlsoGranted)

	again, err := f.grant.Handle(ctx, GrantAchievementCommand{UserID: "u1", AchievementID: "vr_pioneer"})
	require.NoError(t, err)
	assert.False(t, again.Granted)

	total, err := f.counters.TotalEarned(ctx, "vr_pioneer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, ok, err := f.cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "grant invalidates the cached summary")
}

func TestGrantAchievement_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.grant.Handle(ctx, GrantAchievementCommand{UserID: "ghost", AchievementID: "vr_pioneer"})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)

	_, err = f.grant.Handle(ctx, GrantAchievementCommand{UserID: "u1", AchievementID: "nope"})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.grant.Handle(ctx, GrantAchievementCommand{UserID: "u1", AchievementID: "vr_virtuoso"})
	assert.True(t, shared.IsFailedPrecondition(err))
	assert.True(t, errors.Is(err, shared.ErrPrerequisitesUnmet))

	_, err = f.grant.Handle(ctx, GrantAchievementCommand{UserID: "u1"})
	assert.True(t, shared.IsInvalidArgument(err))

	p, err := f.progress.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tribe_visitor"}, p.EarnedIDs())
}

func TestGrantAchievement_PublishesGrantEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)
	before := len(f.publisher.types())

	_, err = f.grant.Handle(ctx, GrantAchievementCommand{UserID: "u1", AchievementID: "dedicated_learner", CorrelationID: "c-1"})
	require.NoError(t, err)

	types := f.publisher.types()
	require.Len(t, types, before+1)
	assert.Equal(t, shared.EventAchievementGranted, types[before])

	f.publisher.mu.Lock()
	e := f.publisher.events[before].(shared.AchievementGrantedEvent)
	f.publisher.mu.Unlock()
	assert.Equal(t, "dedicated_learner", e.AchievementID)
	assert.Equal(t, "c-1", e.CorrelationID)
}

func TestCheckAchievements_IsFixedPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)

	res, err := f.grant.Check(ctx, CheckAchievementsCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, res.NewlyGranted)

	_, err = f.grant.Check(ctx, CheckAchievementsCommand{UserID: "nobody"})
	assert.True(t, shared.IsNotFound(err))
}
