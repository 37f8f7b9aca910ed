package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/application/saga"
	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/locks"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/memory"
)

func visit(userID, tribeID string) RecordActivityCommand {
	return RecordActivityCommand{UserID: userID, Kind: progress.KindTribeVisit, ItemID: tribeID}
}

func completeVR(userID, experienceID string, score int) RecordActivityCommand {
	return RecordActivityCommand{UserID: userID, Kind: progress.KindVRCompletion, ItemID: experienceID, Score: score}
}

func TestRecordActivity_FirstVRCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.activity.Handle(ctx, completeVR("u1", "yurt_assembly", 85))
	require.NoError(t, err)

	assert.True(t, res.Changed)
	require.NotNil(t, res.VR)
	assert.True(t, res.VR.FirstCompletion)
	assert.Equal(t, 85, res.VR.Score)
	assert.Equal(t, []string{"vr_pioneer"}, res.NewlyGranted)
	assert.Equal(t, 1, res.Summary.VRCompleted)
	assert.Equal(t, 85, res.Summary.BestVRScore)
	assert.Equal(t, 25, res.Summary.TotalPoints)
	assert.Equal(t, testNow, res.RecordedAt)

	total, err := f.counters.TotalEarned(ctx, "vr_pioneer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	assert.Equal(t, []shared.EventType{shared.EventVRCompleted, shared.EventAchievementGranted}, f.publisher.types())
}

func TestRecordActivity_VRScoreOnlyImproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.activity.Handle(ctx, completeVR("u1", "yurt_assembly", 85))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	lower, err := f.activity.Handle(ctx, completeVR("u1", "yurt_assembly", 70))
	require.NoError(t, err)
	assert.False(t, lower.Changed)
	assert.Equal(t, 85, lower.VR.Score)
	assert.Empty(t, lower.NewlyGranted)

	higher, err := f.activity.Handle(ctx, completeVR("u1", "yurt_assembly", 95))
	require.NoError(t, err)
	assert.True(t, higher.Changed)
	assert.True(t, higher.VR.Improved)
	assert.Equal(t, 85, higher.VR.PreviousScore)
	assert.Equal(t, 95, higher.Summary.BestVRScore)
	assert.Equal(t, 1, higher.Summary.VRCompleted)

	p, err := f.progress.Get(ctx, "u1")
	require.NoError(t, err)
	score, ok := p.VRScore("yurt_assembly")
	require.True(t, ok)
	assert.Equal(t, 95, score)
}

func TestRecordActivity_RepeatVisitIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, []string{"tribe_visitor"}, first.NewlyGranted)

	second, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Empty(t, second.NewlyGranted)
	assert.Equal(t, 1, second.Summary.TribesVisited)

	p, err := f.progress.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)

	// The no-op is still journaled as an activity event.
	assert.Equal(t, []shared.EventType{
		shared.EventTribeVisited, shared.EventAchievementGranted, shared.EventTribeVisited,
	}, f.publisher.types())
}

func TestRecordActivity_PrerequisiteChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var granted []string
	var last *RecordActivityResult
	for _, id := range f.tribeIDs(t, 16) {
		res, err := f.activity.Handle(ctx, visit("u1", id))
		require.NoError(t, err)
		granted = append(granted, res.NewlyGranted...)
		last = res
	}

	assert.Equal(t, []string{"tribe_visitor", "steppe_wanderer", "cultural_scholar"}, granted)
	assert.Equal(t, 80, last.Summary.CompletionPercentage)
	assert.Equal(t, 150, last.Summary.TotalPoints)
	assert.Equal(t, granted, last.Summary.EarnedAchievements)
}

func TestRecordActivity_LearningTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := RecordActivityCommand{UserID: "u1", Kind: progress.KindLearningTime, Minutes: 90}
	res, err := f.activity.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.NewlyGranted)

	cmd.Minutes = 30
	res, err = f.activity.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 120, res.Summary.TotalLearningMinutes)
	assert.Equal(t, []string{"dedicated_learner"}, res.NewlyGranted)
}

func TestRecordActivity_LearningTimeNeverWraps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := progress.New("u1", testNow)
	require.NoError(t, err)
	p.TotalLearningMinutes = shared.MaxTotalLearningMinutes - 10
	require.NoError(t, f.progress.Save(ctx, p))

	cmd := RecordActivityCommand{UserID: "u1", Kind: progress.KindLearningTime, Minutes: 11}
	_, err = f.activity.Handle(ctx, cmd)
	require.ErrorIs(t, err, shared.ErrLearningTimeOverflow)
	assert.True(t, shared.IsInvalidArgument(err))

	cmd.Minutes = 10
	res, err := f.activity.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, shared.MaxTotalLearningMinutes, res.Summary.TotalLearningMinutes)

	stored, err := f.progress.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, shared.MaxTotalLearningMinutes, stored.TotalLearningMinutes)
}

// flakyCounter fails IncrementEarned until healed.
type flakyCounter struct {
	*memory.EarnCounterStore
	mu     sync.Mutex
	broken bool
}

func (c *flakyCounter) IncrementEarned(ctx context.Context, id string) (int64, error) {
	c.mu.Lock()
	broken := c.broken
	c.mu.Unlock()
	if broken {
		return 0, errors.New("counter store unavailable")
	}
	return c.EarnCounterStore.IncrementEarned(ctx, id)
}

func (c *flakyCounter) heal() {
	c.mu.Lock()
	c.broken = false
	c.mu.Unlock()
}

func TestRecordActivity_FailedCounterIncrementIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	counters := &flakyCounter{EarnCounterStore: memory.NewEarnCounterStore(), broken: true}
	ledger := saga.NewAwardLedger(f.catalog, counters)
	flow := saga.NewAchievementFlow(achievement.NewEvaluator(f.catalog), ledger, nil)
	handler := NewRecordActivityHandler(f.progress, f.directory, locks.NewKeyedMutex(), flow, f.cache, f.publisher, nil,
		DefaultRecordActivityConfig(), Options{Clock: f.clock})

	res, err := handler.Handle(ctx, visit("u1", f.tribeIDs(t, 1)[0]))
	require.NoError(t, err, "the grant is saved even when its counter is not")
	assert.Equal(t, []string{"tribe_visitor"}, res.NewlyGranted)
	assert.Equal(t, 1, ledger.PendingIncrements())

	_, err = ledger.RetryPending(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, ledger.PendingIncrements())

	counters.heal()
	applied, err := ledger.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, ledger.PendingIncrements())

	total, err := counters.TotalEarned(ctx, "tribe_visitor")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRecordActivity_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		cmd        RecordActivityCommand
		isNotFound bool
	}{
		{name: "empty user", cmd: visit("", "adai")},
		{name: "score above range", cmd: completeVR("u1", "yurt_assembly", 101)},
		{name: "negative score", cmd: completeVR("u1", "yurt_assembly", -1)},
		{name: "zero minutes", cmd: RecordActivityCommand{UserID: "u1", Kind: progress.KindLearningTime}},
		{name: "session longer than a day", cmd: RecordActivityCommand{UserID: "u1", Kind: progress.KindLearningTime, Minutes: shared.MaxSessionMinutes + 1}},
		{name: "huge session", cmd: RecordActivityCommand{UserID: "u1", Kind: progress.KindLearningTime, Minutes: math.MaxInt}},
		{name: "unknown kind", cmd: RecordActivityCommand{UserID: "u1", Kind: "dance", ItemID: "adai"}},
		{name: "unknown tribe", cmd: visit("u1", "atlantis"), isNotFound: true},
		{name: "artifact id as tribe", cmd: visit("u1", "dombra"), isNotFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.activity.Handle(ctx, tt.cmd)
			require.Error(t, err)
			if tt.isNotFound {
				assert.True(t, shared.IsNotFound(err))
			} else {
				assert.True(t, shared.IsInvalidArgument(err))
			}
		})
	}

	// Nothing was created by rejected commands.
	assert.Equal(t, 0, f.progress.Len())
	assert.Empty(t, f.publisher.types())
}

func TestRecordActivity_RefreshesSummaryCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.activity.Handle(ctx, visit("u1", "adai"))
	require.NoError(t, err)

	cached, ok, err := f.cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, cached.TribesVisited)
	assert.Equal(t, []string{"tribe_visitor"}, cached.EarnedAchievements)
}

func TestRecordActivity_VRFeedbackRatesExperience(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := completeVR("u1", "kokpar_match", 0)
	cmd.SubmitFeedback = true
	res, err := f.activity.Handle(ctx, cmd)
	require.NoError(t, err)

	require.NotNil(t, res.FeedbackAverage)
	assert.Equal(t, 1.0, *res.FeedbackAverage)

	c, err := f.ratings.Get(ctx, "kokpar_match")
	require.NoError(t, err)
	assert.Equal(t, shared.Rating(1), c.Ratings["u1"].Rating)

	cmd = completeVR("u2", "kokpar_match", 100)
	cmd.SubmitFeedback = true
	res, err = f.activity.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 3.0, *res.FeedbackAverage)
}

func TestRecordActivity_NoFeedbackWithoutFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.activity.Handle(ctx, completeVR("u1", "kokpar_match", 60))
	require.NoError(t, err)
	assert.Nil(t, res.FeedbackAverage)

	_, err = f.ratings.Get(ctx, "kokpar_match")
	assert.True(t, shared.IsNotFound(err))
}

func TestRecordActivity_ConcurrentVisitsCountOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tribes := f.tribeIDs(t, 5)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.activity.Handle(ctx, visit("u1", tribes[i%len(tribes)]))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, err := f.progress.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.TribesVisited, 5)
	assert.Equal(t, []string{"tribe_visitor"}, p.EarnedIDs())

	total, err := f.counters.TotalEarned(ctx, "tribe_visitor")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRecordActivity_ConcurrentUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.activity.Handle(ctx, completeVR(fmt.Sprintf("user-%d", i), "yurt_assembly", 50))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total, err := f.counters.TotalEarned(ctx, "vr_pioneer")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
	assert.Equal(t, 20, f.progress.Len())
}
