package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newProgress(t *testing.T) *Progress {
	t.Helper()
	p, err := New("user-1", t0)
	require.NoError(t, err)
	return p
}

func TestNew_RejectsMalformedUserID(t *testing.T) {
	for _, id := range []string{"", "has space", "tab\tid", string(make([]byte, 129))} {
		_, err := New(id, t0)
		assert.Error(t, err, "id %q", id)
		assert.True(t, shared.IsInvalidArgument(err))
	}
}

func TestVisitTribe_Idempotent(t *testing.T) {
	p := newProgress(t)

	changed, err := p.VisitTribe("adai", t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = p.VisitTribe("adai", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Len(t, p.TribesVisited, 1)
	assert.Equal(t, t0, p.TribesVisited[0].FirstAt)
}

func TestViewArtifact_Idempotent(t *testing.T) {
	p := newProgress(t)

	changed, err := p.ViewArtifact("dombra", t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = p.ViewArtifact("dombra", t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, p.HasViewedArtifact("dombra"))
	assert.Len(t, p.ArtifactsViewed, 1)
}

func TestCompleteVR_ScoreUpdatePolicy(t *testing.T) {
	p := newProgress(t)

	res, err := p.CompleteVR("exp1", 50, t0)
	require.NoError(t, err)
	assert.True(t, res.FirstCompletion)
	assert.True(t, res.Changed())

	res, err = p.CompleteVR("exp1", 40, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Changed())
	score, _ := p.VRScore("exp1")
	assert.Equal(t, 50, score)
	assert.Equal(t, t0, p.VRCompletions[0].CompletedAt)

	res, err = p.CompleteVR("exp1", 50, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Changed(), "equal score is not an improvement")

	res, err = p.CompleteVR("exp1", 60, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Improved)
	assert.Equal(t, 50, res.PreviousScore)
	score, _ = p.VRScore("exp1")
	assert.Equal(t, 60, score)
	assert.Equal(t, t0.Add(3*time.Hour), p.VRCompletions[0].CompletedAt)
	assert.Len(t, p.VRCompletions, 1)
}

func TestCompleteVR_RejectsOutOfRangeScore(t *testing.T) {
	p := newProgress(t)

	for _, s := range []int{-1, 101} {
		_, err := p.CompleteVR("exp1", s, t0)
		assert.True(t, shared.IsInvalidArgument(err))
	}
	assert.Empty(t, p.VRCompletions)
}

func TestAddLearningTime(t *testing.T) {
	p := newProgress(t)

	require.NoError(t, p.AddLearningTime(15, t0))
	require.NoError(t, p.AddLearningTime(15, t0))
	assert.Equal(t, 30, p.TotalLearningMinutes)

	for _, m := range []int{0, -5, shared.MaxSessionMinutes + 1} {
		err := p.AddLearningTime(m, t0)
		assert.True(t, shared.IsInvalidArgument(err))
	}
	assert.Equal(t, 30, p.TotalLearningMinutes)
}

func TestAddLearningTime_StopsAtMaximum(t *testing.T) {
	p := newProgress(t)
	p.TotalLearningMinutes = shared.MaxTotalLearningMinutes - 5

	err := p.AddLearningTime(6, t0)
	assert.ErrorIs(t, err, shared.ErrLearningTimeOverflow)
	assert.Equal(t, shared.MaxTotalLearningMinutes-5, p.TotalLearningMinutes)

	require.NoError(t, p.AddLearningTime(5, t0))
	assert.Equal(t, shared.MaxTotalLearningMinutes, p.TotalLearningMinutes)
}

func TestEarn_OnceAndOrdered(t *testing.T) {
	p := newProgress(t)

	assert.True(t, p.Earn("tribe_visitor", t0))
	assert.False(t, p.Earn("tribe_visitor", t0.Add(time.Second)))
	assert.True(t, p.Earn("cultural_scholar", t0.Add(time.Second)))

	assert.Equal(t, []string{"tribe_visitor", "cultural_scholar"}, p.EarnedIDs())
	at, ok := p.EarnedAt("tribe_visitor")
	assert.True(t, ok)
	assert.Equal(t, t0, at)
}

func TestClone_IsDeep(t *testing.T) {
	p := newProgress(t)
	_, _ = p.VisitTribe("adai", t0)

	c := p.Clone()
	_, _ = c.VisitTribe("alban", t0)
	c.Earn("x", t0)

	assert.Len(t, p.TribesVisited, 1)
	assert.Empty(t, p.Earned)
}

func TestSummarize(t *testing.T) {
	p := newProgress(t)
	for _, id := range []string{"adai", "alban", "argyn", "baiuly"} {
		_, _ = p.VisitTribe(id, t0)
	}
	_, _ = p.CompleteVR("exp1", 70, t0)
	_, _ = p.CompleteVR("exp2", 90, t0)
	_ = p.AddLearningTime(42, t0)
	p.Earn("tribe_visitor", t0)
	p.Earn("vr_pioneer", t0)

	points := map[string]int{"tribe_visitor": 10, "vr_pioneer": 25}
	s := p.Summarize(20, func(id string) int { return points[id] }, 3)

	assert.Equal(t, 4, s.TribesVisited)
	assert.Equal(t, 2, s.VRCompleted)
	assert.Equal(t, 90, s.BestVRScore)
	assert.Equal(t, 42, s.TotalLearningMinutes)
	assert.Equal(t, 35, s.TotalPoints)
	assert.Equal(t, 20, s.CompletionPercentage)
	assert.Equal(t, []string{"alban", "argyn", "baiuly"}, s.RecentTribes)
	assert.Empty(t, s.RecentArtifacts)
}

func TestCompletionPercentage(t *testing.T) {
	assert.Equal(t, 0, CompletionPercentage(3, 0))
	assert.Equal(t, 0, CompletionPercentage(0, 20))
	assert.Equal(t, 33, CompletionPercentage(1, 3))
	assert.Equal(t, 67, CompletionPercentage(2, 3))
	assert.Equal(t, 100, CompletionPercentage(25, 20))
}

func TestSnapshot_CountScoresAtLeast(t *testing.T) {
	p := newProgress(t)
	_, _ = p.CompleteVR("a", 95, t0)
	_, _ = p.CompleteVR("b", 80, t0)
	_, _ = p.CompleteVR("c", 90, t0)

	snap := p.Snapshot()
	assert.Equal(t, 3, snap.VRCompleted)
	assert.Equal(t, 2, snap.CountScoresAtLeast(90))
	assert.Equal(t, 0, snap.CountScoresAtLeast(96))
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("u1", KindTribeVisit, "adai")
	b := IdempotencyKey("u1", KindTribeVisit, "adai")
	c := IdempotencyKey("u1", KindArtifactView, "adai")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
