package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvaluator(t *testing.T, defs []Definition) *Evaluator {
	t.Helper()
	c, err := NewCatalog(defs)
	require.NoError(t, err)
	return NewEvaluator(c)
}

func earnedOf(ids ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestEvaluate_EmptyProgress(t *testing.T) {
	e := newEvaluator(t, heritageDefs())
	assert.Empty(t, e.Evaluate(progress.Snapshot{}, nil, now))
}

func TestEvaluate_FirstVRCompletion(t *testing.T) {
	e := newEvaluator(t, heritageDefs())

	got := e.Evaluate(progress.Snapshot{VRCompleted: 1, VRScores: []int{80}}, nil, now)
	assert.Equal(t, []string{"vr_pioneer"}, got)
}

func TestEvaluate_PrerequisiteNeedsEarlierPass(t *testing.T) {
	e := newEvaluator(t, heritageDefs())
	snap := progress.Snapshot{TribesVisited: 16}

	// cultural_scholar waits for tribe_visitor to be earned.
	assert.Equal(t, []string{"tribe_visitor"}, e.Evaluate(snap, nil, now))
	assert.Equal(t, []string{"cultural_scholar"}, e.Evaluate(snap, earnedOf("tribe_visitor"), now))
	assert.Empty(t, e.Evaluate(snap, earnedOf("tribe_visitor", "cultural_scholar"), now))
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := newEvaluator(t, heritageDefs())
	snap := progress.Snapshot{TribesVisited: 3, VRCompleted: 2, VRScores: []int{95, 91}, ArtifactsViewed: 5, TotalLearningMinutes: 200}

	first := e.Evaluate(snap, nil, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Evaluate(snap, nil, now))
	}
	assert.Equal(t, []string{"tribe_visitor", "vr_pioneer", "artifact_hunter", "dedicated_learner"}, first)
}

func TestEvaluate_CriteriaAreConjunctive(t *testing.T) {
	e := newEvaluator(t, []Definition{{
		ID: "explorer", Rarity: RarityRare,
		Criteria: []Criterion{
			CountThreshold{Metric: MetricTribesVisited, Min: 2},
			TimeThreshold{MinMinutes: 60},
		},
	}})

	assert.Empty(t, e.Evaluate(progress.Snapshot{TribesVisited: 5}, nil, now))
	assert.Empty(t, e.Evaluate(progress.Snapshot{TotalLearningMinutes: 90}, nil, now))
	assert.Equal(t, []string{"explorer"}, e.Evaluate(progress.Snapshot{TribesVisited: 2, TotalLearningMinutes: 60}, nil, now))
}

func TestEvaluate_ScoreCriterion(t *testing.T) {
	e := newEvaluator(t, heritageDefs())
	earned := earnedOf("vr_pioneer")

	snap := progress.Snapshot{VRCompleted: 2, VRScores: []int{95, 89}}
	assert.NotContains(t, e.Evaluate(snap, earned, now), "vr_virtuoso")

	snap.VRScores = []int{95, 90}
	assert.Contains(t, e.Evaluate(snap, earned, now), "vr_virtuoso")
}

func TestEvaluate_ValidityWindow(t *testing.T) {
	from := now.Add(-time.Hour)
	until := now.Add(time.Hour)
	defs := []Definition{
		{ID: "open", Window: shared.TimeRange{From: from, To: until}},
		{ID: "future", Window: shared.TimeRange{From: until}},
		{ID: "expired", Window: shared.TimeRange{To: now}},
	}
	e := newEvaluator(t, defs)

	assert.Equal(t, []string{"open"}, e.Evaluate(progress.Snapshot{}, nil, now))
	assert.Equal(t, []string{"future"}, e.Evaluate(progress.Snapshot{}, nil, until))
}

func TestEvaluate_AchievementsEarnedMetric(t *testing.T) {
	e := newEvaluator(t, []Definition{{
		ID: "collector", Criteria: []Criterion{CountThreshold{Metric: MetricAchievementsEarned, Min: 2}},
	}})

	assert.Empty(t, e.Evaluate(progress.Snapshot{AchievementsEarned: 1}, nil, now))
	assert.Equal(t, []string{"collector"}, e.Evaluate(progress.Snapshot{AchievementsEarned: 2}, nil, now))
}

func TestExplain(t *testing.T) {
	e := newEvaluator(t, heritageDefs())
	d, err := e.Catalog().Get("vr_virtuoso")
	require.NoError(t, err)

	got := e.Explain(d, progress.Snapshot{VRScores: []int{92, 40}}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, CriterionProgress{Kind: CriterionScore, Metric: "vr_score", Current: 1, Required: 2}, got[0])
	assert.Equal(t, CriterionProgress{Kind: CriterionPrerequisites, Current: 0, Required: 1}, got[1])
}

func TestCheck_Rejections(t *testing.T) {
	e := newEvaluator(t, heritageDefs())
	d, _ := e.Catalog().Get("cultural_scholar")

	assert.Equal(t, RejectAlreadyEarned, e.Check(d, progress.Snapshot{}, earnedOf("cultural_scholar"), now))
	assert.Equal(t, RejectPrerequisites, e.Check(d, progress.Snapshot{TribesVisited: 20}, nil, now))
	assert.Equal(t, RejectCriteria, e.Check(d, progress.Snapshot{TribesVisited: 2}, earnedOf("tribe_visitor"), now))
	assert.Equal(t, RejectNone, e.Check(d, progress.Snapshot{TribesVisited: 16}, earnedOf("tribe_visitor"), now))
}
