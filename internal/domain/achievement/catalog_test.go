package achievement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

func heritageDefs() []Definition {
	return []Definition{
		{
			ID: "cultural_scholar", Points: 100, Rarity: RarityEpic,
			Criteria:      []Criterion{CountThreshold{Metric: MetricTribesVisited, Min: 16}},
			Prerequisites: []string{"tribe_visitor"},
		},
		{
			ID: "tribe_visitor", Points: 10, Rarity: RarityCommon,
			Criteria: []Criterion{CountThreshold{Metric: MetricTribesVisited, Min: 1}},
		},
		{
			ID: "vr_pioneer", Points: 25, Rarity: RarityCommon,
			Criteria: []Criterion{CountThreshold{Metric: MetricVRCompleted, Min: 1}},
		},
		{
			ID: "artifact_hunter", Points: 25, Rarity: RarityUncommon,
			Criteria: []Criterion{CountThreshold{Metric: MetricArtifactsViewed, Min: 5}},
		},
		{
			ID: "dedicated_learner", Points: 50, Rarity: RarityRare,
			Criteria: []Criterion{TimeThreshold{MinMinutes: 120}},
		},
		{
			ID: "vr_virtuoso", Points: 75, Rarity: RarityRare,
			Criteria: []Criterion{
				ScoreThreshold{MinScore: 90, Count: 2},
				PrerequisiteSet{IDs: []string{"vr_pioneer"}},
			},
		},
	}
}

func TestNewCatalog_ListAllOrder(t *testing.T) {
	c, err := NewCatalog(heritageDefs())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tribe_visitor",
		"vr_pioneer",
		"artifact_hunter",
		"dedicated_learner",
		"vr_virtuoso",
		"cultural_scholar",
	}, c.IDs())
	assert.Equal(t, 6, c.Len())
}

func TestCatalog_IsolatedFromInputAndCallers(t *testing.T) {
	defs := heritageDefs()
	c, err := NewCatalog(defs)
	require.NoError(t, err)

	for i := range defs {
		defs[i].Points = -1
		for j := range defs[i].Prerequisites {
			defs[i].Prerequisites[j] = "mutated"
		}
	}
	for _, d := range c.ListAll() {
		assert.Positive(t, d.Points, d.ID)
		for _, p := range d.Prerequisites {
			assert.NotEqual(t, "mutated", p)
		}
		d.Points = 0
	}
	for _, d := range c.ListAll() {
		assert.Positive(t, d.Points, d.ID)
	}
}

func TestCatalog_Get(t *testing.T) {
	c, err := NewCatalog(heritageDefs())
	require.NoError(t, err)

	d, err := c.Get("vr_pioneer")
	require.NoError(t, err)
	assert.Equal(t, 25, d.Points)

	d.Points = 1000
	d.Prerequisites = append(d.Prerequisites, "tribe_visitor")
	again, err := c.Get("vr_pioneer")
	require.NoError(t, err)
	assert.Equal(t, 25, again.Points, "callers get copies")
	assert.Empty(t, again.Prerequisites)
	assert.Equal(t, 25, c.Points("vr_pioneer"))

	_, err = c.Get("nope")
	assert.True(t, shared.IsNotFound(err))
	assert.True(t, errors.Is(err, shared.ErrAchievementNotFound))
	assert.Equal(t, 0, c.Points("nope"))
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	defs := append(heritageDefs(), Definition{ID: "vr_pioneer", Rarity: RarityCommon})
	_, err := NewCatalog(defs)
	assert.True(t, errors.Is(err, shared.ErrDuplicateAchievement))
}

func TestNewCatalog_RejectsUnknownPrerequisite(t *testing.T) {
	defs := append(heritageDefs(), Definition{ID: "x", Prerequisites: []string{"ghost"}})
	_, err := NewCatalog(defs)
	assert.True(t, errors.Is(err, shared.ErrUnknownPrerequisite))
}

func TestNewCatalog_RejectsCycles(t *testing.T) {
	defs := []Definition{
		{ID: "a", Prerequisites: []string{"b"}},
		{ID: "b", Criteria: []Criterion{PrerequisiteSet{IDs: []string{"c"}}}},
		{ID: "c", Prerequisites: []string{"a"}},
	}
	_, err := NewCatalog(defs)
	assert.True(t, errors.Is(err, shared.ErrPrerequisiteCycle))

	_, err = NewCatalog([]Definition{{ID: "self", Prerequisites: []string{"self"}}})
	assert.True(t, errors.Is(err, shared.ErrPrerequisiteCycle))
}

func TestNewCatalog_RejectsInvalidDefinitions(t *testing.T) {
	unlock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]Definition{
		"negative points": {ID: "a", Points: -1},
		"bad rarity":      {ID: "a", Rarity: Rarity(9)},
		"bad window":      {ID: "a", Window: shared.TimeRange{From: unlock, To: unlock}},
		"bad metric":      {ID: "a", Criteria: []Criterion{CountThreshold{Metric: "likes", Min: 1}}},
		"negative time":   {ID: "a", Criteria: []Criterion{TimeThreshold{MinMinutes: -1}}},
		"score range":     {ID: "a", Criteria: []Criterion{ScoreThreshold{MinScore: 101, Count: 1}}},
		"empty id":        {ID: ""},
	}
	for name, d := range cases {
		_, err := NewCatalog([]Definition{d})
		assert.Error(t, err, name)
		assert.True(t, shared.IsInvalidArgument(err), name)
	}
}

func TestParseRarity(t *testing.T) {
	r, err := ParseRarity("Legendary")
	require.NoError(t, err)
	assert.Equal(t, RarityLegendary, r)
	assert.Equal(t, "legendary", r.String())

	_, err = ParseRarity("mythic")
	assert.Error(t, err)
}

func TestAllPrerequisites_Merged(t *testing.T) {
	d := Definition{
		ID:            "x",
		Prerequisites: []string{"b", "a"},
		Criteria:      []Criterion{PrerequisiteSet{IDs: []string{"c", "a"}}},
	}
	assert.Equal(t, []string{"a", "b", "c"}, d.AllPrerequisites())
}
