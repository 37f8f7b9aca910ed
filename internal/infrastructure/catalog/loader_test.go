package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

func TestDefault_Loads(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 20, l.TotalTribes())
	assert.Equal(t, 8, l.Achievements.Len())

	d, err := l.Achievements.Get("cultural_scholar")
	require.NoError(t, err)
	assert.Equal(t, 100, d.Points)
	assert.Equal(t, achievement.RarityEpic, d.Rarity)
	assert.Equal(t, []string{"tribe_visitor"}, d.AllPrerequisites())

	v, err := l.Achievements.Get("vr_virtuoso")
	require.NoError(t, err)
	assert.Equal(t, []achievement.Criterion{achievement.ScoreThreshold{MinScore: 90, Count: 3}}, v.Criteria)

	ids := l.Achievements.IDs()
	assert.Equal(t, "tribe_visitor", ids[0])
	assert.Equal(t, "heritage_keeper", ids[len(ids)-1])
}

func TestLoadBytes_Window(t *testing.T) {
	doc := []byte(`
version: 1
achievements:
  - id: nauryz
    name: Nauryz Guest
    points: 5
    rarity: rare
    unlock_date: 2025-03-21
    expiry_date: "2025-03-24T00:00:00Z"
    criteria:
      - { kind: count, metric: tribes_visited, min: 1 }
`)
	l, err := LoadBytes(doc)
	require.NoError(t, err)

	d, err := l.Achievements.Get("nauryz")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), d.Window.From)
	assert.Equal(t, time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC), d.Window.To)
	assert.True(t, d.AvailableAt(time.Date(2025, 3, 22, 12, 0, 0, 0, time.UTC)))
	assert.False(t, d.AvailableAt(time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC)))
}

func TestLoadBytes_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing version": `
achievements: []
`,
		"unknown rarity": `
version: 1
achievements:
  - { id: a, name: A, points: 1, rarity: mythic, criteria: [] }
`,
		"negative points": `
version: 1
achievements:
  - { id: a, name: A, points: -1, rarity: common, criteria: [] }
`,
		"count without metric": `
version: 1
achievements:
  - { id: a, name: A, points: 1, rarity: common, criteria: [ { kind: count, min: 1 } ] }
`,
		"score above range": `
version: 1
achievements:
  - { id: a, name: A, points: 1, rarity: common, criteria: [ { kind: score, min_score: 120 } ] }
`,
		"unknown field": `
version: 1
achievements:
  - { id: a, name: A, points: 1, rarity: common, criteria: [], reward: gold }
`,
	}
	for name, doc := range cases {
		_, err := LoadBytes([]byte(doc))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, shared.ErrInvalidCatalog), name)
		assert.True(t, shared.IsInvalidArgument(err), name)
	}
}

func TestLoadBytes_SemanticErrors(t *testing.T) {
	unknown := []byte(`
version: 1
achievements:
  - { id: a, name: A, points: 1, rarity: common, prerequisites: [ghost], criteria: [] }
`)
	_, err := LoadBytes(unknown)
	assert.True(t, errors.Is(err, shared.ErrUnknownPrerequisite))
	assert.True(t, errors.Is(err, shared.ErrInvalidCatalog))

	cycle := []byte(`
version: 1
achievements:
  - { id: a, name: A, points: 1, rarity: common, prerequisites: [b], criteria: [] }
  - { id: b, name: B, points: 1, rarity: common, criteria: [ { kind: prerequisites, ids: [a] } ] }
`)
	_, err = LoadBytes(cycle)
	assert.True(t, errors.Is(err, shared.ErrPrerequisiteCycle))

	window := []byte(`
version: 1
achievements:
  - { id: a, name: A, points: 1, rarity: common, unlock_date: 2025-02-01, expiry_date: 2025-01-01, criteria: [] }
`)
	_, err = LoadBytes(window)
	assert.True(t, errors.Is(err, shared.ErrInvalidValidityWindow))

	dupContent := []byte(`
version: 1
tribes: [ { id: adai, title: Adai } ]
artifacts: [ { id: adai, title: Adai carpet } ]
achievements: []
`)
	_, err = LoadBytes(dupContent)
	assert.True(t, errors.Is(err, shared.ErrInvalidCatalog))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, DefaultDocument(), 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, l.Achievements.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
