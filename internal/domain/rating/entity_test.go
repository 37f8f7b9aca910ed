package rating

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newRating(t *testing.T) *ContentRating {
	t.Helper()
	c, err := New("dombra", shared.ContentArtifact, t0)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsTribes(t *testing.T) {
	_, err := New("adai", shared.ContentTribe, t0)
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestRate_Bounds(t *testing.T) {
	c := newRating(t)

	_, err := c.Rate("u1", 0, "bad", t0)
	assert.True(t, shared.IsInvalidArgument(err))
	_, err = c.Rate("u1", 6, "bad", t0)
	assert.True(t, shared.IsInvalidArgument(err))
	assert.Equal(t, 0.0, c.Average())

	_, err = c.Rate("u1", 5, "great", t0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, c.Average())
}

func TestRate_ReRatingReplaces(t *testing.T) {
	c := newRating(t)

	_, _ = c.Rate("u1", 2, "", t0)
	_, _ = c.Rate("u2", 4, "", t0)
	prev, err := c.Rate("u1", 5, "changed my mind", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, shared.Rating(2), prev.Rating)

	assert.Equal(t, 2, c.RatingCount())
	assert.Equal(t, 4.5, c.Average())
}

func TestAverage_RoundsToOneDecimal(t *testing.T) {
	c := newRating(t)
	_, _ = c.Rate("u1", 5, "", t0)
	_, _ = c.Rate("u2", 4, "", t0)
	_, _ = c.Rate("u3", 4, "", t0)

	// 13/3 = 4.333...
	assert.Equal(t, 4.3, c.Average())
}

func TestRate_CommentLength(t *testing.T) {
	c := newRating(t)

	_, err := c.Rate("u1", 3, strings.Repeat("a", MaxCommentLength+1), t0)
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = c.Rate("u1", 3, "  "+strings.Repeat("a", MaxCommentLength)+"  ", t0)
	require.NoError(t, err)
	assert.Len(t, c.Ratings["u1"].Comment, MaxCommentLength)
}

func TestRecordView_UniquePolicy(t *testing.T) {
	c := newRating(t)

	assert.True(t, c.RecordView("u1", true, t0))
	assert.False(t, c.RecordView("u1", true, t0))
	assert.True(t, c.RecordView("u1", false, t0))
	assert.True(t, c.RecordView("", true, t0))
	assert.True(t, c.RecordView("", true, t0))

	assert.Equal(t, int64(4), c.ViewCount)
}

func TestDistribution(t *testing.T) {
	c := newRating(t)
	_, _ = c.Rate("u1", 5, "", t0)
	_, _ = c.Rate("u2", 5, "", t0)
	_, _ = c.Rate("u3", 1, "", t0)

	assert.Equal(t, map[int]int{1: 1, 2: 0, 3: 0, 4: 0, 5: 2}, c.Distribution())
}

func TestRemoveUser(t *testing.T) {
	c := newRating(t)
	c.RecordView("u1", true, t0)
	_, _ = c.Rate("u1", 1, "", t0)
	_, _ = c.Rate("u2", 5, "", t0)

	assert.True(t, c.RemoveUser("u1", t0))
	assert.False(t, c.RemoveUser("u1", t0))
	assert.Equal(t, 5.0, c.Average())
	assert.Equal(t, int64(1), c.ViewCount)
	assert.NotContains(t, c.ViewedBy, "u1")
}
