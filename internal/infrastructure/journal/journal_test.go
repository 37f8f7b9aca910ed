package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/pkg/timeutil"
)

func visit(userID, tribeID string, changed bool, at time.Time) shared.ActivityRecordedEvent {
	ev := shared.NewActivityRecordedEvent(shared.EventTribeVisited, userID, tribeID, at)
	ev.Changed = changed
	ev.IdempotencyKey = progress.IdempotencyKey(userID, progress.KindTribeVisit, tribeID)
	return ev
}

func TestWriter_ReplayInOrderAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewFixedClock(time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC))
	w := NewWriter(dir, "", clock, nil)

	at := clock.Now()
	require.NoError(t, w.Append(visit("u1", "adai", true, at)))
	require.NoError(t, w.Append(visit("u1", "adai", false, at)))

	clock.Advance(2 * time.Minute)
	require.NoError(t, w.Append(shared.NewAchievementGrantedEvent("u1", "tribe_visitor", 10, "common", 1, clock.Now())))
	require.NoError(t, w.Append(visit("u1", "alban", true, clock.Now())))
	require.NoError(t, w.Close())

	segments, err := Segments(dir, "")
	require.NoError(t, err)
	require.Len(t, segments, 2)

	var types []shared.EventType
	var seqs []uint64
	err = Replay(context.Background(), dir, "", func(e Entry) error {
		types = append(types, e.Event.Type)
		seqs = append(seqs, e.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []shared.EventType{
		shared.EventTribeVisited,
		shared.EventTribeVisited,
		shared.EventAchievementGranted,
		shared.EventTribeVisited,
	}, types)
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs)
}

func TestCollect_CountsDuplicates(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewFixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	w := NewWriter(dir, "test", clock, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Append(visit("u1", "adai", i == 0, clock.Now())))
	}
	require.NoError(t, w.Append(visit("u2", "adai", true, clock.Now())))
	require.NoError(t, w.Close())

	st, err := Collect(context.Background(), dir, "test")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Entries)
	assert.Equal(t, 2, st.DistinctActivities)
	assert.Equal(t, 2, st.DuplicateActivities)
	assert.Equal(t, 4, st.ByType[shared.EventTribeVisited])
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w := NewWriter(t.TempDir(), "", timeutil.NewFixedClock(time.Now()), nil)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append(visit("u1", "adai", true, time.Now())), ErrClosed)
}

func TestWriter_ReopensSegmentForAppend(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewFixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	w1 := NewWriter(dir, "", clock, nil)
	require.NoError(t, w1.Append(visit("u1", "adai", true, clock.Now())))
	require.NoError(t, w1.Close())

	w2 := NewWriter(dir, "", clock, nil)
	require.NoError(t, w2.Append(visit("u1", "alban", true, clock.Now())))
	require.NoError(t, w2.Close())

	st, err := Collect(context.Background(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Entries)
}
