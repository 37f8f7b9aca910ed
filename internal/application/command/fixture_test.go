package command

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/internal/application/saga"
	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/catalog"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/locks"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/memory"
	"github.com/heritage-hub/heritage-engine/pkg/timeutil"
)

var testNow = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	clock     *timeutil.FixedClock
	progress  *memory.ProgressStore
	ratings   *memory.RatingStore
	counters  *memory.EarnCounterStore
	directory *memory.Directory
	cache     *memory.SummaryCache
	publisher *recordingPublisher
	catalog   *achievement.Catalog

	content  *RecordContentHandler
	activity *RecordActivityHandler
	grant    *GrantAchievementHandler
	delete   *DeleteProgressHandler
}

// newFixture wires every handler against in-memory stores and the embedded
// default catalog.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	loaded, err := catalog.Default()
	require.NoError(t, err)

	f := &fixture{
		clock:     timeutil.NewFixedClock(testNow),
		progress:  memory.NewProgressStore(),
		ratings:   memory.NewRatingStore(),
		counters:  memory.NewEarnCounterStore(),
		directory: memory.NewDirectory(loaded.Items),
		cache:     memory.NewSummaryCache(),
		publisher: &recordingPublisher{},
		catalog:   loaded.Achievements,
	}

	locker := locks.NewKeyedMutex()
	opts := Options{Clock: f.clock}
	flow := saga.NewAchievementFlow(
		achievement.NewEvaluator(f.catalog),
		saga.NewAwardLedger(f.catalog, f.counters),
		nil,
	)

	f.content = NewRecordContentHandler(f.ratings, f.directory, locker, f.publisher, RecordContentConfig{UniqueViewsDefault: true}, opts)
	f.activity = NewRecordActivityHandler(f.progress, f.directory, locker, flow, f.cache, f.publisher, f.content, DefaultRecordActivityConfig(), opts)
	f.grant = NewGrantAchievementHandler(f.progress, locker, flow, f.cache, f.publisher, opts)
	f.delete = NewDeleteProgressHandler(f.progress, f.ratings, f.content, locker, f.cache, f.publisher, opts)
	return f
}

// tribeIDs returns the first n tribe ids of the default catalog.
func (f *fixture) tribeIDs(t *testing.T, n int) []string {
	t.Helper()
	var ids []string
	loaded, err := catalog.Default()
	require.NoError(t, err)
	for _, item := range loaded.Items {
		if item.Kind == shared.ContentTribe && len(ids) < n {
			ids = append(ids, item.ID)
		}
	}
	require.Len(t, ids, n)
	return ids
}
