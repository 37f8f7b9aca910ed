package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-hub/heritage-engine/config"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/journal"
)

var testTime = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

type publisherFunc func(shared.Event) error

func (f publisherFunc) Publish(e shared.Event) error { return f(e) }

// run executes the CLI with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func memoryEnv(t *testing.T) string {
	t.Helper()
	journalDir := t.TempDir()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("JOURNAL_DIR", journalDir)
	t.Setenv("LOG_LEVEL", "error")
	return journalDir
}

func TestCLI_RecordVR(t *testing.T) {
	memoryEnv(t)

	out, err := run(t, "record", "vr", "aigerim", "yurt_assembly", "--score", "80")
	require.NoError(t, err)

	var result struct {
		Changed      bool
		NewlyGranted []string
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"vr_pioneer"}, result.NewlyGranted)
}

func TestCLI_RejectsInvalidInput(t *testing.T) {
	memoryEnv(t)

	_, err := run(t, "record", "vr", "aigerim", "yurt_assembly", "--score", "101")
	require.Error(t, err)
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = run(t, "rate", "aigerim", "dombra", "five")
	assert.Error(t, err)
}

func TestCLI_BatchAndJournal(t *testing.T) {
	journalDir := memoryEnv(t)

	batch := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(batch, []byte(`
- {user_id: aigerim, kind: tribe_visit, item_id: adai}
- {user_id: aigerim, kind: vr_completion, item_id: yurt_assembly, score: 90}
- {user_id: daulet, kind: tribe_visit, item_id: atlantis}
`), 0o644))

	out, err := run(t, "record", "batch", "--file", batch)
	require.Error(t, err, "a failed item fails the command")

	var result struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
		Items     []struct {
			Index int    `json:"index"`
			Error string `json:"error"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 3)
	assert.NotEmpty(t, result.Items[2].Error)

	stats, err := journal.Collect(t.Context(), journalDir, journal.DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, 2, stats.ByType[shared.EventAchievementGranted])
	assert.Equal(t, 2, stats.DistinctActivities)

	out, err = run(t, "journal", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"entries": 4`)
}

func TestCLI_CatalogValidate(t *testing.T) {
	memoryEnv(t)

	dir := t.TempDir()
	good := filepath.Join(dir, "catalog.yaml")
	out, err := run(t, "catalog", "default")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(good, []byte(out), 0o644))

	out, err = run(t, "catalog", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "20 tribes")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("achievements: 42\n"), 0o644))
	_, err = run(t, "catalog", "validate", bad)
	assert.Error(t, err)
}

func TestDropPublisher(t *testing.T) {
	var got []shared.EventType
	next := publisherFunc(func(e shared.Event) error {
		got = append(got, e.EventType())
		return nil
	})
	p := dropPublisher{next: next, drop: shared.EventAchievementGranted}

	require.NoError(t, p.Publish(shared.NewAchievementGrantedEvent("u1", "vr_pioneer", 25, "common", 1, testTime)))
	require.NoError(t, p.Publish(shared.NewContentRatedEvent("dombra", "u1", 4, 4, testTime)))
	assert.Equal(t, []shared.EventType{shared.EventContentRated}, got)
}

func TestServe_SchedulesRedrive(t *testing.T) {
	memoryEnv(t)
	t.Setenv("EVENT_REDRIVE_INTERVAL", "50ms")

	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := newApp(t.Context(), cfg)
	require.NoError(t, err)
	defer a.close()

	sched, err := startScheduler(t.Context(), a)
	require.NoError(t, err)
	require.NotNil(t, sched)
	defer func() { _ = sched.Stop() }()

	infos := sched.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "redrive_dead_letters", infos[0].Name)
	assert.Equal(t, "retry_earn_counters", infos[1].Name)

	for _, name := range []string{"redrive_dead_letters", "retry_earn_counters"} {
		result, err := sched.RunNow(t.Context(), name)
		require.NoError(t, err, "an empty queue is not a failure")
		assert.True(t, result.Success(), name)
	}

	status := a.health.Check(t.Context())
	assert.True(t, status.Healthy)

	a.cfg.Engine.RedriveInterval = 0
	none, err := startScheduler(t.Context(), a)
	require.NoError(t, err)
	assert.Nil(t, none)
}
