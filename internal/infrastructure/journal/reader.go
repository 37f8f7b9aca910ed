package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// Segments lists the segment files of dir in chronological order. Hour keys
// sort lexicographically.
func Segments(dir, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Replay calls fn for every entry of every segment, oldest first. It stops
// at the first error from fn or ctx.
func Replay(ctx context.Context, dir, prefix string, fn func(Entry) error) error {
	paths, err := Segments(dir, prefix)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := replayFile(ctx, path, fn); err != nil {
			return fmt.Errorf("journal: %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func replayFile(ctx context.Context, path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Stats summarizes a replay.
type Stats struct {
	Entries int                      `json:"entries"`
	ByType  map[shared.EventType]int `json:"by_type"`

	// DistinctActivities - unique idempotency keys.
	DistinctActivities int `json:"distinct_activities"`

	// DuplicateActivities - activity entries whose key was already seen.
	DuplicateActivities int `json:"duplicate_activities"`
}

// Collect replays dir and returns its stats.
func Collect(ctx context.Context, dir, prefix string) (Stats, error) {
	st := Stats{ByType: make(map[shared.EventType]int)}
	seen := make(map[string]struct{})

	err := Replay(ctx, dir, prefix, func(e Entry) error {
		st.Entries++
		st.ByType[e.Event.Type]++
		if e.IdempotencyKey == "" {
			return nil
		}
		if _, dup := seen[e.IdempotencyKey]; dup {
			st.DuplicateActivities++
			return nil
		}
		seen[e.IdempotencyKey] = struct{}{}
		st.DistinctActivities++
		return nil
	})
	return st, err
}
