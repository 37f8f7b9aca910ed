package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EarnCounterStore implements achievement.EarnCounter with single-statement
// upserts.
type EarnCounterStore struct {
	db *DB
}

// NewEarnCounterStore creates an EarnCounterStore.
func NewEarnCounterStore(db *DB) *EarnCounterStore {
	return &EarnCounterStore{db: db}
}

// IncrementEarned adds one to the counter and returns the new total.
func (s *EarnCounterStore) IncrementEarned(ctx context.Context, achievementID string) (int64, error) {
	var total int64
	err := s.db.db.QueryRowContext(ctx, `
		INSERT INTO achievement_counters (achievement_id, total_earned) VALUES (?, 1)
		ON CONFLICT (achievement_id) DO UPDATE SET total_earned = total_earned + 1
		RETURNING total_earned
	`, achievementID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to increment earn counter: %w", err)
	}
	return total, nil
}

// TotalEarned returns the counter, 0 if never incremented.
func (s *EarnCounterStore) TotalEarned(ctx context.Context, achievementID string) (int64, error) {
	var total int64
	err := s.db.db.QueryRowContext(ctx, `SELECT total_earned FROM achievement_counters WHERE achievement_id = ?`, achievementID).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get earn counter: %w", err)
	}
	return total, nil
}

// AllTotals returns every non-zero counter.
func (s *EarnCounterStore) AllTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT achievement_id, total_earned FROM achievement_counters WHERE total_earned > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query earn counters: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var id string
		var total int64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("failed to scan earn counter: %w", err)
		}
		totals[id] = total
	}
	return totals, rows.Err()
}
