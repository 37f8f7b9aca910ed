package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EarnCounterRepository implements achievement.EarnCounter for PostgreSQL.
// Increments are a single upsert, atomic without application locks.
type EarnCounterRepository struct {
	conn *Connection
}

// NewEarnCounterRepository creates a new EarnCounterRepository.
func NewEarnCounterRepository(conn *Connection) *EarnCounterRepository {
	return &EarnCounterRepository{conn: conn}
}

// IncrementEarned adds one to the counter and returns the new total.
func (r *EarnCounterRepository) IncrementEarned(ctx context.Context, achievementID string) (int64, error) {
	var total int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO achievement_counters (achievement_id, total_earned, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (achievement_id) DO UPDATE SET
			total_earned = achievement_counters.total_earned + 1,
			updated_at = NOW()
		RETURNING total_earned
	`, achievementID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to increment earn counter: %w", err)
	}
	return total, nil
}

// TotalEarned returns the counter, 0 if never incremented.
func (r *EarnCounterRepository) TotalEarned(ctx context.Context, achievementID string) (int64, error) {
	var total int64
	err := r.conn.QueryRow(ctx, `SELECT total_earned FROM achievement_counters WHERE achievement_id = $1`, achievementID).Scan(&total)
	if err != nil {
		if IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get earn counter: %w", err)
	}
	return total, nil
}

// AllTotals returns every non-zero counter.
func (r *EarnCounterRepository) AllTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := r.conn.Query(ctx, `SELECT achievement_id, total_earned FROM achievement_counters WHERE total_earned > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query earn counters: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	var id string
	var total int64
	_, err = pgx.ForEachRow(rows, []any{&id, &total}, func() error {
		totals[id] = total
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan earn counters: %w", err)
	}
	return totals, nil
}
