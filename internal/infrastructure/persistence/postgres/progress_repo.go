package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
// Ledger sets are append-only child tables; insertion order is their seq.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Get returns the user's progress.
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*progress.Progress, error) {
	p := &progress.Progress{UserID: userID}

	err := r.conn.QueryRow(ctx, `
		SELECT total_learning_minutes, version, created_at, updated_at
		FROM user_progress
		WHERE user_id = $1
	`, userID).Scan(&p.TotalLearningMinutes, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	if p.TribesVisited, err = r.loadItems(ctx, "tribe_visits", "tribe_id", userID); err != nil {
		return nil, err
	}
	if p.ArtifactsViewed, err = r.loadItems(ctx, "artifact_views", "artifact_id", userID); err != nil {
		return nil, err
	}
	if p.VRCompletions, err = r.loadVR(ctx, userID); err != nil {
		return nil, err
	}
	if p.Earned, err = r.loadEarned(ctx, userID); err != nil {
		return nil, err
	}

	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (r *ProgressRepository) loadItems(ctx context.Context, table, column, userID string) ([]progress.VisitedItem, error) {
	query := fmt.Sprintf(`SELECT %s, first_at FROM %s WHERE user_id = $1 ORDER BY seq`, column, table)

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (progress.VisitedItem, error) {
		var it progress.VisitedItem
		err := row.Scan(&it.ID, &it.FirstAt)
		it.FirstAt = it.FirstAt.UTC()
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	return items, nil
}

func (r *ProgressRepository) loadVR(ctx context.Context, userID string) ([]progress.VRCompletion, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT experience_id, score, completed_at
		FROM vr_completions
		WHERE user_id = $1
		ORDER BY seq
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vr completions: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (progress.VRCompletion, error) {
		var c progress.VRCompletion
		var score int16
		if err := row.Scan(&c.ExperienceID, &score, &c.CompletedAt); err != nil {
			return c, fmt.Errorf("failed to scan vr completion: %w", err)
		}
		c.Score = shared.Score(score)
		c.CompletedAt = c.CompletedAt.UTC()
		return c, nil
	})
}

func (r *ProgressRepository) loadEarned(ctx context.Context, userID string) ([]progress.EarnedAchievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT achievement_id, earned_at
		FROM earned_achievements
		WHERE user_id = $1
		ORDER BY seq
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query earned achievements: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (progress.EarnedAchievement, error) {
		var e progress.EarnedAchievement
		err := row.Scan(&e.ID, &e.EarnedAt)
		e.EarnedAt = e.EarnedAt.UTC()
		return e, err
	})
}

// Save persists p in one transaction. The user row is locked with
// SELECT ... FOR UPDATE so concurrent writers from other instances queue up,
// and the stored version must match p.Version.
func (r *ProgressRepository) Save(ctx context.Context, p *progress.Progress) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var stored int64
		err := tx.QueryRow(ctx, `SELECT version FROM user_progress WHERE user_id = $1 FOR UPDATE`, p.UserID).Scan(&stored)
		switch {
		case IsNoRows(err):
			stored = 0
		case err != nil:
			return fmt.Errorf("failed to lock progress row: %w", err)
		}
		if stored != p.Version {
			return shared.ErrProgressVersionStale
		}

		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO user_progress (user_id, total_learning_minutes, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				total_learning_minutes = EXCLUDED.total_learning_minutes,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
		`, p.UserID, p.TotalLearningMinutes, p.Version+1, p.CreatedAt, p.UpdatedAt)

		for _, it := range p.TribesVisited {
			batch.Queue(`
				INSERT INTO tribe_visits (user_id, tribe_id, first_at) VALUES ($1, $2, $3)
				ON CONFLICT (user_id, tribe_id) DO NOTHING
			`, p.UserID, it.ID, it.FirstAt)
		}
		for _, it := range p.ArtifactsViewed {
			batch.Queue(`
				INSERT INTO artifact_views (user_id, artifact_id, first_at) VALUES ($1, $2, $3)
				ON CONFLICT (user_id, artifact_id) DO NOTHING
			`, p.UserID, it.ID, it.FirstAt)
		}
		for _, c := range p.VRCompletions {
			batch.Queue(`
				INSERT INTO vr_completions (user_id, experience_id, score, completed_at) VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, experience_id) DO UPDATE SET
					score = EXCLUDED.score,
					completed_at = EXCLUDED.completed_at
				WHERE EXCLUDED.score > vr_completions.score
			`, p.UserID, c.ExperienceID, int16(c.Score), c.CompletedAt)
		}
		for _, e := range p.Earned {
			batch.Queue(`
				INSERT INTO earned_achievements (user_id, achievement_id, earned_at) VALUES ($1, $2, $3)
				ON CONFLICT (user_id, achievement_id) DO NOTHING
			`, p.UserID, e.ID, e.EarnedAt)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Version++
	return nil
}

// Delete removes the user's progress; child rows cascade.
func (r *ProgressRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM user_progress WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrProgressNotFound
	}
	return nil
}
