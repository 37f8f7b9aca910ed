package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATING REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RatingRepository implements rating.Repository for PostgreSQL.
type RatingRepository struct {
	conn *Connection
}

// NewRatingRepository creates a new RatingRepository.
func NewRatingRepository(conn *Connection) *RatingRepository {
	return &RatingRepository{conn: conn}
}

// Get returns the rating state of a content entity.
func (r *RatingRepository) Get(ctx context.Context, contentID string) (*rating.ContentRating, error) {
	c := &rating.ContentRating{
		ContentID: contentID,
		ViewedBy:  make(map[string]struct{}),
		Ratings:   make(map[string]rating.UserRating),
	}

	var kind string
	err := r.conn.QueryRow(ctx, `
		SELECT kind, view_count, version, updated_at
		FROM content_ratings
		WHERE content_id = $1
	`, contentID).Scan(&kind, &c.ViewCount, &c.Version, &c.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to get content rating: %w", err)
	}
	c.Kind = shared.ContentKind(kind)
	c.UpdatedAt = c.UpdatedAt.UTC()

	viewers, err := r.conn.Query(ctx, `SELECT user_id FROM content_viewers WHERE content_id = $1`, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query viewers: %w", err)
	}
	ids, err := pgx.CollectRows(viewers, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan viewers: %w", err)
	}
	for _, id := range ids {
		c.ViewedBy[id] = struct{}{}
	}

	rows, err := r.conn.Query(ctx, `
		SELECT user_id, rating, comment, rated_at
		FROM user_ratings
		WHERE content_id = $1
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	ratings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rating.UserRating, error) {
		var ur rating.UserRating
		var value int16
		err := row.Scan(&ur.UserID, &value, &ur.Comment, &ur.RatedAt)
		ur.Rating = shared.Rating(value)
		ur.RatedAt = ur.RatedAt.UTC()
		return ur, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ratings: %w", err)
	}
	for _, ur := range ratings {
		c.Ratings[ur.UserID] = ur
	}

	return c, nil
}

// Save writes the full state of c. Ratings and viewers are replaced, since
// users may be removed on account deletion.
func (r *RatingRepository) Save(ctx context.Context, c *rating.ContentRating) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var stored int64
		err := tx.QueryRow(ctx, `SELECT version FROM content_ratings WHERE content_id = $1 FOR UPDATE`, c.ContentID).Scan(&stored)
		switch {
		case IsNoRows(err):
			stored = 0
		case err != nil:
			return fmt.Errorf("failed to lock content rating: %w", err)
		}
		if stored != c.Version {
			return shared.NewDomainError("rating", "Save", shared.ErrConcurrentModification, "content rating version is stale")
		}

		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO content_ratings (content_id, kind, view_count, version, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (content_id) DO UPDATE SET
				view_count = EXCLUDED.view_count,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
		`, c.ContentID, string(c.Kind), c.ViewCount, c.Version+1, c.UpdatedAt)
		batch.Queue(`DELETE FROM content_viewers WHERE content_id = $1`, c.ContentID)
		batch.Queue(`DELETE FROM user_ratings WHERE content_id = $1`, c.ContentID)
		for userID := range c.ViewedBy {
			batch.Queue(`INSERT INTO content_viewers (content_id, user_id) VALUES ($1, $2)`, c.ContentID, userID)
		}
		for _, ur := range c.Ratings {
			batch.Queue(`
				INSERT INTO user_ratings (content_id, user_id, rating, comment, rated_at)
				VALUES ($1, $2, $3, $4, $5)
			`, c.ContentID, ur.UserID, int16(ur.Rating), ur.Comment, ur.RatedAt)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write content rating: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.Version++
	return nil
}

// RatedBy lists content the user rated or viewed.
func (r *RatingRepository) RatedBy(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT content_id FROM user_ratings WHERE user_id = $1
		UNION
		SELECT content_id FROM content_viewers WHERE user_id = $1
		ORDER BY content_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rated content: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan rated content: %w", err)
	}
	return ids, nil
}
