package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// RatingStore implements rating.Repository. rating_members mirrors the
// users referenced by each document so RatedBy is an index lookup.
type RatingStore struct {
	db *DB
}

// NewRatingStore creates a RatingStore.
func NewRatingStore(db *DB) *RatingStore {
	return &RatingStore{db: db}
}

// Get returns the content's rating state.
func (s *RatingStore) Get(ctx context.Context, contentID string) (*rating.ContentRating, error) {
	var doc string
	var version int64
	err := s.db.db.QueryRowContext(ctx, `SELECT version, doc FROM rating_docs WHERE content_id = ?`, contentID).Scan(&version, &doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to get content rating: %w", err)
	}

	var c rating.ContentRating
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to decode content rating: %w", err)
	}
	if c.ViewedBy == nil {
		c.ViewedBy = make(map[string]struct{})
	}
	if c.Ratings == nil {
		c.Ratings = make(map[string]rating.UserRating)
	}
	c.Version = version
	return &c, nil
}

// Save persists c if its version is current.
func (s *RatingStore) Save(ctx context.Context, c *rating.ContentRating) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode content rating: %w", err)
	}

	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		var stored int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM rating_docs WHERE content_id = ?`, c.ContentID).Scan(&stored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read rating version: %w", err)
		}
		if stored != c.Version {
			return shared.NewDomainError("rating", "Save", shared.ErrConcurrentModification, "content rating version is stale")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rating_docs (content_id, kind, version, doc) VALUES (?, ?, ?, ?)
			ON CONFLICT (content_id) DO UPDATE SET version = excluded.version, doc = excluded.doc
		`, c.ContentID, string(c.Kind), c.Version+1, string(doc)); err != nil {
			return fmt.Errorf("failed to write content rating: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rating_members WHERE content_id = ?`, c.ContentID); err != nil {
			return fmt.Errorf("failed to reset rating members: %w", err)
		}
		for _, userID := range members(c) {
			if _, err := tx.ExecContext(ctx, `INSERT INTO rating_members (content_id, user_id) VALUES (?, ?)`, c.ContentID, userID); err != nil {
				return fmt.Errorf("failed to write rating member: %w", err)
			}
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
func (s *RatingStore) RatedBy(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT content_id FROM rating_members WHERE user_id = ? ORDER BY content_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rated content: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan rated content: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func members(c *rating.ContentRating) []string {
	seen := make(map[string]struct{}, len(c.ViewedBy)+len(c.Ratings))
	out := make([]string, 0, len(seen))
	for id := range c.ViewedBy {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for id := range c.Ratings {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
