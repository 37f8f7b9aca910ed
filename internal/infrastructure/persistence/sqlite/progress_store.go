package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ProgressStore implements progress.Repository.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a ProgressStore.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Get returns the user's progress.
func (s *ProgressStore) Get(ctx context.Context, userID string) (*progress.Progress, error) {
	var doc string
	var version int64
	err := s.db.db.QueryRowContext(ctx, `SELECT version, doc FROM progress_docs WHERE user_id = ?`, userID).Scan(&version, &doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	var p progress.Progress
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	p.Version = version
	return &p, nil
}

// Save persists p if its version is current.
func (s *ProgressStore) Save(ctx context.Context, p *progress.Progress) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		var stored int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM progress_docs WHERE user_id = ?`, p.UserID).Scan(&stored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read progress version: %w", err)
		}
		if stored != p.Version {
			return shared.ErrProgressVersionStale
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO progress_docs (user_id, version, updated_at, doc) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				version = excluded.version,
				updated_at = excluded.updated_at,
				doc = excluded.doc
		`, p.UserID, p.Version+1, p.UpdatedAt.UTC().Format(time.RFC3339Nano), string(doc))
		if err != nil {
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

// Delete removes the user's progress.
func (s *ProgressStore) Delete(ctx context.Context, userID string) error {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM progress_docs WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrProgressNotFound
	}
	return nil
}
