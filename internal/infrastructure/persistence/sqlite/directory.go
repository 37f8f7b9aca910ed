package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// Directory implements content.Directory over the content_items table.
type Directory struct {
	db *DB
}

// NewDirectory creates a Directory.
func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

// Lookup returns the item with the given id.
func (d *Directory) Lookup(ctx context.Context, id string) (content.Item, error) {
	var it content.Item
	var kind string
	err := d.db.db.QueryRowContext(ctx, `SELECT id, kind, title, category FROM content_items WHERE id = ?`, id).
		Scan(&it.ID, &kind, &it.Title, &it.Category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return content.Item{}, shared.ErrContentNotFound
		}
		return content.Item{}, fmt.Errorf("failed to look up content: %w", err)
	}
	it.Kind = shared.ContentKind(kind)
	return it, nil
}

// TotalTribes returns the number of known tribes.
func (d *Directory) TotalTribes(ctx context.Context) (int, error) {
	var n int
	if err := d.db.db.QueryRowContext(ctx, `SELECT count(*) FROM content_items WHERE kind = 'tribe'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tribes: %w", err)
	}
	return n, nil
}

// Sync upserts items.
func (d *Directory) Sync(ctx context.Context, items []content.Item) (int, error) {
	err := d.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO content_items (id, kind, title, category) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET kind = excluded.kind, title = excluded.title, category = excluded.category
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, it := range items {
			if _, err := stmt.ExecContext(ctx, it.ID, string(it.Kind), it.Title, it.Category); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sync content items: %w", err)
	}
	return len(items), nil
}
