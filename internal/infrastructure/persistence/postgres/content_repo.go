package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ContentDirectory implements content.Directory over the content_items table.
type ContentDirectory struct {
	conn *Connection
}

// NewContentDirectory creates a new ContentDirectory.
func NewContentDirectory(conn *Connection) *ContentDirectory {
	return &ContentDirectory{conn: conn}
}

// Lookup returns the directory entry for id.
func (d *ContentDirectory) Lookup(ctx context.Context, id string) (content.Item, error) {
	var it content.Item
	var kind string
	err := d.conn.QueryRow(ctx, `SELECT id, kind, title, category FROM content_items WHERE id = $1`, id).
		Scan(&it.ID, &kind, &it.Title, &it.Category)
	if err != nil {
		if IsNoRows(err) {
			return content.Item{}, shared.ErrContentNotFound
		}
		return content.Item{}, fmt.Errorf("failed to look up content: %w", err)
	}
	it.Kind = shared.ContentKind(kind)
	return it, nil
}

// TotalTribes returns the number of known tribes.
func (d *ContentDirectory) TotalTribes(ctx context.Context) (int, error) {
	var n int
	if err := d.conn.QueryRow(ctx, `SELECT count(*) FROM content_items WHERE kind = 'tribe'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tribes: %w", err)
	}
	return n, nil
}

// Sync upserts items, so the table mirrors the loaded catalog. Items missing
// from the catalog are kept; progress may still reference them.
func (d *ContentDirectory) Sync(ctx context.Context, items []content.Item) (int, error) {
	err := d.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, it := range items {
			batch.Queue(`
				INSERT INTO content_items (id, kind, title, category) VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET
					kind = EXCLUDED.kind,
					title = EXCLUDED.title,
					category = EXCLUDED.category
			`, it.ID, string(it.Kind), it.Title, it.Category)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sync content items: %w", err)
	}
	return len(items), nil
}
