package progress

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence (memory, sqlite, postgres).
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores progress aggregates. Callers serialize access per user
// through a shared.Locker; Save additionally rejects stale versions.
type Repository interface {
	// Get returns a copy of the user's progress.
	// Returns shared.ErrProgressNotFound if the user has no progress yet.
	Get(ctx context.Context, userID string) (*Progress, error)

	// Save persists p. p.Version must equal the stored version (0 for new
	// progress); on success p.Version is incremented.
	// Returns shared.ErrProgressVersionStale on a version mismatch.
	Save(ctx context.Context, p *Progress) error

	// Delete removes the user's progress.
	// Returns shared.ErrProgressNotFound if there is nothing to delete.
	Delete(ctx context.Context, userID string) error
}

// SummaryCache caches derived summaries. A cache miss is (nil, false, nil).
type SummaryCache interface {
	GetSummary(ctx context.Context, userID string) (*Summary, bool, error)
	SetSummary(ctx context.Context, s *Summary) error
	Invalidate(ctx context.Context, userID string) error
}
