package rating

import (
	"context"
)

// Repository stores content rating state. Callers serialize access per
// content id through a shared.Locker.
type Repository interface {
	// Get returns a copy of the content's state.
	// Returns shared.ErrContentNotFound when nothing was recorded yet.
	Get(ctx context.Context, contentID string) (*ContentRating, error)

	// Save persists c and increments c.Version.
	Save(ctx context.Context, c *ContentRating) error

	// RatedBy lists the content ids the user has rated or viewed.
	RatedBy(ctx context.Context, userID string) ([]string, error)
}
