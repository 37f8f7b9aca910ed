package query

import (
	"context"
	"fmt"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CONTENT RATING QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetContentRatingQuery asks for the rating state of one content entity.
type GetContentRatingQuery struct {
	ContentID string

	// IncludeRatings - list individual ratings, oldest first.
	IncludeRatings bool
}

// RatingDTO is one user's rating.
type RatingDTO struct {
	UserID  string    `json:"user_id"`
	Rating  int       `json:"rating"`
	Comment string    `json:"comment,omitempty"`
	RatedAt time.Time `json:"rated_at"`
}

// ContentRatingDTO is the rating state of one content entity. Content that
// was never viewed or rated reports zeros.
type ContentRatingDTO struct {
	ContentID     string      `json:"content_id"`
	Kind          string      `json:"kind"`
	Title         string      `json:"title"`
	Category      string      `json:"category,omitempty"`
	ViewCount     int64       `json:"view_count"`
	AverageRating float64     `json:"average_rating"`
	RatingCount   int         `json:"rating_count"`
	Distribution  map[int]int `json:"distribution"`
	Ratings       []RatingDTO `json:"ratings,omitempty"`
}

// GetContentRatingHandler handles GetContentRatingQuery.
type GetContentRatingHandler struct {
	ratingRepo rating.Repository
	directory  content.Directory
}

// NewGetContentRatingHandler creates a new handler.
func NewGetContentRatingHandler(ratingRepo rating.Repository, directory content.Directory) *GetContentRatingHandler {
	return &GetContentRatingHandler{ratingRepo: ratingRepo, directory: directory}
}

// Handle returns the rating state. Unknown content is shared.ErrNotFound;
// tribes are shared.ErrInvalidArgument since they carry no ratings.
func (h *GetContentRatingHandler) Handle(ctx context.Context, q GetContentRatingQuery) (*ContentRatingDTO, error) {
	if err := shared.ValidateID("query", "GetContentRating", "content id", q.ContentID); err != nil {
		return nil, err
	}

	item, err := h.directory.Lookup(ctx, q.ContentID)
	if err != nil {
		return nil, err
	}
	if !item.Kind.Rateable() {
		return nil, shared.NewDomainErrorf("query", "GetContentRating", shared.ErrInvalidArgument, "%s %q has no ratings", item.Kind, q.ContentID)
	}

	c, err := h.ratingRepo.Get(ctx, q.ContentID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("get_content_rating: failed to load rating: %w", err)
		}
		if c, err = rating.New(q.ContentID, item.Kind, time.Time{}); err != nil {
			return nil, err
		}
	}

	dto := &ContentRatingDTO{
		ContentID:     item.ID,
		Kind:          item.Kind.String(),
		Title:         item.Title,
		Category:      item.Category,
		ViewCount:     c.ViewCount,
		AverageRating: c.Average(),
		RatingCount:   c.RatingCount(),
		Distribution:  c.Distribution(),
	}
	if q.IncludeRatings {
		for _, r := range c.RatingsByTime() {
			dto.Ratings = append(dto.Ratings, RatingDTO{
				UserID:  r.UserID,
				Rating:  r.Rating.Int(),
				Comment: r.Comment,
				RatedAt: r.RatedAt,
			})
		}
	}
	return dto, nil
}
