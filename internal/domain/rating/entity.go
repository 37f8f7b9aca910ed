// Package rating contains the shared view/rating state of rateable content
// (artifacts and VR experiences).
package rating

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// MaxCommentLength is the maximum comment length in characters.
const MaxCommentLength = 1000

// UserRating is the latest rating of one user.
type UserRating struct {
	UserID  string        `json:"user_id"`
	Rating  shared.Rating `json:"rating"`
	Comment string        `json:"comment,omitempty"`
	RatedAt time.Time     `json:"rated_at"`
}

// ContentRating is the aggregate view/rating state of one content entity.
// The average is never stored; it is always computed from Ratings.
type ContentRating struct {
	ContentID string
	Kind      shared.ContentKind

	// ViewCount - total counted views.
	ViewCount int64

	// ViewedBy - users whose view was recorded.
	ViewedBy map[string]struct{}

	// Ratings - latest rating per user.
	Ratings map[string]UserRating

	UpdatedAt time.Time
	Version   int64
}

// New creates empty rating state for a content entity.
func New(contentID string, kind shared.ContentKind, now time.Time) (*ContentRating, error) {
	if err := shared.ValidateID("rating", "New", "content id", contentID); err != nil {
		return nil, err
	}
	if !kind.Rateable() {
		return nil, shared.NewDomainErrorf("rating", "New", shared.ErrInvalidArgument, "content kind %q cannot be rated", kind)
	}
	return &ContentRating{
		ContentID: contentID,
		Kind:      kind,
		ViewedBy:  make(map[string]struct{}),
		Ratings:   make(map[string]UserRating),
		UpdatedAt: now.UTC(),
	}, nil
}

// RecordView counts a view. With unique set, a user's repeated views are
// counted once; anonymous views (empty userID) are always counted.
// It returns whether the view was counted.
func (c *ContentRating) RecordView(userID string, unique bool, at time.Time) bool {
	c.ensureMaps()
	if userID != "" {
		if _, seen := c.ViewedBy[userID]; seen && unique {
			return false
		}
		c.ViewedBy[userID] = struct{}{}
	}
	c.ViewCount++
	c.touch(at)
	return true
}

// Rate stores the user's rating, replacing any earlier one.
// It returns the replaced rating, if any.
func (c *ContentRating) Rate(userID string, value int, comment string, at time.Time) (*UserRating, error) {
	if err := shared.ValidateID("rating", "RecordRating", "user id", userID); err != nil {
		return nil, err
	}
	r, err := shared.NewRating(value)
	if err != nil {
		return nil, err
	}
	comment, err = NormalizeComment(comment)
	if err != nil {
		return nil, err
	}

	c.ensureMaps()
	var prev *UserRating
	if old, ok := c.Ratings[userID]; ok {
		prev = &old
	}
	c.Ratings[userID] = UserRating{
		UserID:  userID,
		Rating:  r,
		Comment: comment,
		RatedAt: at.UTC(),
	}
	c.touch(at)
	return prev, nil
}

// NormalizeComment trims the comment and enforces MaxCommentLength.
func NormalizeComment(comment string) (string, error) {
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return "", shared.ErrCommentTooLong
	}
	return comment, nil
}

// Average returns round(mean(ratings), 1), or 0 without ratings.
func (c *ContentRating) Average() float64 {
	values := make([]shared.Rating, 0, len(c.Ratings))
	for _, r := range c.Ratings {
		values = append(values, r.Rating)
	}
	return shared.AverageRating(values)
}

// RatingCount returns the number of distinct raters.
func (c *ContentRating) RatingCount() int {
	return len(c.Ratings)
}

// Distribution returns the number of ratings per star value (1..5).
func (c *ContentRating) Distribution() map[int]int {
	dist := make(map[int]int, int(shared.MaxRating))
	for star := int(shared.MinRating); star <= int(shared.MaxRating); star++ {
		dist[star] = 0
	}
	for _, r := range c.Ratings {
		dist[r.Rating.Int()]++
	}
	return dist
}

// RatingsByTime returns ratings ordered by time, then user id.
func (c *ContentRating) RatingsByTime() []UserRating {
	out := make([]UserRating, 0, len(c.Ratings))
	for _, r := range c.Ratings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RatedAt.Equal(out[j].RatedAt) {
			return out[i].RatedAt.Before(out[j].RatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// RemoveUser forgets the user's rating and view membership. The view count
// is kept. It returns whether a rating was removed.
func (c *ContentRating) RemoveUser(userID string, at time.Time) bool {
	delete(c.ViewedBy, userID)
	if _, ok := c.Ratings[userID]; !ok {
		return false
	}
	delete(c.Ratings, userID)
	c.touch(at)
	return true
}

// Clone returns a deep copy.
func (c *ContentRating) Clone() *ContentRating {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ViewedBy = make(map[string]struct{}, len(c.ViewedBy))
	for k := range c.ViewedBy {
		cp.ViewedBy[k] = struct{}{}
	}
	cp.Ratings = make(map[string]UserRating, len(c.Ratings))
	for k, v := range c.Ratings {
		cp.Ratings[k] = v
	}
	return &cp
}

func (c *ContentRating) ensureMaps() {
	if c.ViewedBy == nil {
		c.ViewedBy = make(map[string]struct{})
	}
	if c.Ratings == nil {
		c.Ratings = make(map[string]UserRating)
	}
}

func (c *ContentRating) touch(at time.Time) {
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at.UTC()
	}
}
