package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD VIEW / RECORD RATING COMMANDS
// Shared view counts and ratings of artifacts and VR experiences. Every
// mutation runs under the content lock, independent of user locks.
// ══════════════════════════════════════════════════════════════════════════════

// ViewPolicy decides whether a user's repeated views are counted.
type ViewPolicy int

const (
	// ViewPolicyDefault uses the handler's configured policy.
	ViewPolicyDefault ViewPolicy = iota

	// ViewPolicyUnique counts one view per (user, content).
	ViewPolicyUnique

	// ViewPolicyEvery counts every view.
	ViewPolicyEvery
)

// RecordViewCommand records a view of shared content.
type RecordViewCommand struct {
	// ContentID - artifact or VR experience id.
	ContentID string

	// UserID - the viewer; empty for anonymous views.
	UserID string

	// Policy - unique or unconditional counting.
	Policy ViewPolicy

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate checks the command.
func (c RecordViewCommand) Validate() error {
	if err := shared.ValidateID("rating", "RecordView", "content id", c.ContentID); err != nil {
		return err
	}
	if c.UserID != "" {
		return shared.ValidateID("rating", "RecordView", "user id", c.UserID)
	}
	return nil
}

// RecordViewResult contains the result of recording a view.
type RecordViewResult struct {
	ContentID string
	ViewCount int64
	Counted   bool
}

// RecordRatingCommand rates shared content.
type RecordRatingCommand struct {
	// ContentID - artifact or VR experience id.
	ContentID string

	// UserID - the rater.
	UserID string

	// Rating - 1..5 stars.
	Rating int

	// Comment - optional, trimmed, at most rating.MaxCommentLength characters.
	Comment string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate checks the command.
func (c RecordRatingCommand) Validate() error {
	if err := shared.ValidateID("rating", "RecordRating", "content id", c.ContentID); err != nil {
		return err
	}
	if err := shared.ValidateID("rating", "RecordRating", "user id", c.UserID); err != nil {
		return err
	}
	if _, err := shared.NewRating(c.Rating); err != nil {
		return err
	}
	_, err := rating.NormalizeComment(c.Comment)
	return err
}

// RecordRatingResult contains the result of rating content.
type RecordRatingResult struct {
	ContentID     string
	AverageRating float64
	RatingCount   int

	// Replaced - the user had rated before.
	Replaced bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordContentConfig contains configuration for the handler.
type RecordContentConfig struct {
	// UniqueViewsDefault - policy applied for ViewPolicyDefault.
	UniqueViewsDefault bool
}

// RecordContentHandler handles RecordViewCommand and RecordRatingCommand.
type RecordContentHandler struct {
	ratingRepo rating.Repository
	directory  content.Directory
	locker     shared.Locker
	publisher  shared.EventPublisher

	config  RecordContentConfig
	opts    Options
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewRecordContentHandler creates a new RecordContentHandler.
func NewRecordContentHandler(
	ratingRepo rating.Repository,
	directory content.Directory,
	locker shared.Locker,
	publisher shared.EventPublisher,
	config RecordContentConfig,
	opts Options,
) *RecordContentHandler {
	opts = opts.withDefaults()
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &RecordContentHandler{
		ratingRepo: ratingRepo,
		directory:  directory,
		locker:     locker,
		publisher:  publisher,
		config:     config,
		opts:       opts,
		log:        opts.Logger.With(logger.Component("record_content")),
		metrics:    opts.Metrics,
	}
}

// RecordView counts a view and returns the new view count.
func (h *RecordContentHandler) RecordView(ctx context.Context, cmd RecordViewCommand) (result *RecordViewResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "command.record_view", attribute.String("content_id", cmd.ContentID))
	defer func() {
		observability.EndSpan(span, err)
		h.metrics.ObserveCommand("record_view", time.Since(start), err)
	}()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	unique := h.config.UniqueViewsDefault
	switch cmd.Policy {
	case ViewPolicyUnique:
		unique = true
	case ViewPolicyEvery:
		unique = false
	}

	var counted bool
	c, err := h.mutate(ctx, cmd.ContentID, func(c *rating.ContentRating, now time.Time) error {
		counted = c.RecordView(cmd.UserID, unique, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e := shared.NewContentViewedEvent(cmd.ContentID, cmd.UserID, c.ViewCount, counted, c.UpdatedAt)
	e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(h.log, h.publisher, e)

	return &RecordViewResult{ContentID: cmd.ContentID, ViewCount: c.ViewCount, Counted: counted}, nil
}

// RecordRating stores the user's rating, replacing an earlier one, and
// returns the recomputed average.
func (h *RecordContentHandler) RecordRating(ctx context.Context, cmd RecordRatingCommand) (result *RecordRatingResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "command.record_rating",
		attribute.String("content_id", cmd.ContentID),
		attribute.String("user_id", cmd.UserID),
	)
	defer func() {
		observability.EndSpan(span, err)
		h.metrics.ObserveCommand("record_rating", time.Since(start), err)
	}()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var replaced bool
	c, err := h.mutate(ctx, cmd.ContentID, func(c *rating.ContentRating, now time.Time) error {
		prev, err := c.Rate(cmd.UserID, cmd.Rating, cmd.Comment, now)
		replaced = prev != nil
		return err
	})
	if err != nil {
		return nil, err
	}

	avg := c.Average()
	e := shared.NewContentRatedEvent(cmd.ContentID, cmd.UserID, cmd.Rating, avg, c.UpdatedAt)
	e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(h.log, h.publisher, e)

	h.log.Debug("content rated",
		logger.ContentID(cmd.ContentID),
		logger.UserID(cmd.UserID),
		logger.Int("rating", cmd.Rating),
		logger.AverageRating(avg),
	)

	return &RecordRatingResult{
		ContentID:     cmd.ContentID,
		AverageRating: avg,
		RatingCount:   c.RatingCount(),
		Replaced:      replaced,
	}, nil
}

// RemoveUser drops userID's rating and view membership from one content
// entity. It returns whether a rating was removed.
func (h *RecordContentHandler) RemoveUser(ctx context.Context, contentID, userID string) (bool, error) {
	unlock, err := acquire(ctx, h.locker, h.metrics, scopeContent, shared.ContentLockKey(contentID))
	if err != nil {
		return false, fmt.Errorf("remove_rating: %w", err)
	}
	defer unlock()

	c, err := h.ratingRepo.Get(ctx, contentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove_rating: failed to load rating: %w", err)
	}

	_, viewed := c.ViewedBy[userID]
	removed := c.RemoveUser(userID, h.opts.Clock.Now())
	if !removed && !viewed {
		return false, nil
	}
	if err := h.ratingRepo.Save(ctx, c); err != nil {
		return false, fmt.Errorf("remove_rating: failed to save rating: %w", err)
	}
	return removed, nil
}

// mutate loads or creates the content's rating state under its lock,
// applies fn and saves the result.
func (h *RecordContentHandler) mutate(ctx context.Context, contentID string, fn func(*rating.ContentRating, time.Time) error) (*rating.ContentRating, error) {
	item, err := h.directory.Lookup(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !item.Kind.Rateable() {
		return nil, shared.NewDomainErrorf("rating", "Record", shared.ErrInvalidArgument, "%s %q cannot be viewed or rated", item.Kind, contentID)
	}

	unlock, err := acquire(ctx, h.locker, h.metrics, scopeContent, shared.ContentLockKey(contentID))
	if err != nil {
		return nil, fmt.Errorf("record_content: %w", err)
	}
	defer unlock()

	now := h.opts.Clock.Now().UTC()

	c, err := h.ratingRepo.Get(ctx, contentID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("record_content: failed to load rating: %w", err)
		}
		if c, err = rating.New(contentID, item.Kind, now); err != nil {
			return nil, err
		}
	}

	if err := fn(c, now); err != nil {
		return nil, err
	}
	if err := h.ratingRepo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("record_content: failed to save rating: %w", err)
	}
	return c, nil
}
