package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE PROGRESS COMMAND
// Account deletion: the progress is hard deleted and the user's ratings and
// views are removed from every content entity, so averages follow.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteProgressCommand deletes a user's progress.
type DeleteProgressCommand struct {
	UserID        string
	CorrelationID string
}

// Validate checks the command.
func (c DeleteProgressCommand) Validate() error {
	return shared.ValidateID("progress", "Delete", "user id", c.UserID)
}

// DeleteProgressResult contains the result of a deletion.
type DeleteProgressResult struct {
	// ProgressDeleted - false when the user had no progress.
	ProgressDeleted bool

	// RatingsRemoved - content ids whose ratings by the user were removed.
	RatingsRemoved []string
}

// DeleteProgressHandler handles DeleteProgressCommand.
type DeleteProgressHandler struct {
	progressRepo progress.Repository
	ratingRepo   rating.Repository
	ratings      *RecordContentHandler
	locker       shared.Locker
	cache        progress.SummaryCache
	publisher    shared.EventPublisher

	opts    Options
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewDeleteProgressHandler creates a new DeleteProgressHandler.
func NewDeleteProgressHandler(
	progressRepo progress.Repository,
	ratingRepo rating.Repository,
	ratings *RecordContentHandler,
	locker shared.Locker,
	cache progress.SummaryCache,
	publisher shared.EventPublisher,
	opts Options,
) *DeleteProgressHandler {
	opts = opts.withDefaults()
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &DeleteProgressHandler{
		progressRepo: progressRepo,
		ratingRepo:   ratingRepo,
		ratings:      ratings,
		locker:       locker,
		cache:        cache,
		publisher:    publisher,
		opts:         opts,
		log:          opts.Logger.With(logger.Component("delete_progress")),
		metrics:      opts.Metrics,
	}
}

// Handle deletes the progress, then the user's ratings one content at a
// time. Returns shared.ErrProgressNotFound when the user left no trace.
func (h *DeleteProgressHandler) Handle(ctx context.Context, cmd DeleteProgressCommand) (result *DeleteProgressResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "command.delete_progress", attribute.String("user_id", cmd.UserID))
	defer func() {
		observability.EndSpan(span, err)
		h.metrics.ObserveCommand("delete_progress", time.Since(start), err)
	}()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result = &DeleteProgressResult{}
	result.ProgressDeleted, err = h.deleteProgress(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	rated, err := h.ratingRepo.RatedBy(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("delete_progress: failed to list ratings: %w", err)
	}
	if !result.ProgressDeleted && len(rated) == 0 {
		return nil, shared.ErrProgressNotFound
	}

	// Content locks are taken one at a time, after the user lock was released.
	for _, contentID := range rated {
		removed, err := h.ratings.RemoveUser(ctx, contentID, cmd.UserID)
		if err != nil {
			return nil, err
		}
		if removed {
			result.RatingsRemoved = append(result.RatingsRemoved, contentID)
		}
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, cmd.UserID); err != nil {
			h.log.Warn("failed to invalidate summary cache", logger.UserID(cmd.UserID), logger.Err(err))
		}
	}

	e := shared.NewProgressDeletedEvent(cmd.UserID, result.RatingsRemoved, h.opts.Clock.Now().UTC())
	e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(h.log, h.publisher, e)

	h.log.Info("progress deleted",
		logger.UserID(cmd.UserID),
		logger.Int("ratings_removed", len(result.RatingsRemoved)),
		logger.CorrelationID(cmd.CorrelationID),
	)
	return result, nil
}

func (h *DeleteProgressHandler) deleteProgress(ctx context.Context, userID string) (bool, error) {
	unlock, err := acquire(ctx, h.locker, h.metrics, scopeUser, shared.UserLockKey(userID))
	if err != nil {
		return false, fmt.Errorf("delete_progress: %w", err)
	}
	defer unlock()

	if err := h.progressRepo.Delete(ctx, userID); err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete_progress: failed to delete progress: %w", err)
	}
	return true, nil
}
