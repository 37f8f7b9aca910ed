package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/heritage-hub/heritage-engine/internal/application/saga"
	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Records one exploration activity: tribe visit, artifact view, VR
// completion or learning time. Achievement evaluation always follows, so
// the result carries the newly granted achievements.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	// UserID - the acting user.
	UserID string

	// Kind - which activity.
	Kind progress.ActivityKind

	// ItemID - tribe, artifact or VR experience id; empty for learning time.
	ItemID string

	// Score - VR completion score, 0..100.
	Score int

	// Minutes - learning time, > 0.
	Minutes int

	// SubmitFeedback - also rate the VR experience with the score mapped to
	// 1..5 stars.
	SubmitFeedback bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate checks the command before any state is touched.
func (c RecordActivityCommand) Validate() error {
	if err := shared.ValidateID("progress", "Record", "user id", c.UserID); err != nil {
		return err
	}

	switch c.Kind {
	case progress.KindTribeVisit, progress.KindArtifactView:
		return shared.ValidateID("progress", "Record", "item id", c.ItemID)
	case progress.KindVRCompletion:
		if err := shared.ValidateID("progress", "Record", "experience id", c.ItemID); err != nil {
			return err
		}
		if _, err := shared.NewScore(c.Score); err != nil {
			return err
		}
	case progress.KindLearningTime:
		return shared.ValidateSessionMinutes(c.Minutes)
	default:
		return shared.WrapError("progress", "Record", shared.ErrInvalidArgument, string(c.Kind), shared.ErrUnknownActivityKind)
	}
	return nil
}

// contentKind is the directory kind the item must have.
func (c RecordActivityCommand) contentKind() (shared.ContentKind, bool) {
	switch c.Kind {
	case progress.KindTribeVisit:
		return shared.ContentTribe, true
	case progress.KindArtifactView:
		return shared.ContentArtifact, true
	case progress.KindVRCompletion:
		return shared.ContentVRExperience, true
	}
	return "", false
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// UserID - the acting user.
	UserID string

	// Kind - the recorded activity.
	Kind progress.ActivityKind

	// Changed - false for idempotent repeats (visited tribe, lower VR score).
	Changed bool

	// VR - what the VR completion did; nil for other kinds.
	VR *progress.VRResult

	// NewlyGranted - achievements granted by this call, in grant order.
	NewlyGranted []string

	// Summary - progress summary after the call.
	Summary progress.Summary

	// FeedbackAverage - the experience's new average when feedback was
	// submitted.
	FeedbackAverage *float64

	// RecordedAt - activity time.
	RecordedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityConfig contains configuration for the handler.
type RecordActivityConfig struct {
	// RecentLimit - size of the recent-activity lists in the summary.
	RecentLimit int

	// VRFeedback - honor SubmitFeedback on VR completions.
	VRFeedback bool

	// AchievementEvents - publish achievement.granted events.
	AchievementEvents bool
}

// DefaultRecordActivityConfig returns default configuration.
func DefaultRecordActivityConfig() RecordActivityConfig {
	return RecordActivityConfig{
		RecentLimit:       progress.DefaultRecentLimit,
		VRFeedback:        true,
		AchievementEvents: true,
	}
}

// RecordActivityHandler handles RecordActivityCommand.
type RecordActivityHandler struct {
	progressRepo progress.Repository
	directory    content.Directory
	locker       shared.Locker
	flow         *saga.AchievementFlow
	cache        progress.SummaryCache
	publisher    shared.EventPublisher
	ratings      *RecordContentHandler

	config  RecordActivityConfig
	opts    Options
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewRecordActivityHandler creates a new RecordActivityHandler. cache and
// ratings may be nil; without ratings VR feedback is ignored.
func NewRecordActivityHandler(
	progressRepo progress.Repository,
	directory content.Directory,
	locker shared.Locker,
	flow *saga.AchievementFlow,
	cache progress.SummaryCache,
	publisher shared.EventPublisher,
	ratings *RecordContentHandler,
	config RecordActivityConfig,
	opts Options,
) *RecordActivityHandler {
	opts = opts.withDefaults()
	if config.RecentLimit <= 0 {
		config.RecentLimit = progress.DefaultRecentLimit
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &RecordActivityHandler{
		progressRepo: progressRepo,
		directory:    directory,
		locker:       locker,
		flow:         flow,
		cache:        cache,
		publisher:    publisher,
		ratings:      ratings,
		config:       config,
		opts:         opts,
		log:          opts.Logger.With(logger.Component("record_activity")),
		metrics:      opts.Metrics,
	}
}

// Handle records the activity, runs the achievement flow and persists the
// result under the user's lock.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (result *RecordActivityResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "command.record_activity",
		attribute.String("user_id", cmd.UserID),
		attribute.String("activity_kind", string(cmd.Kind)),
	)
	defer func() {
		observability.EndSpan(span, err)
		h.metrics.ObserveCommand("record_activity", time.Since(start), err)
	}()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if kind, ok := cmd.contentKind(); ok {
		if _, err := content.Require(ctx, h.directory, kind, cmd.ItemID); err != nil {
			return nil, err
		}
	}
	totalTribes, err := h.directory.TotalTribes(ctx)
	if err != nil {
		return nil, fmt.Errorf("record_activity: failed to count tribes: %w", err)
	}

	result, err = h.record(ctx, cmd, totalTribes)
	if err != nil {
		return nil, err
	}

	// The content lock is taken only after the user lock was released.
	if cmd.Kind == progress.KindVRCompletion && cmd.SubmitFeedback && h.config.VRFeedback && h.ratings != nil {
		h.submitFeedback(ctx, cmd, result)
	}
	return result, nil
}

func (h *RecordActivityHandler) record(ctx context.Context, cmd RecordActivityCommand, totalTribes int) (*RecordActivityResult, error) {
	unlock, err := acquire(ctx, h.locker, h.metrics, scopeUser, shared.UserLockKey(cmd.UserID))
	if err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}
	defer unlock()

	now := h.opts.Clock.Now().UTC()

	p, err := h.progressRepo.Get(ctx, cmd.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("record_activity: failed to load progress: %w", err)
		}
		if p, err = progress.New(cmd.UserID, now); err != nil {
			return nil, err
		}
	}

	result := &RecordActivityResult{UserID: cmd.UserID, Kind: cmd.Kind, RecordedAt: now}
	event, err := h.apply(p, cmd, now, result)
	if err != nil {
		return nil, err
	}

	grants := h.flow.Run(p, now)
	result.NewlyGranted = saga.GrantedIDs(grants)

	if result.Changed || len(grants) > 0 {
		if err := h.progressRepo.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("record_activity: failed to save progress: %w", err)
		}
		if err := h.flow.Ledger().Commit(ctx, grants); err != nil {
			// Progress is saved; failed increments are queued on the ledger.
			h.log.Error("earn counter increments queued for retry", logger.UserID(cmd.UserID), logger.Err(err))
		}
	}

	catalog := h.flow.Ledger().Catalog()
	result.Summary = p.Summarize(totalTribes, catalog.Points, h.config.RecentLimit)
	if result.Changed || len(grants) > 0 {
		h.refreshCache(ctx, &result.Summary)
	}

	events := []shared.Event{event}
	if h.config.AchievementEvents {
		for _, g := range grants {
			e := shared.NewAchievementGrantedEvent(
				g.UserID, g.Definition.ID, g.Definition.Points, g.Definition.Rarity.String(), g.TotalEarned, g.EarnedAt,
			)
			e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			events = append(events, e)
		}
	}
	publish(h.log, h.publisher, events...)

	if len(grants) > 0 {
		h.log.Info("achievements granted",
			logger.UserID(cmd.UserID),
			logger.ActivityKind(string(cmd.Kind)),
			logger.Granted(result.NewlyGranted),
			logger.CorrelationID(cmd.CorrelationID),
		)
	} else if !result.Changed {
		h.log.Debug("activity already recorded",
			logger.UserID(cmd.UserID),
			logger.ActivityKind(string(cmd.Kind)),
			logger.String("item_id", cmd.ItemID),
		)
	}
	return result, nil
}

// apply runs the ledger operation and builds the activity event.
func (h *RecordActivityHandler) apply(p *progress.Progress, cmd RecordActivityCommand, now time.Time, result *RecordActivityResult) (shared.Event, error) {
	var (
		eventType shared.EventType
		keyItem   = cmd.ItemID
		err       error
	)

	switch cmd.Kind {
	case progress.KindTribeVisit:
		eventType = shared.EventTribeVisited
		result.Changed, err = p.VisitTribe(cmd.ItemID, now)
	case progress.KindArtifactView:
		eventType = shared.EventArtifactViewed
		result.Changed, err = p.ViewArtifact(cmd.ItemID, now)
	case progress.KindVRCompletion:
		eventType = shared.EventVRCompleted
		keyItem = progress.VRCompletionItem(cmd.ItemID, cmd.Score)
		var vr progress.VRResult
		vr, err = p.CompleteVR(cmd.ItemID, cmd.Score, now)
		result.VR = &vr
		result.Changed = vr.Changed()
	case progress.KindLearningTime:
		eventType = shared.EventLearningTimeAdded
		keyItem = progress.LearningSessionItem(cmd.Minutes, now)
		err = p.AddLearningTime(cmd.Minutes, now)
		result.Changed = err == nil
	default:
		err = shared.ErrUnknownActivityKind
	}
	if err != nil {
		return nil, err
	}

	e := shared.NewActivityRecordedEvent(eventType, cmd.UserID, cmd.ItemID, now)
	e.Changed = result.Changed
	e.Score = cmd.Score
	e.Minutes = cmd.Minutes
	e.IdempotencyKey = progress.IdempotencyKey(cmd.UserID, cmd.Kind, keyItem)
	e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	return e, nil
}

func (h *RecordActivityHandler) refreshCache(ctx context.Context, s *progress.Summary) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetSummary(ctx, s); err != nil {
		h.log.Warn("failed to refresh summary cache", logger.UserID(s.UserID), logger.Err(err))
		if err := h.cache.Invalidate(ctx, s.UserID); err != nil {
			h.log.Warn("failed to invalidate summary cache", logger.UserID(s.UserID), logger.Err(err))
		}
	}
}

func (h *RecordActivityHandler) submitFeedback(ctx context.Context, cmd RecordActivityCommand, result *RecordActivityResult) {
	stars := shared.Score(cmd.Score).FeedbackRating()
	res, err := h.ratings.RecordRating(ctx, RecordRatingCommand{
		ContentID:     cmd.ItemID,
		UserID:        cmd.UserID,
		Rating:        stars.Int(),
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		h.log.Warn("failed to submit vr feedback",
			logger.UserID(cmd.UserID),
			logger.ContentID(cmd.ItemID),
			logger.Err(err),
		)
		return
	}
	avg := res.AverageRating
	result.FeedbackAverage = &avg
}
