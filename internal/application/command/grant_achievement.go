package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/heritage-hub/heritage-engine/internal/application/saga"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT ACHIEVEMENT / CHECK ACHIEVEMENTS COMMANDS
// Explicit grants go through the award ledger (idempotent, prerequisite
// checked); an award check re-runs the achievement flow without a new
// activity, e.g. after the catalog changed.
// ══════════════════════════════════════════════════════════════════════════════

// GrantAchievementCommand grants one achievement to a user.
type GrantAchievementCommand struct {
	UserID        string
	AchievementID string
	CorrelationID string
}

// Validate checks the command.
func (c GrantAchievementCommand) Validate() error {
	if err := shared.ValidateID("achievement", "Grant", "user id", c.UserID); err != nil {
		return err
	}
	return shared.ValidateID("achievement", "Grant", "achievement id", c.AchievementID)
}

// GrantAchievementResult contains the result of a grant.
type GrantAchievementResult struct {
	// Granted - false when the user already owned the achievement.
	Granted bool

	// TotalEarned - the catalog counter after the grant.
	TotalEarned int64

	// AlsoGranted - achievements the grant unlocked in turn.
	AlsoGranted []string
}

// CheckAchievementsCommand re-evaluates a user's achievements.
type CheckAchievementsCommand struct {
	UserID        string
	CorrelationID string
}

// CheckAchievementsResult lists what the check granted.
type CheckAchievementsResult struct {
	NewlyGranted []string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GrantAchievementHandler handles grants and award checks.
type GrantAchievementHandler struct {
	progressRepo progress.Repository
	locker       shared.Locker
	flow         *saga.AchievementFlow
	cache        progress.SummaryCache
	publisher    shared.EventPublisher

	opts    Options
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewGrantAchievementHandler creates a new GrantAchievementHandler.
func NewGrantAchievementHandler(
	progressRepo progress.Repository,
	locker shared.Locker,
	flow *saga.AchievementFlow,
	cache progress.SummaryCache,
	publisher shared.EventPublisher,
	opts Options,
) *GrantAchievementHandler {
	opts = opts.withDefaults()
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &GrantAchievementHandler{
		progressRepo: progressRepo,
		locker:       locker,
		flow:         flow,
		cache:        cache,
		publisher:    publisher,
		opts:         opts,
		log:          opts.Logger.With(logger.Component("grant_achievement")),
		metrics:      opts.Metrics,
	}
}

// Handle grants the achievement. The user must have progress.
func (h *GrantAchievementHandler) Handle(ctx context.Context, cmd GrantAchievementCommand) (result *GrantAchievementResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "command.grant_achievement",
		attribute.String("user_id", cmd.UserID),
		attribute.String("achievement_id", cmd.AchievementID),
	)
	defer func() {
		observability.EndSpan(span, err)
		h.metrics.ObserveCommand("grant_achievement", time.Since(start), err)
	}()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.flow.Ledger().Catalog().Get(cmd.AchievementID); err != nil {
		return nil, err
	}

	result = &GrantAchievementResult{}
	err = h.withProgress(ctx, cmd.UserID, cmd.CorrelationID, func(p *progress.Progress, now time.Time) ([]*saga.Grant, error) {
		g, err := h.flow.Ledger().Grant(p, cmd.AchievementID, now)
		if err != nil || g == nil {
			return nil, err
		}
		grants := append([]*saga.Grant{g}, h.flow.Run(p, now)...)
		return grants, nil
	}, func(grants []*saga.Grant) {
		if len(grants) == 0 {
			return
		}
		result.Granted = true
		result.TotalEarned = grants[0].TotalEarned
		result.AlsoGranted = saga.GrantedIDs(grants[1:])
	})
	if err != nil {
		return nil, err
	}

	if !result.Granted {
		h.log.Debug("achievement already owned", logger.UserID(cmd.UserID), logger.AchievementID(cmd.AchievementID))
	}
	return result, nil
}

// Check runs the achievement flow on the user's current progress.
func (h *GrantAchievementHandler) Check(ctx context.Context, cmd CheckAchievementsCommand) (result *CheckAchievementsResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "command.check_achievements", attribute.String("user_id", cmd.UserID))
	defer func() {
		observability.EndSpan(span, err)
		h.metrics.ObserveCommand("check_achievements", time.Since(start), err)
	}()

	if err := shared.ValidateID("achievement", "Check", "user id", cmd.UserID); err != nil {
		return nil, err
	}

	result = &CheckAchievementsResult{}
	err = h.withProgress(ctx, cmd.UserID, cmd.CorrelationID, func(p *progress.Progress, now time.Time) ([]*saga.Grant, error) {
		return h.flow.Run(p, now), nil
	}, func(grants []*saga.Grant) {
		result.NewlyGranted = saga.GrantedIDs(grants)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withProgress loads the user's progress under the user lock, lets fn add
// grants, then saves, commits counters and publishes the grant events.
// done sees the committed grants.
func (h *GrantAchievementHandler) withProgress(
	ctx context.Context,
	userID, correlationID string,
	fn func(*progress.Progress, time.Time) ([]*saga.Grant, error),
	done func([]*saga.Grant),
) error {
	unlock, err := acquire(ctx, h.locker, h.metrics, scopeUser, shared.UserLockKey(userID))
	if err != nil {
		return fmt.Errorf("grant_achievement: %w", err)
	}
	defer unlock()

	p, err := h.progressRepo.Get(ctx, userID)
	if err != nil {
		return err
	}

	now := h.opts.Clock.Now().UTC()
	grants, err := fn(p, now)
	if err != nil {
		return err
	}

	if len(grants) > 0 {
		if err := h.progressRepo.Save(ctx, p); err != nil {
			return fmt.Errorf("grant_achievement: failed to save progress: %w", err)
		}
		if err := h.flow.Ledger().Commit(ctx, grants); err != nil {
			h.log.Error("earn counter increments queued for retry", logger.UserID(userID), logger.Err(err))
		}
		if h.cache != nil {
			if err := h.cache.Invalidate(ctx, userID); err != nil {
				h.log.Warn("failed to invalidate summary cache", logger.UserID(userID), logger.Err(err))
			}
		}

		events := make([]shared.Event, 0, len(grants))
		for _, g := range grants {
			e := shared.NewAchievementGrantedEvent(g.UserID, g.Definition.ID, g.Definition.Points, g.Definition.Rarity.String(), g.TotalEarned, g.EarnedAt)
			e.BaseEvent = e.BaseEvent.WithCorrelationID(correlationID)
			events = append(events, e)
		}
		publish(h.log, h.publisher, events...)

		h.log.Info("achievements granted",
			logger.UserID(userID),
			logger.Granted(saga.GrantedIDs(grants)),
			logger.CorrelationID(correlationID),
		)
	}

	done(grants)
	return nil
}
