package query

import (
	"context"
	"fmt"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Every catalog entry with the user's status and per-criterion progress,
// in catalog order (rarity, points, id).
// ══════════════════════════════════════════════════════════════════════════════

// AchievementStatus is the user's standing on one achievement.
type AchievementStatus string

const (
	// StatusEarned - granted.
	StatusEarned AchievementStatus = "earned"

	// StatusEligible - all conditions hold; the next award check grants it.
	StatusEligible AchievementStatus = "eligible"

	// StatusLocked - prerequisites or criteria are not met yet.
	StatusLocked AchievementStatus = "locked"

	// StatusUnavailable - outside its unlock/expiry window.
	StatusUnavailable AchievementStatus = "unavailable"
)

// GetAchievementsQuery asks for a user's achievement list.
type GetAchievementsQuery struct {
	UserID string

	// EarnedOnly - drop entries that are not earned.
	EarnedOnly bool
}

// AchievementDTO is one row of the list.
type AchievementDTO struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Points      int               `json:"points"`
	Rarity      string            `json:"rarity"`
	Status      AchievementStatus `json:"status"`

	// EarnedAt - set for earned achievements.
	EarnedAt *time.Time `json:"earned_at,omitempty"`

	// TotalEarned - how many users hold the achievement.
	TotalEarned int64 `json:"total_earned"`

	// MissingPrerequisites - prerequisite ids the user still lacks.
	MissingPrerequisites []string `json:"missing_prerequisites,omitempty"`

	// Criteria - current vs required value per criterion.
	Criteria []achievement.CriterionProgress `json:"criteria"`
}

// GetAchievementsResult contains the list.
type GetAchievementsResult struct {
	UserID       string           `json:"user_id"`
	Achievements []AchievementDTO `json:"achievements"`
	EarnedCount  int              `json:"earned_count"`
	TotalPoints  int              `json:"total_points"`
}

// GetAchievementsHandler handles GetAchievementsQuery.
type GetAchievementsHandler struct {
	progressRepo progress.Repository
	evaluator    *achievement.Evaluator
	counters     achievement.EarnCounter
	clock        timeutil.Clock
}

// NewGetAchievementsHandler creates a new handler.
func NewGetAchievementsHandler(
	progressRepo progress.Repository,
	evaluator *achievement.Evaluator,
	counters achievement.EarnCounter,
	clock timeutil.Clock,
) *GetAchievementsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetAchievementsHandler{
		progressRepo: progressRepo,
		evaluator:    evaluator,
		counters:     counters,
		clock:        clock,
	}
}

// Handle builds the list. Returns shared.ErrProgressNotFound for users
// without progress.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) (*GetAchievementsResult, error) {
	if err := shared.ValidateID("query", "GetAchievements", "user id", q.UserID); err != nil {
		return nil, err
	}

	p, err := h.progressRepo.Get(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	totals, err := h.counters.AllTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: failed to read earn counters: %w", err)
	}

	now := h.clock.Now()
	snap := p.Snapshot()
	earned := p.EarnedSet()

	result := &GetAchievementsResult{UserID: q.UserID}
	for _, d := range h.evaluator.Catalog().ListAll() {
		dto := AchievementDTO{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Icon:        d.Icon,
			Points:      d.Points,
			Rarity:      d.Rarity.String(),
			TotalEarned: totals[d.ID],
			Criteria:    h.evaluator.Explain(d, snap, earned),
		}

		switch h.evaluator.Check(d, snap, earned, now) {
		case achievement.RejectAlreadyEarned:
			dto.Status = StatusEarned
			if at, ok := p.EarnedAt(d.ID); ok {
				dto.EarnedAt = &at
			}
			result.EarnedCount++
			result.TotalPoints += d.Points
		case achievement.RejectNone:
			dto.Status = StatusEligible
		case achievement.RejectNotAvailable:
			dto.Status = StatusUnavailable
		default:
			dto.Status = StatusLocked
		}

		if dto.Status != StatusEarned {
			for _, id := range d.AllPrerequisites() {
				if _, ok := earned[id]; !ok {
					dto.MissingPrerequisites = append(dto.MissingPrerequisites, id)
				}
			}
		}

		if q.EarnedOnly && dto.Status != StatusEarned {
			continue
		}
		result.Achievements = append(result.Achievements, dto)
	}
	return result, nil
}
