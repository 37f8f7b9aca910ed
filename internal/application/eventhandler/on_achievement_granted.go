// Package eventhandler contains the handlers of domain events. They keep
// observability and derived views in step with what the commands did; they
// never mutate progress.
package eventhandler

import (
	"fmt"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT GRANTED HANDLER
// Counts grants by rarity and writes the audit log line of every grant.
// ═══════════════════════════════════════════════════════════════════════════

// AchievementGrantedConfig contains configuration for the handler.
type AchievementGrantedConfig struct {
	// CountRemote - also count events that arrived from other instances
	// (decoded envelopes). Off by default so every grant is counted once,
	// by the instance that made it.
	CountRemote bool
}

// OnAchievementGrantedHandler handles achievement.granted events.
type OnAchievementGrantedHandler struct {
	metrics *observability.Metrics
	log     *logger.Logger
	config  AchievementGrantedConfig
}

// NewOnAchievementGrantedHandler creates a new handler.
func NewOnAchievementGrantedHandler(metrics *observability.Metrics, log *logger.Logger, config AchievementGrantedConfig) *OnAchievementGrantedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnAchievementGrantedHandler{
		metrics: metrics,
		log:     log.With(logger.Component("on_achievement_granted")),
		config:  config,
	}
}

// EventType returns the handled event type.
func (h *OnAchievementGrantedHandler) EventType() shared.EventType {
	return shared.EventAchievementGranted
}

// Handle processes the event.
func (h *OnAchievementGrantedHandler) Handle(event shared.Event) error {
	var e shared.AchievementGrantedEvent
	switch ev := event.(type) {
	case shared.AchievementGrantedEvent:
		e = ev
	case *shared.AchievementGrantedEvent:
		e = *ev
	case shared.EnvelopeEvent:
		if !h.config.CountRemote {
			return nil
		}
		p := ev.Payload()
		e.UserID, _ = p["user_id"].(string)
		e.AchievementID, _ = p["achievement_id"].(string)
		e.Rarity, _ = p["rarity"].(string)
		if points, ok := p["points"].(float64); ok {
			e.Points = int(points)
		}
	default:
		return fmt.Errorf("on_achievement_granted: unexpected event %T", event)
	}

	h.metrics.AchievementGranted(e.Rarity)
	h.log.Info("achievement granted",
		logger.UserID(e.UserID),
		logger.AchievementID(e.AchievementID),
		logger.String("rarity", e.Rarity),
		logger.Int("points", e.Points),
		logger.Int64("total_earned", e.TotalEarned),
	)
	return nil
}
