package eventhandler

import (
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// Registrar is where handlers are registered; messaging.Dispatcher
// implements it.
type Registrar interface {
	Register(eventType shared.EventType, name string, handler shared.EventHandler) error
}

// RegisterAll registers the engine's event handlers.
func RegisterAll(r Registrar, metrics *observability.Metrics, log *logger.Logger) error {
	granted := NewOnAchievementGrantedHandler(metrics, log, AchievementGrantedConfig{})
	if err := r.Register(granted.EventType(), "on_achievement_granted", granted.Handle); err != nil {
		return err
	}

	activity := NewOnActivityRecordedHandler(metrics, log)
	for _, t := range activity.EventTypes() {
		if err := r.Register(t, "on_activity_recorded", activity.Handle); err != nil {
			return err
		}
	}
	return nil
}
