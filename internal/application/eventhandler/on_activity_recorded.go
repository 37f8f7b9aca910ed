package eventhandler

import (
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACTIVITY RECORDED HANDLER
// Activity and content counters. Idempotent repeats are counted with
// changed="false", so the ratio of no-ops stays visible.
// ═══════════════════════════════════════════════════════════════════════════

// activityKinds maps activity event types to their ledger kind.
var activityKinds = map[shared.EventType]progress.ActivityKind{
	shared.EventTribeVisited:      progress.KindTribeVisit,
	shared.EventArtifactViewed:    progress.KindArtifactView,
	shared.EventVRCompleted:       progress.KindVRCompletion,
	shared.EventLearningTimeAdded: progress.KindLearningTime,
}

// OnActivityRecordedHandler handles activity and content events.
type OnActivityRecordedHandler struct {
	metrics *observability.Metrics
	log     *logger.Logger
}

// NewOnActivityRecordedHandler creates a new handler.
func NewOnActivityRecordedHandler(metrics *observability.Metrics, log *logger.Logger) *OnActivityRecordedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnActivityRecordedHandler{
		metrics: metrics,
		log:     log.With(logger.Component("on_activity_recorded")),
	}
}

// EventTypes returns the handled event types.
func (h *OnActivityRecordedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventTribeVisited,
		shared.EventArtifactViewed,
		shared.EventVRCompleted,
		shared.EventLearningTimeAdded,
		shared.EventContentViewed,
		shared.EventContentRated,
	}
}

// Handle processes the event. Remote envelopes are ignored; the instance
// that recorded the activity counted it.
func (h *OnActivityRecordedHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.ActivityRecordedEvent:
		kind, ok := activityKinds[e.Type]
		if !ok {
			return nil
		}
		h.metrics.ActivityRecorded(kind.String(), e.Changed)
		h.log.Debug("activity recorded",
			logger.UserID(e.UserID),
			logger.ActivityKind(kind.String()),
			logger.Bool("changed", e.Changed),
		)
	case shared.ContentViewedEvent:
		h.metrics.ContentViewed(e.Counted)
	case shared.ContentRatedEvent:
		h.metrics.ContentRated()
		h.log.Debug("content rated",
			logger.ContentID(e.ContentID),
			logger.AverageRating(e.AverageRating),
		)
	}
	return nil
}
