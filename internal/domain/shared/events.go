package shared

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every accepted activity produces one event, including
// idempotent no-ops, so the journal is a complete audit trail.
const (
	// Activity events
	EventTribeVisited      EventType = "activity.tribe_visited"
	EventArtifactViewed    EventType = "activity.artifact_viewed"
	EventVRCompleted       EventType = "activity.vr_completed"
	EventLearningTimeAdded EventType = "activity.learning_time_added"

	// Achievement events
	EventAchievementGranted EventType = "achievement.granted"

	// Content events
	EventContentViewed EventType = "content.viewed"
	EventContentRated  EventType = "content.rated"

	// Account events
	EventProgressDeleted EventType = "progress.deleted"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// EventID returns the unique event identifier.
func (e BaseEvent) EventID() string {
	return e.ID
}

// NewBaseEvent creates a new base event stamped with the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   at.UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity Events
// ═══════════════════════════════════════════════════════════════════════════

// ActivityRecordedEvent is emitted for every accepted activity command.
// Changed is false for idempotent repeats.
type ActivityRecordedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	ItemID         string `json:"item_id,omitempty"`
	Score          int    `json:"score,omitempty"`
	Minutes        int    `json:"minutes,omitempty"`
	Changed        bool   `json:"changed"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Payload implements Event interface.
func (e ActivityRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"item_id":         e.ItemID,
		"score":           e.Score,
		"minutes":         e.Minutes,
		"changed":         e.Changed,
		"idempotency_key": e.IdempotencyKey,
	}
}

// NewActivityRecordedEvent creates a new ActivityRecordedEvent.
func NewActivityRecordedEvent(eventType EventType, userID, itemID string, at time.Time) ActivityRecordedEvent {
	return ActivityRecordedEvent{
		BaseEvent: NewBaseEvent(eventType, userID, at),
		UserID:    userID,
		ItemID:    itemID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementGrantedEvent is emitted once per (user, achievement) pair.
type AchievementGrantedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Points        int    `json:"points"`
	Rarity        string `json:"rarity"`
	TotalEarned   int64  `json:"total_earned"`
}

// Payload implements Event interface.
func (e AchievementGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"points":         e.Points,
		"rarity":         e.Rarity,
		"total_earned":   e.TotalEarned,
	}
}

// NewAchievementGrantedEvent creates a new AchievementGrantedEvent.
func NewAchievementGrantedEvent(userID, achievementID string, points int, rarity string, totalEarned int64, at time.Time) AchievementGrantedEvent {
	return AchievementGrantedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementGranted, userID, at),
		UserID:        userID,
		AchievementID: achievementID,
		Points:        points,
		Rarity:        rarity,
		TotalEarned:   totalEarned,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Content Events
// ═══════════════════════════════════════════════════════════════════════════

// ContentViewedEvent is emitted after a view was recorded on shared content.
type ContentViewedEvent struct {
	BaseEvent
	ContentID string `json:"content_id"`
	UserID    string `json:"user_id,omitempty"`
	ViewCount int64  `json:"view_count"`
	Counted   bool   `json:"counted"`
}

// Payload implements Event interface.
func (e ContentViewedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"content_id": e.ContentID,
		"user_id":    e.UserID,
		"view_count": e.ViewCount,
		"counted":    e.Counted,
	}
}

// NewContentViewedEvent creates a new ContentViewedEvent.
func NewContentViewedEvent(contentID, userID string, viewCount int64, counted bool, at time.Time) ContentViewedEvent {
	return ContentViewedEvent{
		BaseEvent: NewBaseEvent(EventContentViewed, contentID, at),
		ContentID: contentID,
		UserID:    userID,
		ViewCount: viewCount,
		Counted:   counted,
	}
}

// ContentRatedEvent is emitted after a user rated shared content.
type ContentRatedEvent struct {
	BaseEvent
	ContentID     string  `json:"content_id"`
	UserID        string  `json:"user_id"`
	Rating        int     `json:"rating"`
	AverageRating float64 `json:"average_rating"`
}

// Payload implements Event interface.
func (e ContentRatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"content_id":     e.ContentID,
		"user_id":        e.UserID,
		"rating":         e.Rating,
		"average_rating": e.AverageRating,
	}
}

// NewContentRatedEvent creates a new ContentRatedEvent.
func NewContentRatedEvent(contentID, userID string, rating int, average float64, at time.Time) ContentRatedEvent {
	return ContentRatedEvent{
		BaseEvent:     NewBaseEvent(EventContentRated, contentID, at),
		ContentID:     contentID,
		UserID:        userID,
		Rating:        rating,
		AverageRating: average,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Account Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressDeletedEvent is emitted when a user's progress was removed.
type ProgressDeletedEvent struct {
	BaseEvent
	UserID         string   `json:"user_id"`
	RatedContentID []string `json:"rated_content_ids,omitempty"`
}

// Payload implements Event interface.
func (e ProgressDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           e.UserID,
		"rated_content_ids": e.RatedContentID,
	}
}

// NewProgressDeletedEvent creates a new ProgressDeletedEvent.
func NewProgressDeletedEvent(userID string, ratedContent []string, at time.Time) ProgressDeletedEvent {
	return ProgressDeletedEvent{
		BaseEvent:      NewBaseEvent(EventProgressDeleted, userID, at),
		UserID:         userID,
		RatedContentID: ratedContent,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// identified is implemented by events embedding BaseEvent.
type identified interface {
	EventID() string
}

// NewEventEnvelope serializes an event into an envelope.
func NewEventEnvelope(event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if id, ok := event.(identified); ok && id.EventID() != "" {
		env.ID = id.EventID()
	} else {
		env.ID = uuid.NewString()
	}
	if be, ok := baseOf(event); ok {
		env.Version = be.Version
		env.CorrelationID = be.CorrelationID
	}
	return env, nil
}

func baseOf(event Event) (BaseEvent, bool) {
	switch e := event.(type) {
	case ActivityRecordedEvent:
		return e.BaseEvent, true
	case AchievementGrantedEvent:
		return e.BaseEvent, true
	case ContentViewedEvent:
		return e.BaseEvent, true
	case ContentRatedEvent:
		return e.BaseEvent, true
	case ProgressDeletedEvent:
		return e.BaseEvent, true
	case EnvelopeEvent:
		return BaseEvent{Version: e.Env.Version, CorrelationID: e.Env.CorrelationID}, true
	}
	return BaseEvent{}, false
}

// EnvelopeEvent adapts a decoded envelope back to the Event interface, so
// replayed journal entries can be dispatched through an EventBus.
type EnvelopeEvent struct {
	Env EventEnvelope
}

// EventType implements Event interface.
func (e EnvelopeEvent) EventType() EventType { return e.Env.Type }

// OccurredAt implements Event interface.
func (e EnvelopeEvent) OccurredAt() time.Time { return e.Env.Timestamp }

// AggregateID implements Event interface.
func (e EnvelopeEvent) AggregateID() string { return e.Env.AggregateID }

// EventID returns the envelope id.
func (e EnvelopeEvent) EventID() string { return e.Env.ID }

// Payload implements Event interface.
func (e EnvelopeEvent) Payload() map[string]interface{} {
	out := make(map[string]interface{})
	_ = json.Unmarshal(e.Env.Payload, &out)
	return out
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
