// Package messaging implements the event buses domain events are published
// on: an in-process bus and a Redis pub/sub bridge for multi-instance setups.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/redis"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrEventBusClosed = errors.New("messaging: bus closed")
	ErrNilHandler     = errors.New("messaging: nil handler")
	ErrNilEvent       = errors.New("messaging: nil event")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus dispatches events to in-process handlers. In sync mode
// handlers run on the publisher's goroutine in subscription order, which
// keeps the journal ordered per user.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	async   bool
	slots   chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup

	log     *logger.Logger
	metrics *observability.Metrics
}

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode - run handlers on a bounded pool instead of the publisher's
	// goroutine.
	AsyncMode bool

	// WorkerPoolSize - concurrent async handlers. Default 10.
	WorkerPoolSize int

	Logger  *logger.Logger
	Metrics *observability.Metrics
}

// DefaultInMemoryEventBusConfig is the synchronous bus.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      false,
		WorkerPoolSize: 10,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	return &InMemoryEventBus{
		byType:  make(map[shared.EventType][]shared.EventHandler),
		async:   config.AsyncMode,
		slots:   make(chan struct{}, config.WorkerPoolSize),
		closeCh: make(chan struct{}),
		log:     config.Logger.With(logger.Component("eventbus")),
		metrics: config.Metrics,
	}
}

// Subscribe adds a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll adds a handler for every event. Wildcard handlers run after
// the typed ones.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.wildcard = append(b.wildcard, handler)
	})
}

func (b *InMemoryEventBus) subscribe(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish sends an event to all subscribed handlers. Handler errors are
// logged and counted; they never fail the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	handlers = append(append(handlers, typed...), b.wildcard...)
	b.mu.RUnlock()

	b.metrics.EventPublished(string(event.EventType()))

	for _, h := range handlers {
		if !b.async {
			b.execute(event, h)
			continue
		}
		b.wg.Add(1)
		go func(h shared.EventHandler) {
			defer b.wg.Done()
			select {
			case b.slots <- struct{}{}:
				defer func() { <-b.slots }()
				b.execute(event, h)
			case <-b.closeCh:
			}
		}(h)
	}
	return nil
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := safeCall(handler, event)
	if err == nil {
		return
	}

	b.metrics.HandlerFailed(string(event.EventType()))
	b.log.Error("event handler failed",
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Latency(time.Since(start)),
		logger.Err(err),
	)
}

func safeCall(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(event)
}

// Close waits for in-flight async handlers and rejects further use.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus publishes events locally and to a Redis channel so other
// instances' handlers see them. Remote events arrive as shared.EnvelopeEvent.
type RedisEventBus struct {
	cache      *redis.Cache
	localBus   *InMemoryEventBus
	channel    string
	instanceID string
	log        *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	// Cache is the connected Redis wrapper.
	Cache *redis.Cache

	// Channel is the pub/sub channel (default: <prefix>events:all).
	Channel string

	// InstanceID filters out this instance's own messages.
	InstanceID string

	// Local is the bus remote events are dispatched to.
	Local *InMemoryEventBus

	// Logger for structured logging.
	Logger *logger.Logger
}

// remoteMessage is the pub/sub wire format.
type remoteMessage struct {
	InstanceID string               `json:"instance_id"`
	Envelope   shared.EventEnvelope `json:"envelope"`
}

// NewRedisEventBus subscribes to the channel and starts the listener.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Cache == nil {
		return nil, errors.New("redis cache is required")
	}
	if config.Local == nil {
		config.Local = NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	}
	if config.Channel == "" {
		config.Channel = config.Cache.Key(redis.PrefixPubSub, "all")
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		cache:      config.Cache,
		localBus:   config.Local,
		channel:    config.Channel,
		instanceID: config.InstanceID,
		log:        config.Logger.With(logger.Component("redis_eventbus")),
		ctx:        ctx,
		cancel:     cancel,
	}

	sub := config.Cache.Subscribe(ctx, config.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", config.Channel, err)
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				bus.handleRemote([]byte(msg.Payload))
			}
		}
	}()

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish dispatches locally, then fans the event out over Redis. A Redis
// failure is logged; local handlers have already run.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	if err := b.localBus.Publish(event); err != nil {
		return err
	}

	env, err := shared.NewEventEnvelope(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data, err := json.Marshal(remoteMessage{InstanceID: b.instanceID, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.cache.Publish(b.ctx, b.channel, data); err != nil {
		b.log.Warn("failed to publish to redis", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
	return nil
}

func (b *RedisEventBus) handleRemote(payload []byte) {
	var msg remoteMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.log.Error("failed to unmarshal remote event", logger.Err(err))
		return
	}
	if msg.InstanceID == b.instanceID {
		return
	}
	if err := b.localBus.Publish(shared.EnvelopeEvent{Env: msg.Envelope}); err != nil {
		b.log.Error("failed to dispatch remote event", logger.Err(err))
	}
}

// Close stops the listener and closes the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.localBus.Close()
}
