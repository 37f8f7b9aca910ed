package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
	"github.com/heritage-hub/heritage-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// Named handler registrations on top of an EventBus, with bounded retries
// and a dead letter queue for events a handler could not process.
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher routes bus events to registered handlers.
type Dispatcher struct {
	bus         shared.EventBus
	mu          sync.RWMutex
	handlers    map[shared.EventType][]HandlerRegistration
	middlewares []Middleware
	retrier     *retry.Retrier
	deadLetterQ *DeadLetterQueue
	log         *logger.Logger
	started     bool
}

// HandlerRegistration contains handler metadata.
type HandlerRegistration struct {
	Name    string
	Handler shared.EventHandler
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// Bus - the underlying event bus.
	Bus shared.EventBus

	// MaxAttempts - attempts per handler and event, including the first.
	MaxAttempts int

	// InitialBackoff - wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff - upper bound of the wait between retries.
	MaxBackoff time.Duration

	// DeadLetterQueueSize - 0 disables the queue.
	DeadLetterQueueSize int

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig(bus shared.EventBus) DispatcherConfig {
	return DispatcherConfig{
		Bus:                 bus,
		MaxAttempts:         3,
		InitialBackoff:      50 * time.Millisecond,
		MaxBackoff:          time.Second,
		DeadLetterQueueSize: 1000,
	}
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	d := &Dispatcher{
		bus:      config.Bus,
		handlers: make(map[shared.EventType][]HandlerRegistration),
		retrier: retry.New(
			retry.WithMaxAttempts(config.MaxAttempts),
			retry.WithBackoff(config.InitialBackoff, config.MaxBackoff, 2),
			// Handler errors are not classified; every failure is retried.
			retry.WithRetryIf(func(error) bool { return true }),
		),
		log: config.Logger.With(logger.Component("dispatcher")),
	}
	if config.DeadLetterQueueSize > 0 {
		d.deadLetterQ = NewDeadLetterQueue(config.DeadLetterQueueSize)
	}
	return d
}

// Register adds a handler for an event type.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], HandlerRegistration{Name: name, Handler: handler})
	d.log.Debug("registered handler",
		logger.String("event_type", string(eventType)),
		logger.String("handler_name", name),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use adds middleware; the first added runs outermost.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// LoggingMiddleware logs every handled event at debug level.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			log.Debug("event handled",
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Latency(time.Since(start)),
				logger.Bool("ok", err == nil),
			)
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// Start subscribes the dispatcher to every bus event. It is idempotent.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	return d.bus.SubscribeAll(d.Dispatch)
}

// Dispatch runs every handler registered for the event's type. It returns
// the failures that survived all retries.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventType()]
	middlewares := d.middlewares
	d.mu.RUnlock()

	var failed []error
	for _, reg := range handlers {
		if err := d.execute(event, reg, middlewares); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("dispatch %s: %d handler(s) failed: %v", event.EventType(), len(failed), failed)
	}
	return nil
}

func (d *Dispatcher) execute(event shared.Event, reg HandlerRegistration, middlewares []Middleware) error {
	handler := reg.Handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	attempts := 0
	err := d.retrier.Do(context.Background(), func(context.Context) error {
		attempts++
		return handler(event)
	})
	if err == nil {
		return nil
	}

	if d.deadLetterQ != nil {
		d.deadLetterQ.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: reg.Name,
			Error:       err,
			Attempts:    attempts,
			FailedAt:    time.Now(),
		})
	}
	d.log.Warn("handler gave up",
		logger.String("handler", reg.Name),
		logger.String("event_type", string(event.EventType())),
		logger.Int("attempts", attempts),
		logger.Err(err),
	)
	return fmt.Errorf("handler %s: %w", reg.Name, err)
}

// DeadLetterQueue returns the dead letter queue, nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

// PendingDeadLetters returns the dead letter queue size.
func (d *Dispatcher) PendingDeadLetters() int {
	if d.deadLetterQ == nil {
		return 0
	}
	return d.deadLetterQ.Size()
}

// Redrive runs the handlers of up to limit dead letters once more, oldest
// first. An entry that fails again is queued anew with its retries counted
// afresh. It returns how many entries were handled.
func (d *Dispatcher) Redrive(limit int) int {
	if d.deadLetterQ == nil {
		return 0
	}
	if size := d.deadLetterQ.Size(); limit <= 0 || limit > size {
		limit = size
	}

	d.mu.RLock()
	middlewares := d.middlewares
	d.mu.RUnlock()

	handled := 0
	for i := 0; i < limit; i++ {
		entry, ok := d.deadLetterQ.Pop()
		if !ok {
			break
		}
		reg, found := d.registration(entry.Event.EventType(), entry.HandlerName)
		if !found {
			d.log.Warn("dropping dead letter of unknown handler",
				logger.String("handler", entry.HandlerName),
				logger.String("event_type", string(entry.Event.EventType())),
			)
			continue
		}
		if d.execute(entry.Event, reg, middlewares) == nil {
			handled++
		}
	}
	return handled
}

func (d *Dispatcher) registration(eventType shared.EventType, name string) (HandlerRegistration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, reg := range d.handlers[eventType] {
		if reg.Name == name {
			return reg, true
		}
	}
	return HandlerRegistration{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is an event a handler failed to process.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue keeps the most recent failed events; the oldest entry is
// dropped when full.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a queue holding at most maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queue.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetterEntry(nil), q.entries...)
}

// Size returns the number of entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}
