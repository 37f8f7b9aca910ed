// Package command contains the write operations of the engine (CQRS -
// Commands). Every handler validates its command before touching state,
// serializes on the matching lock key and publishes domain events for what
// it did.
package command

import (
	"context"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
	"github.com/heritage-hub/heritage-engine/pkg/timeutil"
)

// Options carries the ambient collaborators of the command handlers. Zero
// values are replaced with a system clock, a no-op logger and no metrics.
type Options struct {
	Clock   timeutil.Clock
	Logger  *logger.Logger
	Metrics *observability.Metrics
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = timeutil.SystemClock{}
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}

// Lock scopes, used as the metrics label.
const (
	scopeUser    = "user"
	scopeContent = "content"
)

// acquire takes a lock and records how long the wait took.
func acquire(ctx context.Context, locker shared.Locker, metrics *observability.Metrics, scope, key string) (func(), error) {
	start := time.Now()
	unlock, err := locker.Lock(ctx, key)
	metrics.ObserveLockWait(scope, time.Since(start))
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// publish sends events and logs failures; a failed publish never fails the
// command that already persisted its state.
func publish(log *logger.Logger, publisher shared.EventPublisher, events ...shared.Event) {
	for _, e := range events {
		if err := publisher.Publish(e); err != nil {
			log.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.String("aggregate_id", e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}
