package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
	"github.com/heritage-hub/heritage-engine/pkg/retry"
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockerConfig configures the distributed locker.
type LockerConfig struct {
	// TTL - lock expiry, bounding how long a crashed holder blocks others.
	TTL time.Duration

	// MaxWait - how long Lock polls before giving up.
	MaxWait time.Duration
}

// DefaultLockerConfig returns default locker settings.
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:     TTLDistributedLock,
		MaxWait: 10 * time.Second,
	}
}

// Locker implements shared.Locker across instances with SET NX PX.
type Locker struct {
	cache  *Cache
	config LockerConfig
	log    *logger.Logger
}

// NewLocker creates a distributed locker.
func NewLocker(cache *Cache, cfg LockerConfig, log *logger.Logger) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = TTLDistributedLock
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultLockerConfig().MaxWait
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Locker{cache: cache, config: cfg, log: log.With(logger.Component("redis_locker"))}
}

// Lock polls with backoff until the key is acquired, ctx is done or MaxWait
// elapses.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.cache.Key(PrefixLock, key)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.config.MaxWait)
	defer cancel()

	err := retry.LockRetrier(l.config.MaxWait).Do(waitCtx, func(ctx context.Context) error {
		ok, err := l.cache.Client().SetNX(ctx, redisKey, token, l.config.TTL).Result()
		if err != nil {
			return retry.Permanent(err)
		}
		if !ok {
			return retry.Retryable(shared.ErrLockNotAcquired)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrLockNotAcquired) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, shared.WrapError("lock", "Acquire", shared.ErrLockNotAcquired, key, shared.ErrLockTimeout)
		}
		return nil, err
	}

	return func() {
		// Release must outlive a cancelled caller context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.cache.Client(), []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("failed to release lock", logger.String("key", key), logger.Err(err))
		}
	}, nil
}
