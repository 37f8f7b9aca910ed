package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/heritage-hub/heritage-engine/config"
	"github.com/heritage-hub/heritage-engine/internal/application/command"
	"github.com/heritage-hub/heritage-engine/internal/application/eventhandler"
	"github.com/heritage-hub/heritage-engine/internal/application/query"
	"github.com/heritage-hub/heritage-engine/internal/application/saga"
	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/rating"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/catalog"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/journal"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/locks"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/messaging"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/memory"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/postgres"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/redis"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/sqlite"
	"github.com/heritage-hub/heritage-engine/pkg/circuitbreaker"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app holds the wired engine of one CLI invocation.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *observability.Metrics
	health  *observability.HealthChecker

	catalog   *catalog.Loaded
	progress  progress.Repository
	ratings   rating.Repository
	counters  achievement.EarnCounter
	directory content.Directory
	cache     progress.SummaryCache
	locker    shared.Locker
	ledger    *saga.AwardLedger

	localBus   *messaging.InMemoryEventBus
	bus        shared.EventBus
	dispatcher *messaging.Dispatcher

	activity *command.RecordActivityHandler
	content  *command.RecordContentHandler
	grant    *command.GrantAchievementHandler
	remove   *command.DeleteProgressHandler
	batch    *command.RecordBatchHandler

	summary      *query.GetProgressSummaryHandler
	achievements *query.GetAchievementsHandler
	rating       *query.GetContentRatingHandler

	// closers run in reverse order.
	closers []func() error
}

// newApp loads the catalog, opens the configured stores and wires the
// handlers. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		log:     newLogger(cfg),
		metrics: observability.NewMetrics(),
		health:  observability.NewHealthChecker(version),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName: cfg.App.Name,
			Environment: string(cfg.App.Environment),
			Version:     version,
			Output:      os.Stderr,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.onClose(func() error { return shutdown(context.Background()) })
	}

	if a.catalog, err = loadCatalog(cfg.Catalog.Path); err != nil {
		return nil, err
	}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		return nil, err
	}
	if err := a.startEvents(); err != nil {
		return nil, err
	}
	a.wireHandlers()

	a.log.Debug("engine ready",
		logger.String("store", string(cfg.Store.Backend)),
		logger.Bool("redis", cfg.Redis.Enabled),
		logger.Int("achievements", a.catalog.Achievements.Len()),
		logger.Int("content_items", len(a.catalog.Items)),
	)
	return a, nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Observability.LogLevel),
		Development: cfg.App.Debug || cfg.Observability.LogFormat == "text",
		AddCaller:   cfg.App.Debug,
	}).With(logger.String("app", cfg.App.Name))
}

func loadCatalog(path string) (*catalog.Loaded, error) {
	if path == "" {
		return catalog.Default()
	}
	loaded, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return loaded, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases everything newApp opened, newest first. Queued earn
// counter increments get one last attempt while the stores are open.
func (a *app) close() {
	if a.ledger != nil && a.ledger.PendingIncrements() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
		if _, err := a.ledger.RetryPending(ctx); err != nil {
			a.log.Error("earn counter increments lost",
				logger.Int("count", a.ledger.PendingIncrements()), logger.Err(err))
		}
		cancel()
	}
	if a.dispatcher != nil {
		if n := a.dispatcher.PendingDeadLetters(); n > 0 {
			a.log.Warn("events left in the dead letter queue", logger.Int("count", n))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("shutdown step failed", logger.Err(err))
		}
	}
	a.closers = nil
	a.log.Sync()
}

// ─────────────────────────────────────────────────────────────────────────────
// Stores
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) openStores(ctx context.Context) error {
	cfg := a.cfg.Store

	switch cfg.Backend {
	case config.StoreMemory:
		a.progress = memory.NewProgressStore()
		a.ratings = memory.NewRatingStore()
		a.counters = memory.NewEarnCounterStore()
		a.directory = memory.NewDirectory(a.catalog.Items)
		return nil

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.onClose(db.Close)
		a.health.AddCheck("sqlite", observability.PingCheck(db))

		dir := sqlite.NewDirectory(db)
		a.progress = sqlite.NewProgressStore(db)
		a.ratings = sqlite.NewRatingStore(db)
		a.counters = sqlite.NewEarnCounterStore(db)
		a.directory = dir
		if cfg.AutoMigrate {
			return a.syncDirectory(ctx, dir)
		}
		return nil

	case config.StorePostgres:
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:          int32(cfg.MaxConns),
			MinConns:          int32(cfg.MinConns),
			MaxConnLifetime:   cfg.ConnMaxLifetime,
			MaxConnIdleTime:   postgres.DefaultPoolOptions().MaxConnIdleTime,
			HealthCheckPeriod: postgres.DefaultPoolOptions().HealthCheckPeriod,
		})
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.onClose(func() error { conn.Close(); return nil })
		a.health.AddCheck("postgres", observability.PingCheck(conn))

		if cfg.AutoMigrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if applied > 0 {
				a.log.Info("migrations applied", logger.Int("count", applied))
			}
		}

		dir := postgres.NewContentDirectory(conn)
		a.progress = postgres.NewProgressRepository(conn)
		a.ratings = postgres.NewRatingRepository(conn)
		a.counters = postgres.NewEarnCounterRepository(conn)
		a.directory = dir
		if cfg.AutoMigrate {
			return a.syncDirectory(ctx, dir)
		}
		return nil
	}
	return fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// directorySyncer is implemented by the persistent content directories.
type directorySyncer interface {
	Sync(ctx context.Context, items []content.Item) (int, error)
}

func (a *app) syncDirectory(ctx context.Context, dir directorySyncer) error {
	n, err := dir.Sync(ctx, a.catalog.Items)
	if err != nil {
		return fmt.Errorf("sync content directory: %w", err)
	}
	a.log.Debug("content directory synced", logger.Int("items", n))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis (locks, summary cache, event fan-out)
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) openRedis(ctx context.Context) error {
	a.localBus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		Logger:  a.log,
		Metrics: a.metrics,
	})
	a.onClose(a.localBus.Close)

	if !a.cfg.Redis.Enabled {
		a.locker = locks.NewKeyedMutex()
		a.cache = memory.NewSummaryCache()
		a.bus = a.localBus
		return nil
	}

	rc := a.cfg.Redis
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = rc.Host
	redisCfg.Port = rc.Port
	redisCfg.Password = rc.Password
	redisCfg.DB = rc.DB
	redisCfg.PoolSize = rc.PoolSize
	redisCfg.KeyPrefix = rc.KeyPrefix

	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		return err
	}
	a.onClose(cache.Close)
	a.health.AddCheck("redis", observability.PingCheck(cache))

	a.locker = redis.NewLocker(cache, redis.LockerConfig{TTL: rc.LockTTL, MaxWait: rc.LockMaxWait}, a.log)

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		a.log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	a.cache = redis.NewSummaryCache(cache, rc.CacheTTL).WithBreaker(breaker)

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Cache:  cache,
		Local:  a.localBus,
		Logger: a.log,
	})
	if err != nil {
		return err
	}
	a.onClose(bus.Close)
	a.bus = bus
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// startEvents subscribes the journal and the event handlers. The journal
// subscribes first so it sees events in publish order.
func (a *app) startEvents() error {
	if dir := a.cfg.Catalog.JournalDir; dir != "" {
		w := journal.NewWriter(dir, journal.DefaultPrefix, nil, a.metrics)
		if err := a.bus.SubscribeAll(w.Handler()); err != nil {
			return err
		}
		a.onClose(w.Close)
	}

	dcfg := messaging.DefaultDispatcherConfig(a.bus)
	dcfg.MaxAttempts = a.cfg.Engine.HandlerMaxAttempts
	dcfg.DeadLetterQueueSize = a.cfg.Engine.DeadLetterSize
	dcfg.Logger = a.log
	a.dispatcher = messaging.NewDispatcher(dcfg)
	a.dispatcher.Use(messaging.LoggingMiddleware(a.log))

	if err := eventhandler.RegisterAll(a.dispatcher, a.metrics, a.log); err != nil {
		return err
	}
	return a.dispatcher.Start()
}

// dropPublisher discards events of one type and forwards the rest.
type dropPublisher struct {
	next shared.EventPublisher
	drop shared.EventType
}

func (p dropPublisher) Publish(e shared.Event) error {
	if e.EventType() == p.drop {
		return nil
	}
	return p.next.Publish(e)
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) wireHandlers() {
	features := a.cfg.Features
	opts := command.Options{Logger: a.log, Metrics: a.metrics}

	cat := a.catalog.Achievements
	evaluator := achievement.NewEvaluator(cat)
	a.ledger = saga.NewAwardLedger(cat, a.counters)
	flow := saga.NewAchievementFlow(evaluator, a.ledger, a.log)

	var grantPublisher shared.EventPublisher = a.bus
	if !features.AchievementEvents() {
		grantPublisher = dropPublisher{next: a.bus, drop: shared.EventAchievementGranted}
	}

	a.content = command.NewRecordContentHandler(a.ratings, a.directory, a.locker, a.bus,
		command.RecordContentConfig{UniqueViewsDefault: features.UniqueViewsDefault()}, opts)
	a.activity = command.NewRecordActivityHandler(a.progress, a.directory, a.locker, flow, a.cache, a.bus, a.content,
		command.RecordActivityConfig{
			RecentLimit:       a.cfg.Engine.RecentActivityLimit,
			VRFeedback:        features.VRFeedback(),
			AchievementEvents: features.AchievementEvents(),
		}, opts)
	a.grant = command.NewGrantAchievementHandler(a.progress, a.locker, flow, a.cache, grantPublisher, opts)
	a.remove = command.NewDeleteProgressHandler(a.progress, a.ratings, a.content, a.locker, a.cache, a.bus, opts)
	a.batch = command.NewRecordBatchHandler(a.activity, a.cfg.Engine.BatchConcurrency, opts)

	a.summary = query.NewGetProgressSummaryHandler(a.progress, a.directory, cat, a.cache, a.cfg.Engine.RecentActivityLimit, a.log)
	a.achievements = query.NewGetAchievementsHandler(a.progress, evaluator, a.counters, nil)
	a.rating = query.NewGetContentRatingHandler(a.ratings, a.directory)
}

// errNoJournal is returned by the journal commands without JOURNAL_DIR.
var errNoJournal = errors.New("JOURNAL_DIR is not set")
