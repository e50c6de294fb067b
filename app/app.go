package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"longentry/cache"
	"longentry/config"
	"longentry/database"
	"longentry/database/candles"
	"longentry/database/fundamentals"
	"longentry/database/markets"
	"longentry/database/results"
	"longentry/database/settings"
	"longentry/database/snapshots"
	"longentry/fundamental"
	"longentry/metrics"
	"longentry/notifications"
	"longentry/realtime"
)

// HTTPServer is the API surface started by Serve.
type HTTPServer interface {
	Start(port int) error
	Shutdown(ctx context.Context) error
}

// App represents the main application
type App struct {
	config *config.Config

	db    *database.Database
	redis *cache.RedisClient

	markets      *markets.Repository
	candles      *candles.Repository
	snapshots    *snapshots.Repository
	fundamentals *fundamentals.Repository
	settings     *settings.Repository
	results      *results.Repository

	broker    *realtime.Broker
	feed      *fundamental.Feed
	webhooks  *notifications.WebhookManager
	metrics   *metrics.Metrics
	runner    *Runner
	rerank    *RerankService
	overrides *OverrideService
	query     *QueryService
	analytics *AnalyticsService
	scheduler *Scheduler
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Init connects the stores and builds the services. Every command calls it
// before using the accessors.
func (a *App) Init(ctx context.Context) error {
	// 1. Database Connection
	log.Info().Str("host", a.config.Database.Host).Msg("🗄️  Connecting to database...")
	db, err := database.Connect(database.Config{
		Host:         a.config.Database.Host,
		Port:         a.config.Database.Port,
		User:         a.config.Database.User,
		Password:     a.config.Database.Password,
		DBName:       a.config.Database.Name,
		SSLMode:      a.config.Database.SSLMode,
		MaxOpenConns: a.config.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// 2. Redis Connection
	if a.config.Redis.Enabled {
		log.Info().Str("host", a.config.Redis.Host).Msg("🧠 Connecting to Redis...")
		a.redis = cache.NewRedisClient(a.config.Redis.Host, a.config.Redis.Port, a.config.Redis.Password)
		if a.redis == nil {
			log.Warn().Msg("⚠️  Redis connection failed. Caching and run lock disabled.")
		}
	}

	// 3. Schema
	schemaCtx, cancel := context.WithTimeout(ctx, database.SchemaInitTimeout)
	defer cancel()
	if err := a.db.InitSchema(schemaCtx); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	gdb := a.db.DB()
	a.markets = markets.NewRepository(gdb)
	a.candles = candles.NewRepository(gdb)
	a.snapshots = snapshots.NewRepository(gdb)
	a.fundamentals = fundamentals.NewRepository(gdb)
	a.settings = settings.NewRepository(gdb)
	a.results = results.NewRepository(gdb)

	if a.redis != nil {
		a.feed = fundamental.NewFeed(a.fundamentals, cache.NewFundamentalCache(a.redis))
	} else {
		a.feed = fundamental.NewFeed(a.fundamentals, nil)
	}

	a.webhooks = notifications.NewWebhookManager(notifications.Config{
		URLs:       a.config.Alerts.WebhookURLs,
		AuthHeader: a.config.Alerts.AuthHeader,
		AuthValue:  a.config.Alerts.AuthValue,
		Retries:    a.config.Alerts.Retries,
		RetryDelay: a.config.Alerts.RetryDelay,
	})
	a.metrics = metrics.New()

	deps := RunnerDeps{
		Universe:     a.markets,
		Candles:      a.candles,
		Store:        a.snapshots,
		Fundamentals: a.feed,
		Settings:     a.settings,
		LockTTL:      a.config.Run.LockTTL,
		Metrics:      a.metrics,
	}
	if a.webhooks.Enabled() {
		deps.Notifier = a.webhooks
	}
	a.broker = realtime.NewBroker()
	pubs := publishers{a.broker}
	if a.redis != nil {
		deps.Lock = a.redis
		if a.config.Run.PublishActivations {
			pubs = append(pubs, a.redis)
		}
	}
	deps.Publisher = pubs

	eng := a.config.Engine
	a.runner = NewRunner(eng, deps)
	a.rerank = NewRerankService(eng.Pools, a.markets, a.snapshots, a.settings, pubs)
	a.overrides = NewOverrideService(eng.Pools, a.markets, a.snapshots, pubs, eng.SessionOffset())
	a.query = NewQueryService(a.snapshots, eng.SessionOffset())
	a.analytics = NewAnalyticsService(a.markets, a.snapshots, a.candles, eng.Backtest, eng.SessionOffset())
	return nil
}

// Runner returns the weekly runner
func (a *App) Runner() *Runner {
	return a.runner
}

// Rerank returns the pool re-rank service
func (a *App) Rerank() *RerankService {
	return a.rerank
}

// Overrides returns the override service
func (a *App) Overrides() *OverrideService {
	return a.overrides
}

// Query returns the read service
func (a *App) Query() *QueryService {
	return a.query
}

// Analytics returns the history and backtest service
func (a *App) Analytics() *AnalyticsService {
	return a.analytics
}

// Metrics returns the process metrics
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Events returns the SSE broker of activation changes
func (a *App) Events() *realtime.Broker {
	return a.broker
}

// Candles returns the candle repository
func (a *App) Candles() *candles.Repository {
	return a.candles
}

// Results returns the weekly result repository
func (a *App) Results() *results.Repository {
	return a.results
}

// Fundamentals returns the fundamental store
func (a *App) Fundamentals() *fundamentals.Repository {
	return a.fundamentals
}

// Health reports whether the database answers
func (a *App) Health(ctx context.Context) error {
	if a.db == nil {
		return database.ErrNotConnected
	}
	return a.db.Ping()
}

// RefreshFundamentals recomputes the fundamental score of the universe for
// the given week.
func (a *App) RefreshFundamentals(ctx context.Context, weekStart time.Time) ([]fundamental.SymbolScore, error) {
	universe, err := a.markets.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	return a.feed.Refresh(ctx, weekStart, universe)
}

// Serve runs the API server and, when enabled, the weekly scheduler until an
// interrupt arrives.
func (a *App) Serve(srv HTTPServer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.broker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(a.config.API.Port); err != nil {
			log.Error().Err(err).Msg("⚠️  API Server failed")
			cancel()
		}
	}()

	if a.config.Run.Schedule {
		a.scheduler = NewScheduler(a.runner, a.config.Run.ScheduleWeekday, a.config.Run.ScheduleHour, a.config.Engine.SessionOffset())
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scheduler.Start(ctx)
		}()
	}

	err := a.gracefulShutdown(ctx, cancel, srv)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(ctx context.Context, cancel context.CancelFunc, srv HTTPServer) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-interrupt:
		log.Info().Msg("🛑 Shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown")
	}
	a.Close()

	if shutdownCtx.Err() != nil {
		log.Warn().Msg("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
	log.Info().Msg("✅ Graceful shutdown completed")
	return nil
}

// Close releases the database and Redis connections
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		} else {
			log.Info().Msg("✅ Database connection closed")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing redis")
		}
		a.redis = nil
	}
}
