package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/api"
	"github.com/jafarshop/shopsync/internal/api/handlers"
	"github.com/jafarshop/shopsync/internal/cache"
	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/events"
	"github.com/jafarshop/shopsync/internal/jobs"
	"github.com/jafarshop/shopsync/internal/logger"
	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/ratelimit"
	"github.com/jafarshop/shopsync/internal/repository"
	"github.com/jafarshop/shopsync/internal/repository/memory"
	"github.com/jafarshop/shopsync/internal/repository/postgres"
	"github.com/jafarshop/shopsync/internal/resilience"
	"github.com/jafarshop/shopsync/internal/scheduler"
	"github.com/jafarshop/shopsync/internal/security"
	"github.com/jafarshop/shopsync/internal/service"
	"github.com/jafarshop/shopsync/internal/shopify"
)

func main() {
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting Shopify sync server",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, db := openRepositories(ctx, cfg, zlog)
	if db != nil {
		defer db.Close()
	}

	// Redis backs the cache and the limiters when configured
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Fatal("Failed to connect to redis", zap.Error(err))
		}
		zlog.Info("Using redis for cache and rate limits", zap.String("addr", cfg.Redis.Addr))
	}

	memCache := cache.NewMemoryStore()
	var store cache.Store = memCache
	limiters := api.NewMemoryLimiters()
	if rdb != nil {
		store = cache.NewRedisStore(rdb, "shopsync:")
		limiters = api.Limiters{
			API:     ratelimit.NewRedisLimiter(rdb, ratelimit.APIRule),
			Webhook: ratelimit.NewRedisLimiter(rdb, ratelimit.WebhookRule),
			OAuth:   ratelimit.NewRedisLimiter(rdb, ratelimit.OAuthRule),
			Install: ratelimit.NewRedisLimiter(rdb, ratelimit.InstallRule),
		}
	}

	publisher := newPublisher(cfg, zlog)
	defer publisher.Close()

	var alerter monitoring.Alerter
	if cfg.Slack.WebhookURL != "" {
		alerter = monitoring.NewSlackAlerter(cfg.Slack.WebhookURL, cfg.Slack.Channel)
	}
	errTracker := monitoring.NewErrorTracker(zlog, alerter)
	metrics := monitoring.NewCollector()
	tokens := security.NewTokenCipher(cfg.Security.EncryptionKey)
	if !tokens.Enabled() {
		zlog.Warn("ENCRYPTION_KEY not set, access tokens are stored unencrypted")
	}

	shopifyClient := shopify.NewClient(cfg.Shopify, zlog)

	tracker := jobs.NewTracker(zlog)
	queue := jobs.NewQueue(tracker, zlog, cfg.Sync.MaxAttempts)
	syncService := service.NewSyncService(service.Dependencies{
		Repos:         repos,
		Shopify:       shopifyClient,
		Queue:         queue,
		Tracker:       tracker,
		Breaker:       resilience.NewBreaker(zlog),
		Cache:         store,
		Events:        publisher,
		Errors:        errTracker,
		Metrics:       metrics,
		Tokens:        tokens,
		Logger:        zlog,
		FallbackToken: cfg.Shopify.AccessToken,
		Retry:         resilience.DefaultRetryOptions(),
		BatchPause:    service.DefaultBatchPause,
	})

	queue.Start(ctx)

	sched := scheduler.New(zlog, ctx)
	mustSchedule(zlog, sched.Add("job-cleanup", cfg.Sync.CleanupSchedule, func(context.Context) error {
		if n := tracker.Cleanup(); n > 0 {
			zlog.Info("Old jobs cleaned up", zap.Int("removed", n))
		}
		return nil
	}))
	mustSchedule(zlog, sched.Add("memory-sweep", cfg.Sync.SweepSchedule, func(context.Context) error {
		swept := memCache.Purge()
		for _, l := range []ratelimit.Limiter{limiters.API, limiters.Webhook, limiters.OAuth, limiters.Install} {
			if m, ok := l.(*ratelimit.MemoryLimiter); ok {
				swept += m.Sweep()
			}
		}
		zlog.Debug("Expired entries swept", zap.Int("removed", swept))
		return nil
	}))
	mustSchedule(zlog, sched.Add("incremental-sync", cfg.Sync.IncrementalSchedule, syncService.ScheduledIncrementalSync))
	sched.Start()

	deps := &handlers.Dependencies{
		Sync:    syncService,
		Repos:   repos,
		OAuth:   shopifyClient,
		Cache:   store,
		Tokens:  tokens,
		Errors:  errTracker,
		Metrics: metrics,
		Events:  publisher,
	}
	router := api.NewRouter(cfg, deps, limiters, zlog)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	zlog.Info("Server started successfully", zap.String("address", srv.Addr))

	<-ctx.Done()
	zlog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	sched.Stop()
	queue.Stop()

	zlog.Info("Server exited")
}

// openRepositories uses Postgres when DB_HOST is set and keeps everything in
// memory otherwise.
func openRepositories(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (*repository.Repositories, *sql.DB) {
	if !cfg.Database.Enabled() {
		zlog.Warn("DB_HOST not set, using in-memory storage")
		return memory.NewRepositories(), nil
	}

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}

	applied, err := postgres.RunMigrations(ctx, db)
	if err != nil {
		zlog.Fatal("Failed to run migrations", zap.Error(err))
	}
	if len(applied) > 0 {
		zlog.Info("Migrations applied", zap.Ints("versions", applied))
	}

	return postgres.NewRepositories(db, zlog), db
}

func newPublisher(cfg *config.Config, zlog *zap.Logger) events.Publisher {
	if cfg.Kafka.Brokers == "" {
		return events.NewLogPublisher(zlog)
	}
	p, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		zlog.Fatal("Failed to create kafka publisher", zap.Error(err))
	}
	zlog.Info("Publishing sync events to kafka", zap.String("topic", cfg.Kafka.Topic))
	return p
}

func mustSchedule(zlog *zap.Logger, err error) {
	if err != nil {
		zlog.Fatal("Failed to schedule job", zap.Error(err))
	}
}
