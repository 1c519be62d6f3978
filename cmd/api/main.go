package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"membersync/internal/audit"
	"membersync/internal/cache"
	"membersync/internal/config"
	"membersync/internal/handler"
	"membersync/internal/middleware"
	"membersync/internal/registration"
	"membersync/internal/remote"
	"membersync/internal/router"
	"membersync/internal/webhook"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load configuration; missing remote credentials fail here.
	cfg := config.MustLoad()
	if cfg.App.Debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}
	log.Info().Str("env", cfg.App.Environment).Str("version", cfg.App.Version).
		Msg("starting membersync")

	// Audit sink: structured log always, sqlite when a path is configured.
	var sinks audit.MultiSink
	sinks = append(sinks, audit.NewLogSink(log))

	var auditDB *audit.SQLiteSink
	if cfg.Audit.Path != "" {
		var err error
		auditDB, err = audit.NewSQLiteSink(cfg.Audit.Path, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open audit database")
		}
		defer auditDB.Close()
		sinks = append(sinks, auditDB)
		log.Info().Str("path", cfg.Audit.Path).Msg("audit database initialized")
	}

	// Remote system plumbing: rate limiter, session, executor. The limiter
	// budgets both API calls and token refreshes.
	limiter := remote.NewLimiter(remote.LimiterConfig{
		Window:     cfg.RateLimit.Window,
		ReadLimit:  cfg.RateLimit.ReadLimit,
		WriteLimit: cfg.RateLimit.WriteLimit,
		AuthLimit:  cfg.RateLimit.AuthLimit,
	})

	sessions := remote.NewSessionManager(remote.SessionConfig{
		TokenURL:  cfg.Remote.TokenURL,
		AccountID: cfg.Remote.AccountID,
		APIKey:    cfg.Remote.APIKey,
		APISecret: cfg.Remote.APISecret,
		Buffer:    cfg.Remote.TokenBuffer,
		Timeout:   cfg.Remote.Timeout,
	}, limiter, sinks, log)

	client := remote.NewClient(remote.ClientConfig{
		BaseURL:          cfg.Remote.BaseURL,
		Identity:         cfg.Remote.AccountID,
		Timeout:          cfg.Remote.Timeout,
		MaxRetries:       cfg.Remote.MaxRetries,
		BackoffBase:      cfg.Remote.BackoffBase,
		BackoffCap:       cfg.Remote.BackoffCap,
		MaxBodyBytes:     cfg.Remote.MaxBodyBytes,
		BreakerThreshold: cfg.Remote.BreakerThreshold,
		BreakerReset:     cfg.Remote.BreakerReset,
		PageSize:         cfg.Remote.PageSize,
		MaxPages:         cfg.Remote.MaxPages,
	}, sessions, limiter, sinks, log)

	// Optional Redis client, shared by the cache store and the webhook
	// idempotency store.
	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		cancel()
		log.Info().Msg("redis client initialized")
	}

	// Member cache store.
	var store cache.Store
	if redisClient != nil {
		store = cache.NewRedisStore(redisClient, cache.RedisStoreConfig{
			Retention: cfg.Cache.Retention,
		})
	} else {
		memStore, err := cache.NewMemoryStore(cfg.Cache.MaxEntries)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize memory cache")
		}
		store = memStore
	}

	memberCache := cache.NewMemberCache(store, client, cache.MemberCacheConfig{
		TTL: cfg.Cache.TTL,
	}, log)

	syncer := cache.NewSyncer(client, memberCache, cache.SyncerConfig{
		Interval: cfg.Cache.SyncInterval,
	}, log)
	syncer.Start()
	defer syncer.Stop()

	// Pending-write queue, durable by default.
	var queue registration.Queue
	switch cfg.Queue.Type {
	case "mysql":
		mysqlQueue, err := registration.NewMySQLQueue(cfg.Queue.MySQLDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize MySQL queue")
		}
		queue = mysqlQueue
		log.Info().Msg("MySQL pending-write queue initialized")
	case "memory":
		queue = registration.NewMemoryQueue()
		log.Warn().Msg("in-memory pending-write queue: writes will not survive a restart")
	default: // sqlite
		sqliteQueue, err := registration.NewSQLiteQueue(cfg.Queue.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize SQLite queue")
		}
		queue = sqliteQueue
		log.Info().Str("path", cfg.Queue.Path).Msg("SQLite pending-write queue initialized")
	}
	defer queue.Close()

	registrationService := registration.NewService(client, memberCache, queue,
		registration.ServiceConfig{
			InlineRetries: cfg.Queue.InlineRetries,
			InlineBackoff: cfg.Queue.InlineBackoff,
		}, log)

	processor := registration.NewProcessor(queue, client, memberCache,
		registration.ProcessorConfig{
			Interval:    cfg.Queue.Interval,
			MaxAttempts: cfg.Queue.MaxAttempts,
			MaxAge:      cfg.Queue.MaxAge,
		}, log)
	processor.Start()
	defer processor.Stop()

	// Webhook ingestion. Change notifications invalidate the affected
	// member's cache entry.
	var idemStore webhook.IdempotencyStore
	if redisClient != nil {
		idemStore = webhook.NewRedisIdempotencyStore(redisClient, cfg.Webhook.RetentionTTL)
	} else {
		memIdem := webhook.NewMemoryIdempotencyStore(cfg.Webhook.RetentionTTL, cfg.Webhook.PruneInterval)
		defer memIdem.Close()
		idemStore = memIdem
	}

	dispatcher := webhook.NewDispatcher(log)
	invalidateMember := func(ctx context.Context, event *webhook.Event) error {
		if id := event.MemberID(); id > 0 {
			memberCache.Invalidate(ctx, id)
		}
		return nil
	}
	dispatcher.Register(webhook.EventMemberUpdated, invalidateMember)
	dispatcher.Register(webhook.EventMemberDeleted, invalidateMember)
	dispatcher.Register(webhook.EventRegistrationCreated, invalidateMember)
	dispatcher.Register(webhook.EventRegistrationCancelled, invalidateMember)

	validator := webhook.NewValidator(webhook.ValidatorConfig{
		Secret:      cfg.Webhook.Secret,
		MaxEventAge: cfg.Webhook.MaxEventAge,
	}, idemStore, dispatcher, log)

	// HTTP surface.
	var auditReader handler.AuditReader
	if auditDB != nil {
		auditReader = auditDB
	}

	r := router.New(router.Config{
		Handler:             handler.New(cfg.App.Version),
		MemberHandler:       handler.NewMemberHandler(memberCache, cfg.Cache.FreshWindow, cfg.Cache.StaleAfter),
		RegistrationHandler: handler.NewRegistrationHandler(registrationService),
		WebhookHandler:      handler.NewWebhookHandler(validator),
		AdminHandler:        handler.NewAdminHandler(queue, auditReader, memberCache),
		AuthMiddleware:      middleware.APIKeyAuth(cfg.App.APIKey),
		Logger:              log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
