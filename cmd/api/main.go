package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"luminatext/internal/api"
	"luminatext/internal/config"
	"luminatext/internal/deepgram"
	"luminatext/internal/queue"
	"luminatext/internal/storage"
	"luminatext/internal/transcription"
	"luminatext/pkg/cache"
	"luminatext/pkg/logger"
	"luminatext/pkg/metrics"
	"luminatext/pkg/resilience"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file first
	_ = godotenv.Load()

	resetDB := flag.Bool("reset-db", false, "Drop all Postgres tables and re-run migrations, then exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.Server.Debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	if *resetDB {
		if cfg.Postgres.DSN == "" {
			logger.Fatal("POSTGRES_DSN is required for -reset-db")
		}
		if err := storage.ResetMigrations(cfg.Postgres.DSN, cfg.Postgres.MigrationsPath); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset completed successfully")
		return
	}

	logger.Info("Starting LuminaText API",
		zap.String("environment", cfg.Server.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	deps := transcription.Deps{
		Validator:       transcription.NewValidator(cfg.Upload.MaxFileSize),
		Stager:          transcription.NewStager(cfg.Upload.TempDir),
		ProviderOptions: transcription.DefaultOptions(cfg.Deepgram.Model),
		Metrics:         m,
	}

	if cfg.ProviderConfigured() {
		breaker := resilience.NewCircuitBreaker(cfg.Deepgram.BreakerFailures, cfg.Deepgram.BreakerCooldown)
		deps.Provider = deepgram.NewClient(cfg.Deepgram.APIKey, cfg.Deepgram.BaseURL, cfg.Deepgram.Timeout,
			deepgram.WithCircuitBreaker(breaker))
		logger.Info("Deepgram client initialized", zap.String("model", cfg.Deepgram.Model))
	} else {
		logger.Warn("DEEPGRAM_API_KEY not set, transcription requests will fail")
	}

	store, closeStore, storeErr := openStore(ctx, cfg)
	defer closeStore()

	if store != nil && cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			logger.Warn("Redis unavailable, history cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			store = storage.NewCachedStore(store, redisCache)
			logger.Info("Redis history cache enabled")
		}
	}
	deps.Store = store

	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, events disabled", zap.Error(err))
		} else {
			defer rabbitMQ.Close()
			deps.Publisher = rabbitMQ
			logger.Info("RabbitMQ connection established")
		}
	}

	if cfg.S3.Bucket != "" {
		archive, err := storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
		})
		if err != nil {
			logger.Warn("S3 unavailable, audio archive disabled", zap.Error(err))
		} else {
			deps.Archive = archive
		}
	}

	service := transcription.NewService(deps)

	var limiter *resilience.RateLimiter
	if cfg.RateLimit.PerMinute > 0 {
		limiter = resilience.NewPerMinuteLimiter(cfg.RateLimit.PerMinute)
	}

	handler := api.NewHandler(service, service.Validator(), api.Readiness{
		ProviderConfigured: cfg.ProviderConfigured(),
		StoreConfigured:    cfg.StoreConfigured(),
		StoreErr:           storeErr,
	})
	server := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Environment: cfg.Server.Environment,
		ReadTimeout: time.Minute,
		IdleTimeout: 2 * time.Minute,
	}, handler, m.Handler(), limiter)

	server.Start()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("LuminaText API shutdown complete")
}

// openStore connects to MongoDB when MONGODB_URI is set, otherwise to
// Postgres when POSTGRES_DSN is set. A store that cannot be reached after
// retries is logged and left out, so transcription still works; its last
// error is returned for the health report.
func openStore(ctx context.Context, cfg *config.Config) (transcription.Store, func(), error) {
	noop := func() {}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("Store connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	switch {
	case cfg.Mongo.URI != "":
		var store *storage.MongoStore
		err := resilience.RetryWithExponentialBackoff(ctx, retry, func(ctx context.Context) error {
			var err error
			store, err = storage.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
			return err
		})
		if err != nil {
			logger.Error("MongoDB unavailable, history disabled", zap.Error(err))
			return nil, noop, err
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Warn("Failed to disconnect MongoDB", zap.Error(err))
			}
		}, nil

	case cfg.Postgres.DSN != "":
		var store *storage.PostgresStore
		err := resilience.RetryWithExponentialBackoff(ctx, retry, func(ctx context.Context) error {
			var err error
			store, err = storage.NewPostgresStore(ctx, cfg.Postgres.DSN, cfg.Postgres.MigrationsPath)
			return err
		})
		if err != nil {
			logger.Error("Postgres unavailable, history disabled", zap.Error(err))
			return nil, noop, err
		}
		return store, store.Close, nil

	default:
		logger.Warn("No database configured, transcriptions will not be saved")
		return nil, noop, nil
	}
}
