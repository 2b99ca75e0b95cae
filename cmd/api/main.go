// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/carterperez-dev/eternal-vault/internal/account"
	"github.com/carterperez-dev/eternal-vault/internal/admin"
	"github.com/carterperez-dev/eternal-vault/internal/auth"
	"github.com/carterperez-dev/eternal-vault/internal/capsule"
	"github.com/carterperez-dev/eternal-vault/internal/config"
	"github.com/carterperez-dev/eternal-vault/internal/core"
	"github.com/carterperez-dev/eternal-vault/internal/health"
	"github.com/carterperez-dev/eternal-vault/internal/media"
	"github.com/carterperez-dev/eternal-vault/internal/metrics"
	"github.com/carterperez-dev/eternal-vault/internal/middleware"
	"github.com/carterperez-dev/eternal-vault/internal/migrations"
	"github.com/carterperez-dev/eternal-vault/internal/notify"
	"github.com/carterperez-dev/eternal-vault/internal/server"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	genKeys := flag.Bool("generate-keys", false, "write a fresh ES256 key pair and exit")
	flag.Parse()

	if *genKeys {
		if err := generateKeys(*configPath); err != nil {
			slog.Error("key generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)
	core.SetExposeErrorDetails(cfg.App.ExposeErrorDetails && !cfg.IsProduction())

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"timezone", cfg.Location().String(),
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeOnExit(logger, "database", db)
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		if err := migrations.Apply(ctx, db.DB); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeOnExit(logger, "redis", redis)
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	collector := metrics.NewCollector()

	accountRepo := account.NewRepository(db.DB)
	accountSvc := account.NewService(accountRepo, cfg.Economy)
	accountHandler := account.NewHandler(accountSvc)

	authSvc := auth.NewService(jwtManager, accountSvc, cfg.Admin.SetupToken)
	authHandler := auth.NewHandler(authSvc)

	rewards := capsule.NewRewardDispatcher(capsule.RewardDispatcherConfig{
		Accounts:      accountRepo,
		Workers:       cfg.Rewards.Workers,
		QueueSize:     cfg.Rewards.QueueSize,
		CreditTimeout: cfg.Rewards.CreditTimeout,
		Metrics:       collector,
		Logger:        logger,
	})
	rewards.Start(ctx)

	capsuleRepo := capsule.NewRepository(db.DB)
	engine := capsule.NewEngine(capsule.EngineConfig{
		Capsules: capsuleRepo,
		Accounts: accountRepo,
		Rewards:  rewards,
		Location: cfg.Location(),
		Economy:  cfg.Economy,
		Metrics:  collector,
		Logger:   logger,
	})
	capsuleHandler := capsule.NewHandler(engine, accountRepo)

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Capsules: capsuleRepo,
		Notifier: notify.NewMailer(cfg.Mail, logger),
		BaseURL:  cfg.Notify.BaseURL,
		Metrics:  collector,
		Logger:   logger,
	})

	var scheduler *notify.Scheduler
	if cfg.Notify.Enabled {
		scheduler, err = notify.NewScheduler(notify.SchedulerConfig{
			Sweeper:  dispatcher,
			Locker:   redis,
			Location: cfg.Location(),
			Schedule: cfg.Notify.Schedule,
			LockTTL:  cfg.Notify.LockTTL,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		logger.Info("unlock notifications scheduled",
			"schedule", cfg.Notify.Schedule,
		)
	}

	var mediaHandler *media.Handler
	if cfg.Storage.Enabled {
		store, storeErr := media.NewS3Store(ctx, cfg.Storage)
		if storeErr != nil {
			return storeErr
		}
		mediaHandler = media.NewHandler(store, cfg.Storage.MaxUploadBytes)
		logger.Info("media storage enabled", "bucket", store.Bucket())
	}

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Economy:    accountSvc,
		Capsules:   engine,
		Sweeper:    dispatcher,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing)
	router.Use(middleware.Logger(logger))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))
	if cfg.Metrics.Enabled {
		router.Use(collector.Middleware)
	}
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())
	if cfg.Metrics.Enabled {
		router.Handle("/metrics", collector.Handler())
	}

	authenticator := middleware.Authenticator(jwtManager)
	optionalAuth := middleware.OptionalAuth(jwtManager)
	adminOnly := middleware.RequireAdmin
	accessLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerMinute(
			cfg.RateLimit.AccessRequests,
			cfg.RateLimit.AccessBurst,
		),
		KeyFunc:  middleware.KeyByIP,
		FailOpen: false,
		Scope:    "capsule_access",
	}).Handler

	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			authHandler.RegisterRoutes(r)
			accountHandler.RegisterProfileRoutes(r, authenticator)
		})

		accountHandler.RegisterLeaderboardRoutes(r)
		capsuleHandler.RegisterRoutes(r, authenticator, optionalAuth, accessLimiter)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)

		if mediaHandler != nil {
			mediaHandler.RegisterRoutes(r, authenticator)
		}
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("scheduler shutdown error", "error", err)
		}
	}

	if err := rewards.Stop(shutdownCtx); err != nil {
		logger.Error("reward dispatcher shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	logger.Info("application stopped")
	return nil
}

// closeOnExit runs on every return from run, including startup failures
// after the resource was opened.
func closeOnExit(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}

func generateKeys(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	privPath := cfg.JWT.PrivateKeyPath
	pubPath := privPath + ".pub"
	if err := auth.GenerateKeyPair(privPath, pubPath); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "wrote %s and %s\n", privPath, pubPath)
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
