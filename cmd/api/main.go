package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/exception-collector/internal/alerting"
	"github.com/kursadbilgin/exception-collector/internal/auth"
	"github.com/kursadbilgin/exception-collector/internal/config"
	"github.com/kursadbilgin/exception-collector/internal/executor"
	"github.com/kursadbilgin/exception-collector/internal/handler"
	"github.com/kursadbilgin/exception-collector/internal/hub"
	"github.com/kursadbilgin/exception-collector/internal/infra/postgresql"
	"github.com/kursadbilgin/exception-collector/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/exception-collector/internal/infra/redis"
	"github.com/kursadbilgin/exception-collector/internal/loader"
	"github.com/kursadbilgin/exception-collector/internal/observability"
	"github.com/kursadbilgin/exception-collector/internal/queue"
	"github.com/kursadbilgin/exception-collector/internal/ratelimit"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"github.com/kursadbilgin/exception-collector/internal/service"
	"github.com/kursadbilgin/exception-collector/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	// Redis backs the shared mutation rate limiter; without it the limiter
	// falls back to in-process counters.
	var rdb *goredis.Client
	var limiter ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()

		limiter, err = infraredis.NewDualWindowRateLimiter(rdb, cfg.MutationsPerMinute, cfg.MutationsPerHour)
		if err != nil {
			logger.Fatal("redis rate limiter initialization failed", zap.Error(err))
		}
	} else {
		logger.Warn("REDIS_URL not set, mutation rate limits are per-instance")
		limiter = ratelimit.NewDualWindowLimiter(cfg.MutationsPerMinute, cfg.MutationsPerHour)
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	publisher := queue.NewRabbitMQPublisher(mq)
	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerConcurrency, logger)

	exceptions := repository.NewGormExceptionRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	changes := repository.NewGormStatusChangeRepo(db)
	audits := repository.NewGormAuditRepo(db)

	metrics := observability.NewMetrics()

	evaluator := alerting.NewEvaluator(exceptions, alerting.Thresholds{
		RetryCount:         cfg.AlertRetryWarning,
		RetryCountCritical: cfg.AlertRetryCritical,
		CustomerVolume:     cfg.AlertVolumeWarning,
		CustomerVolumeCrit: cfg.AlertVolumeCritical,
		CustomerVolumeSpan: cfg.AlertVolumeSpan,
	}, logger)

	events, err := hub.NewHub(hub.NewMapRegistry(), auth.NewViewPolicy(), logger,
		hub.WithBufferSize(cfg.StreamBufferSize),
		hub.WithMaxLifetime(cfg.StreamMaxLifetime),
		hub.WithIdleTimeout(cfg.StreamIdleTimeout),
	)
	if err != nil {
		logger.Fatal("event hub initialization failed", zap.Error(err))
	}

	lifecycle, err := service.NewLifecycleService(exceptions, attempts, changes, publisher, evaluator, events, logger)
	if err != nil {
		logger.Fatal("lifecycle service initialization failed", zap.Error(err))
	}

	guard, err := service.NewMutationGuard(auth.NewMutationPolicy(), limiter, audits, logger)
	if err != nil {
		logger.Fatal("mutation guard initialization failed", zap.Error(err))
	}
	guard.SetMetrics(metrics)

	exec, err := executor.NewHTTPExecutor(cfg.UpstreamBaseURL)
	if err != nil {
		logger.Fatal("upstream executor initialization failed", zap.Error(err))
	}

	worker, err := service.NewRetryWorker(exceptions, lifecycle, consumer, exec, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("retry worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	scanner, err := service.NewStaleScanner(attempts, lifecycle, cfg.StaleScanInterval, cfg.StaleRetryAfter, 0, logger)
	if err != nil {
		logger.Fatal("stale scanner initialization failed", zap.Error(err))
	}

	exceptionHandler, err := handler.NewExceptionHandler(
		lifecycle,
		guard,
		events,
		auth.NewViewPolicy(),
		func() *loader.Loaders { return loader.ForRequest(exceptions, attempts, changes) },
		audits,
		logger,
	)
	if err != nil {
		logger.Fatal("exception handler initialization failed", zap.Error(err))
	}
	exceptionHandler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	exceptionHandler.RegisterRoutes(app)

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events.Start(ctx)
	defer events.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Start(gctx)
	})
	g.Go(func() error {
		return scanner.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("exception-collector api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("server terminated unexpectedly", zap.Error(err))
	}

	logger.Info("exception-collector api stopped")
}
