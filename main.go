package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"book-club-system/config"
	"book-club-system/handlers"
	"book-club-system/logger"
	"book-club-system/metrics"
	"book-club-system/middleware"
	"book-club-system/services"
	"book-club-system/utils"
	"book-club-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	notificationCleanupInterval = time.Hour
	uploadDir                   = "./uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Configure(logger.Config{
		Level:  logger.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stdout,
	})
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(cfg)

	rewards, err := services.LoadRewardTable(cfg.XPRewardsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load reward table")
	}
	levels := services.NewLevelCalculator(cfg.LevelThreshold)

	var publisher services.Publisher
	if cfg.RedisURL != "" {
		redisPublisher, err := services.NewRedisPublisher(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure redis")
		}
		if err := redisPublisher.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, notifications will only be stored")
		}
		defer redisPublisher.Close()
		publisher = redisPublisher
	}

	notificationService := services.NewNotificationService(store, publisher, logger.Component("notifications"))
	dispatcher := workers.NewNotificationDispatcher(notificationService, workers.DispatcherConfig{
		Workers:   cfg.NotificationWorkers,
		QueueSize: cfg.NotificationQueueSize,
		Timeout:   cfg.NotificationTimeout,
	}, logger.Component("dispatcher"))
	dispatcher.Start(ctx)

	cleanup, err := notificationService.StartNotificationCleanup(ctx, notificationCleanupInterval, cfg.NotificationRetention)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start notification cleanup")
	}

	progressionService := services.NewProgressionService(store, rewards, levels, dispatcher, logger.Component("progression"))
	bulkAwardService := services.NewBulkAwardService(store, rewards, levels, dispatcher, logger.Component("bulk_award"))
	membershipService := services.NewMembershipService(store, progressionService, dispatcher, logger.Component("membership"))
	clubService := services.NewClubService(store, progressionService, coverUploader(ctx, cfg), logger.Component("clubs"))
	bookService := services.NewBookService(store, progressionService, bulkAwardService, logger.Component("books"))

	app := fiber.New(fiber.Config{
		BodyLimit: 8 * 1024 * 1024,
		// Values from the request outlive the handler (stored, dispatched).
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.RequestMetrics())

	// Only Gateway requests allowed, probes excepted.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, logger.Component("gateway"), "/health", "/metrics"))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if !cfg.R2.Enabled() {
		app.Static("/uploads", uploadDir)
	}

	secured := app.Group("/",
		middleware.UserContextMiddleware(logger.Component("user_ctx")),
		middleware.EnsureUserMiddleware(progressionService, logger.Component("user_ctx")),
	)
	handlers.SetupProgressionRoutes(secured, progressionService)
	handlers.SetupClubRoutes(secured, clubService)
	handlers.SetupMembershipRoutes(secured, membershipService)
	handlers.SetupBookRoutes(secured, bookService)
	handlers.SetupNotificationRoutes(secured, notificationService)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("storage", cfg.Storage).
		Strs("origins", cfg.AllowedOrigins).
		Int64("level_threshold", levels.Threshold).
		Msg("server running")

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := cleanup.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
	dispatcher.Close()
}

func openStore(cfg *config.Config) services.Store {
	log := logger.Get()
	if cfg.Storage == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		return services.NewMemoryStore()
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	store := services.NewGormStore(db)
	if err := store.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	return store
}

func coverUploader(ctx context.Context, cfg *config.Config) services.CoverUploader {
	log := logger.Get()
	if cfg.R2.Enabled() {
		uploader, err := utils.NewR2Uploader(ctx, cfg.R2)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		return uploader
	}

	local := &utils.LocalUploader{Dir: uploadDir, BaseURL: "/uploads"}
	if err := local.EnsureUploadDir(); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure upload dir")
	}
	log.Warn().Msg("R2 not configured, storing covers on local disk")
	return local
}
