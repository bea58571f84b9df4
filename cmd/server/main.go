package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/cache"
	"github.com/yourorg/exchange-aggregator/internal/client"
	"github.com/yourorg/exchange-aggregator/internal/config"
	"github.com/yourorg/exchange-aggregator/internal/events"
	"github.com/yourorg/exchange-aggregator/internal/handler"
	"github.com/yourorg/exchange-aggregator/internal/lock"
	"github.com/yourorg/exchange-aggregator/internal/middleware"
	"github.com/yourorg/exchange-aggregator/internal/parser"
	"github.com/yourorg/exchange-aggregator/internal/repository"
	"github.com/yourorg/exchange-aggregator/internal/scheduler"
	"github.com/yourorg/exchange-aggregator/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to database
	db, err := connectToDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis client (if enabled)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		_, err = redisClient.Ping(context.Background()).Result()
		if err != nil {
			logger.Warn("Failed to connect to Redis, running with in-process fallbacks", zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Connected to Redis", zap.String("address", cfg.Redis.URL))
		}
	}

	// Catalog cache and sync lock fall back to in-process
	// implementations when Redis is unavailable; single-flight then
	// only holds within this process.
	var catalogStore cache.Store
	var syncLocker lock.Locker
	if redisClient != nil {
		catalogStore = cache.NewRedisStore(redisClient)
		syncLocker = lock.NewRedisLocker(redisClient)
	} else {
		catalogStore = cache.NewMemoryStore()
		syncLocker = lock.NewMemoryLocker()
	}

	// Initialize Kafka producer (if enabled)
	var producer *events.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer producer.Close()
		logger.Info("Initialized Kafka producer", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	// Create repositories
	exchangerRepo := repository.NewExchangerRepository(db, logger)
	catalogRepo := repository.NewCatalogRepository(db, logger)
	offerRepo := repository.NewOfferRepository(db, logger)
	blacklistRepo := repository.NewBlackListRepository(db, logger)
	directionRepo := repository.NewDirectionRepository(db, logger)
	partnerRepo := repository.NewPartnerRepository(db, logger)
	reviewRepo := repository.NewReviewRepository(db, logger)
	currencyRepo := repository.NewCurrencyRepository(db, logger)

	// Create clients
	feedClient := client.NewFeedClient(&http.Client{}, cfg.Sync.FeedTimeout, logger)
	rateClient := client.NewRateClient(cfg.RateSource.BaseURL, cfg.RateSource.Timeout, logger)

	// Create services
	catalogService := service.NewCatalogService(catalogRepo, catalogStore, cfg.Sync.CatalogTTL, logger)
	syncService := service.NewSyncService(
		exchangerRepo,
		offerRepo,
		blacklistRepo,
		directionRepo,
		catalogService,
		feedClient,
		parser.NewParser(logger),
		syncLocker,
		producer,
		cfg.Sync.LockTTL,
		cfg.Sync.RunBudget,
		logger,
	)
	directionService := service.NewDirectionService(
		offerRepo,
		partnerRepo,
		currencyRepo,
		reviewRepo,
		directionRepo,
		logger,
	)
	exchangerService := service.NewExchangerService(exchangerRepo, offerRepo, blacklistRepo, syncService, logger)
	rateService := service.NewRateService(directionRepo, rateClient, logger)
	partnerService := service.NewPartnerService(partnerRepo, cfg.Sync.PartnerLifetime, logger)

	// Start the scheduler
	sched := scheduler.New(syncService, exchangerRepo, cfg.Sync, logger)
	exchangerService.SetScheduler(sched)
	if err := sched.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	sched.RunPeriodic("reference-rates", 10*time.Minute, rateService.RefreshReferenceCourses)
	sched.RunPeriodic("stale-partners", time.Hour, partnerService.DeactivateStale)

	// Create HTTP server
	router := setupRouter(directionService, exchangerService, cfg.ServiceKey, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	sched.Stop()

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func createLogger(level string) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	// Create logger config
	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

func connectToDB(dbConfig config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName,
		dbConfig.SSLMode,
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}

func setupRouter(
	directionService *service.DirectionService,
	exchangerService *service.ExchangerService,
	serviceKey string,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		// ==================== PUBLIC ROUTES ====================
		directionHandler := handler.NewDirectionHandler(directionService, logger)
		v1.GET("/directions", directionHandler.Query)

		// ==================== INTERNAL ROUTES ====================
		exchangers := v1.Group("/exchangers")
		exchangers.Use(middleware.ServiceAuthMiddleware(serviceKey, logger))
		{
			exchangerHandler := handler.NewExchangerHandler(exchangerService, logger)
			exchangers.GET("", exchangerHandler.List)
			exchangers.GET("/:id", exchangerHandler.Get)
			exchangers.GET("/:id/offers", exchangerHandler.ListOffers)
			exchangers.GET("/:id/blacklist", exchangerHandler.ListBlackList)
			exchangers.POST("/:id/sync", exchangerHandler.TriggerSync)
			exchangers.POST("/:id/blacklist-rescan", exchangerHandler.TriggerRescan)
			exchangers.PUT("/:id/periods", exchangerHandler.UpdatePeriods)
			exchangers.PUT("/:id/active", exchangerHandler.SetActive)
			exchangers.POST("/:id/info-refresh", exchangerHandler.RefreshInfo)
		}
	}

	return router
}
