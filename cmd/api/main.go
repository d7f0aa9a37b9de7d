package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/api/handlers"
	"github.com/edinburgh-finds/backend/internal/cache/redis"
	"github.com/edinburgh-finds/backend/internal/discovery"
	"github.com/edinburgh-finds/backend/internal/extraction"
	"github.com/edinburgh-finds/backend/internal/metrics"
	"github.com/edinburgh-finds/backend/internal/middleware/ratelimit"
	"github.com/edinburgh-finds/backend/internal/middleware/security"
	"github.com/edinburgh-finds/backend/internal/middleware/validation"
	"github.com/edinburgh-finds/backend/internal/pipeline"
	"github.com/edinburgh-finds/backend/internal/storage/sqlite"
	"github.com/edinburgh-finds/backend/internal/upsert"
	"github.com/edinburgh-finds/backend/pkg/config"
	appLogger "github.com/edinburgh-finds/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Edinburgh Finds API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
	}

	extractionClient := extraction.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	discoveryClient := discovery.NewClient(
		cfg.Search.SerpAPIKey,
		time.Duration(cfg.Search.TimeoutSec)*time.Second,
		cfg.Extraction.MaxPageChars,
	)

	orchestrator := upsert.New(sqliteClient, cfg.Extraction.PhoneRegion)

	// interface values holding a nil *redis.Client must stay nil interfaces
	var invalidator pipeline.Invalidator
	var listingCache handlers.ListingCache
	if redisClient != nil {
		invalidator = redisClient
		listingCache = redisClient
	}

	runner := pipeline.NewRunner(discoveryClient, extractionClient, orchestrator, invalidator, cfg.Extraction.MaxURLs)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.Headers())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(ratelimit.Middleware(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	}))
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	ingestHandler := handlers.NewIngestHandler(runner, orchestrator)
	listingHandler := handlers.NewListingHandler(sqliteClient, listingCache)
	wsHandler := handlers.NewWebSocketHandler(runner)

	api := app.Group("/api/v1")

	api.Post("/ingest", ingestHandler.HandleIngest)
	api.Post("/candidates", ingestHandler.HandleCandidate)

	api.Get("/listings", listingHandler.FindListing)
	api.Get("/listings/:id", listingHandler.GetListing)
	api.Get("/listings/:id/venue", listingHandler.GetVenue)
	api.Get("/stats", listingHandler.GetStats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/ingest", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
