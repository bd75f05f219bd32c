package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/database"
	"github.com/autochat-io/autochat-backend/internal/config"
	"github.com/autochat-io/autochat-backend/internal/jobs"
	"github.com/autochat-io/autochat-backend/internal/logger"
	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/processing"
	"github.com/autochat-io/autochat-backend/internal/routes"
	"github.com/autochat-io/autochat-backend/internal/services"
	"github.com/autochat-io/autochat-backend/internal/storage"
	"github.com/autochat-io/autochat-backend/internal/transport"
)

func main() {
	// Load .env for local development; production gets real env vars.
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			if err := godotenv.Load("environments/.env.development"); err != nil {
				// No .env file, rely on the environment itself.
			}
		}
	}

	cfg := config.Load()
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		panic(err)
	}
	log := logger.Get()
	defer log.Sync()

	// Storage: PostgreSQL by default, in-memory for tests and demos.
	var store storage.Store
	if cfg.UseMemoryStore {
		log.Warn("using in-memory storage, not for production")
		store = storage.NewMemoryStore()
	} else {
		if err := database.Connect(cfg, log); err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		if err := database.DB.AutoMigrate(
			&models.Tenant{},
			&models.AuthorizedNumber{},
			&models.MessageTemplate{},
			&models.MessageRole{},
			&models.Dataset{},
			&models.DatasetRecord{},
			&models.DatasetFormat{},
		); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
		log.Info("database migrations completed")
		store = storage.NewDatabaseStore(database.DB)
	}
	storage.SetStore(store)

	// The chat transport bridge is wired in per deployment; without one
	// the HTTP API and processing callbacks still work.
	var provider transport.Provider = transport.Unconfigured{}

	processor := processing.NewClient(cfg.ProcessorURL, log)
	hub := processing.NewHub(log)

	auth := services.NewAuthorizationService(store, log)
	pending := services.NewPendingStore(cfg.FormatDecisionTTL, log)
	resolver := services.NewTemplateResolver(store, log)
	dispatcher := services.NewDispatcher(store, auth, pending, resolver, processor, provider, cfg.DatasetDir, log)
	hub.SetTerminalHandler(dispatcher.HandleProcessingStatus)
	sessions := services.NewSessionManager(provider, dispatcher, cfg.ReconnectWait, log)

	sweeper := jobs.NewSweeperJob(store, pending, cfg.IngestionMaxAge, log)
	sweeper.Start()

	app := fiber.New(fiber.Config{
		AppName: "AutoChat Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	routes.Setup(app, store, sessions, hub, processor, cfg.QRWaitTimeout, cfg.ProcessorToken, log)

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		sweeper.Stop()
		if err := app.Shutdown(); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
