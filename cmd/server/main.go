package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/api"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/auth"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/cache"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/config"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/convert"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/db"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/render"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/services"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func fatal(log logging.Logger, msg string, err error) {
	log.Error(context.Background(), msg, "error", err)
	os.Exit(1)
}

func main() {
	// Load .env file (ignore error if file doesn't exist - use system env vars)
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// Initialize database connection
	database, err := db.New(cfg)
	if err != nil {
		fatal(log, "Failed to connect to database", err)
	}
	defer database.Close()
	log.Info(ctx, "Connected to PostgreSQL")

	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx); err != nil {
			fatal(log, "Failed to run migrations", err)
		}
		log.Info(ctx, "Migrations applied")
	}

	// Initialize Redis cache
	redisCache, err := cache.New(cfg)
	if err != nil {
		fatal(log, "Failed to connect to Redis", err)
	}
	defer redisCache.Close()
	log.Info(ctx, "Connected to Redis")

	store, err := storage.New(ctx, cfg)
	if err != nil {
		fatal(log, "Failed to initialize template storage", err)
	}
	log.Info(ctx, "Template storage ready", "backend", cfg.StorageBackend)

	converters := convert.NewManager(convert.ManagerConfig{
		DPIX:      cfg.CardDPIX,
		DPIY:      cfg.CardDPIY,
		Timeout:   cfg.ConvertTimeout,
		Preferred: cfg.PreferredConverter,
		Logger:    log,
	})
	log.Info(ctx, "SVG converters registered", "converters", converters.Available())

	m := metrics.New()

	renderer := render.NewRenderer(render.Config{
		Converter: converters,
		QR:        services.NewQRService(),
		TempRoot:  cfg.TempRoot,
		Logger:    log,
		Observer:  m,
	})

	validator, err := auth.NewValidator(cfg)
	if err != nil {
		fatal(log, "Failed to initialize token validation", err)
	}
	if validator == nil {
		log.Warn(ctx, "No auth configured, /v1 routes are open")
	}

	app := fiber.New(fiber.Config{
		AppName:        "Card Generator API",
		ServerHeader:   "card-generator",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   cfg.ConvertTimeout + 30*time.Second,
		IdleTimeout:    120 * time.Second,
		ReadBufferSize: 16384,
		BodyLimit:      12 << 20,
	})

	app.Use(recover.New())
	app.Use(m.Middleware())

	// Register health endpoints before other routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/ready", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{}
		ready := true

		// Check database
		if err := database.HealthCheck(ctx); err != nil {
			checks["postgres"] = fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			ready = false
		} else {
			stats := database.Stats()
			checks["postgres"] = fiber.Map{
				"status":         "healthy",
				"total_conns":    stats.TotalConns(),
				"idle_conns":     stats.IdleConns(),
				"acquired_conns": stats.AcquiredConns(),
			}
		}

		// Check Redis
		if err := redisCache.HealthCheck(ctx); err != nil {
			checks["redis"] = fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			ready = false
		} else {
			stats := redisCache.Stats()
			checks["redis"] = fiber.Map{
				"status":     "healthy",
				"hits":       stats.Hits,
				"misses":     stats.Misses,
				"idle_conns": stats.IdleConns,
			}
		}

		checks["converters"] = converters.Available()

		status := "ready"
		code := fiber.StatusOK
		if !ready {
			status = "not_ready"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	app.Get("/metrics", m.Handler())

	deps := api.Deps{
		Repo:      database,
		Store:     store,
		Cache:     redisCache,
		Renderer:  renderer,
		Validator: validator,
		Logger:    log,
		Config:    cfg,
	}
	api.RegisterRoutes(app, api.NewHandlers(deps), deps)

	// Start server in goroutine
	go func() {
		addr := cfg.Host + ":" + cfg.Port
		log.Info(ctx, "Starting Card Generator API", "addr", addr)
		if err := app.Listen(addr); err != nil {
			fatal(log, "Failed to start server", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error(ctx, "Server forced to shutdown", "error", err)
	}

	log.Info(ctx, "Server exiting")
}
