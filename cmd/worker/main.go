package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/cache"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/config"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/erp"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/worker"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file (ignore error if file doesn't exist - use system env vars)
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis cache
	redisCache, err := cache.New(cfg)
	if err != nil {
		log.Error(ctx, "Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	log.Info(ctx, "Connected to Redis")

	client, err := erp.NewClient(erp.Config{
		ServerRoot: cfg.ERPServerRoot,
		Database:   cfg.ERPDatabase,
		Username:   cfg.ERPUsername,
		Password:   cfg.ERPAPIToken,
		FetchLimit: cfg.ERPFetchLimit,
		Logger:     log,
	})
	if err != nil {
		log.Error(ctx, "Failed to create OpenSPP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	queue := erp.NewQueueCardsClient(client, cfg.ERPQueueBatchModel, cfg.ERPIDQueueModel)

	m := metrics.New()

	merger := worker.NewMerger(redisCache, queue, worker.MergerConfig{
		Interval:  cfg.MergePollInterval,
		BatchSize: cfg.MergeBatchSize,
		TempRoot:  cfg.TempRoot,
		Logger:    log,
		Observer:  m,
	})

	// Metrics endpoint for the worker process
	var app *fiber.App
	if cfg.WorkerMetricsAddr != "" {
		app = fiber.New(fiber.Config{DisableStartupMessage: true})
		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "healthy", "time": time.Now().Unix()})
		})
		app.Get("/metrics", m.Handler())

		go func() {
			if err := app.Listen(cfg.WorkerMetricsAddr); err != nil {
				log.Error(ctx, "Metrics listener stopped", "error", err)
			}
		}()
	}

	log.Info(ctx, "Starting Merge Worker...", "openspp", cfg.ERPServerRoot)
	done := make(chan struct{})
	go func() {
		merger.Start(ctx)
		close(done)
	}()

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info(context.Background(), "Shutting down Merge Worker...")
	cancel()

	// Let an in-flight merge finish
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn(context.Background(), "Merge still running at shutdown")
	}

	if app != nil {
		_ = app.Shutdown()
	}
	log.Info(context.Background(), "Merge Worker stopped")
}
