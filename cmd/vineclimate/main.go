package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"

	httpapi "github.com/terroirdata/vineclimate/internal/api/http"
	"github.com/terroirdata/vineclimate/internal/climate"
	"github.com/terroirdata/vineclimate/internal/config"
	"github.com/terroirdata/vineclimate/internal/scheduler"
	"github.com/terroirdata/vineclimate/internal/source"
	"github.com/terroirdata/vineclimate/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	pgStore := store.NewPostgresStore(pool)
	if err := pgStore.Migrate(ctx); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Seed the region registry. Idempotent by region name.
	for _, r := range cfg.Regions {
		if _, err := pgStore.UpsertRegion(ctx, r); err != nil {
			log.Fatalf("failed to seed region %q: %v", r.Name, err)
		}
	}
	log.Printf("INFO: region registry seeded with %d region(s)", len(cfg.Regions))

	// Shared HTTP client for outbound archive calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	clock := clockwork.NewRealClock()
	climateSource := source.NewOpenMeteoClient(httpClient, cfg.ClimateModel)
	syncEngine := climate.NewSyncEngine(pgStore, climateSource, clock)
	composer := climate.NewComposer(pgStore, clock)

	// A pipeline run may backfill 30 years for every region; give it ample
	// room beyond the per-request timeout.
	pipeline := scheduler.NewPipeline(syncEngine, composer, pgStore, 30*time.Minute)
	sched := scheduler.New(pipeline, cfg.SyncInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "vineclimate",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "vineclimate",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, pgStore, syncEngine, composer)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
