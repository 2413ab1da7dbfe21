package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ledgercast/ledgercast/internal/config"
	"github.com/ledgercast/ledgercast/internal/handlers"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/metrics"
	"github.com/ledgercast/ledgercast/internal/middleware"
	"github.com/ledgercast/ledgercast/internal/services"
)

// Setup configures all routes and middlewares. registry may be nil when
// metrics are disabled.
func Setup(app *fiber.App, logger *logging.Logger, predictions *services.PredictionService, registry *metrics.Registry, cfg config.Config) *handlers.Handler {
	h := handlers.New(logger, predictions)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.RequestLogger(logger, "/health", cfg.Metrics.Path))

	// Unauthenticated
	app.Get("/health", h.Health)
	app.Get("/info", h.Info)
	if registry != nil && cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(registry.Handler()))
	}

	v1 := app.Group("/v1",
		middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled),
		middleware.RateLimit(middleware.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}),
	)

	v1.Post("/predictions", h.CreatePrediction)
	v1.Get("/predictions", h.ListPredictions)
	v1.Get("/predictions/:id", h.GetPrediction)
	v1.Get("/stats", h.Stats)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, predictions *services.PredictionService, registry *metrics.Registry, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ledgercast",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		BodyLimit:             cfg.Server.BodyLimit,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, predictions, registry, cfg)

	return app
}
