package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/opentraffic/analyst/internal/pkg/metrics"
)

// APIVersion is reported in the X-API-Version header.
const APIVersion = "1.0.0"

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Continue traces started by callers
	app.Use(TracingMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", APIVersion)
		return c.Next()
	})

	// ETag runs its post-processing after Cache-Control is set below
	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	rt := deps.requestTimeout()
	v1 := app.Group("/v1")
	v1.Get("/region", timeout.NewWithContext(RegionHandler(deps), rt))
	v1.Delete("/region", timeout.NewWithContext(ClearRegionHandler(deps), rt))
	v1.Get("/region/state", RegionStateHandler(deps))
	v1.Get("/region/signals", SignalsHandler(deps))
	v1.Get("/route", timeout.NewWithContext(RouteHandler(deps), rt))
	v1.Get("/sources/:name", SourceHandler(deps))
	v1.Get("/tiles", TilesHandler(deps))
	v1.Get("/tiles/cached", CachedTilesHandler(deps))

	// GraphQL
	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), rt))

	// API documentation (Swagger UI)
	if err := SetupDocs(app); err != nil {
		slog.Warn("api docs disabled", "error", err)
	}

	// WebSocket relay needs NATS
	if deps.Relay == nil {
		return
	}
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.Relay)))
}
