package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/pinmap/internal/pkg/metrics"
)

const (
	requestTimeout = 15 * time.Second
	apiVersion     = "1.0.0"
)

// SetupRoutes registers the middleware chain and every REST, GraphQL, docs
// and WebSocket route.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware(deps.logger()))
	app.Use(AccessLogMiddleware())

	// 120 requests per minute per IP. Map sessions live on one long
	// connection and are not counted.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/ws") || c.Path() == "/metrics"
		},
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: errRateLimited,
	}))

	app.Use(securityHeaders)
	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/pins/map", withTimeout(PinsMapHandler(deps)))
	v1.Get("/pins/:id", withTimeout(GetPinHandler(deps)))
	v1.Post("/pins/events", withTimeout(PinEventsHandler(deps)))
	v1.Post("/map/merge", withTimeout(MergeHandler(deps)))

	app.Post("/graphql", withTimeout(GraphQLHandler(deps)))

	SetupDocs(app, deps)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/map", websocket.New(WebSocketHandler(deps)))
}

// withTimeout bounds a handler's user context; pins queries observe it.
func withTimeout(h fiber.Handler) fiber.Handler {
	return timeout.NewWithContext(h, requestTimeout)
}

func securityHeaders(c *fiber.Ctx) error {
	c.Set("X-Content-Type-Options", "nosniff")
	c.Set("X-Frame-Options", "DENY")
	c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Set("X-API-Version", apiVersion)
	return c.Next()
}
