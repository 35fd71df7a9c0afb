package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type cachePolicy struct {
	path   string
	prefix bool
	value  string
}

// First match wins. Pin reads stay short because mutations only reach
// browsers through live sessions, not through HTTP caches.
var cachePolicies = []cachePolicy{
	{path: "/metrics", value: "no-cache"},
	{path: "/v1/health", value: "no-store"},
	{path: "/v1/ready", value: "no-store"},
	{path: "/v1/pins/map", value: "public, max-age=15"},
	{path: "/v1/pins/", prefix: true, value: "public, max-age=60"},
	{path: "/docs", prefix: true, value: "public, max-age=3600"},
}

// CachingMiddleware sets Cache-Control on GET responses a handler left
// unset. Error responses are never cached.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if c.Method() != fiber.MethodGet || c.GetRespHeader(fiber.HeaderCacheControl) != "" {
			return err
		}
		if status := c.Response().StatusCode(); status >= 400 {
			c.Set(fiber.HeaderCacheControl, "no-store")
			return err
		}
		if v := cacheControlFor(c.Path()); v != "" {
			c.Set(fiber.HeaderCacheControl, v)
		}
		return err
	}
}

func cacheControlFor(path string) string {
	for _, p := range cachePolicies {
		if path == p.path || (p.prefix && strings.HasPrefix(path, p.path)) {
			return p.value
		}
	}
	return ""
}
