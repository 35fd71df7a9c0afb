package http

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// AccessLogMiddleware writes one structured record per request. Probe and
// scrape endpoints log at debug so they do not drown the pin traffic; pins
// map queries also carry their bounds.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", len(c.Response().Body())),
		}
		if path == "/v1/pins/map" {
			attrs = append(attrs, slog.Group("bounds",
				slog.String("sw", c.Query("swLat")+","+c.Query("swLng")),
				slog.String("ne", c.Query("neLat")+","+c.Query("neLng")),
			))
		}

		level := accessLevel(path, status)
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			level = slog.LevelError
		}

		// The request logger already carries request_id.
		LoggerFromCtx(c.UserContext()).LogAttrs(c.UserContext(), level, method+" "+path, attrs...)
		return err
	}
}

func accessLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case path == "/metrics", strings.HasPrefix(path, "/v1/health"), strings.HasPrefix(path, "/v1/ready"):
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
