package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	loggerKey
)

// RequestIDLogMiddleware derives a request-scoped logger from base carrying
// the fiber request id and stores both in the user context, so pin queries
// started by the handler log under the same id.
func RequestIDLogMiddleware(base *slog.Logger) fiber.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		if rid == "" {
			return c.Next()
		}

		ctx := context.WithValue(c.UserContext(), requestIDKey, rid)
		ctx = context.WithValue(ctx, loggerKey, base.With("request_id", rid))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// LoggerFromCtx returns the request logger, or the default logger outside a request.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RequestIDFromCtx returns the request id set by RequestIDLogMiddleware.
func RequestIDFromCtx(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}
