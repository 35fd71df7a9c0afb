package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

var errDisconnected = errors.New("disconnected")

// APIError is the JSON body of every non-2xx REST response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"` // bad_request, not_found, rate_limited, internal_error, unavailable, timeout
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

func errRateLimited(c *fiber.Ctx) error {
	return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
}

// pinsError maps a pins source failure onto the response. Only unexpected
// failures are logged; bad bounds and misses are the caller's problem.
func pinsError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidBounds):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, "pin not found")
	case errors.Is(err, context.DeadlineExceeded):
		return newError(c, fiber.StatusGatewayTimeout, "timeout", "pins query timed out")
	}
	LoggerFromCtx(c.UserContext()).Error("pins query failed", "error", err)
	return errInternal(c, "pins query failed")
}
