package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readyTimeout = 3 * time.Second

// HealthHandler is the liveness probe. It also reports how many map
// sessions this instance holds.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		}
		if deps.Hub != nil {
			body["sessions"] = deps.Hub.Len()
		}
		return c.JSON(body)
	}
}

type readinessCheck struct {
	name string
	run  func(ctx context.Context) error // nil: not configured
}

// ReadyHandler probes every configured backend. Unconfigured ones are
// reported but never fail readiness, so a remote-source instance without a
// database is still ready.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	var checks []readinessCheck
	checks = append(checks, readinessCheck{name: "database"})
	if deps.DB != nil {
		checks[0].run = deps.DB.Ping
	}
	nats := readinessCheck{name: "nats"}
	if deps.NATS != nil {
		nats.run = func(context.Context) error {
			if !deps.NATS.Connected() {
				return errDisconnected
			}
			return nil
		}
	}
	cache := readinessCheck{name: "cache"}
	if deps.Cache != nil {
		cache.run = deps.Cache.Ping
	}
	checks = append(checks, nats, cache)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for _, chk := range checks {
			switch {
			case chk.run == nil:
				results[chk.name] = "not configured"
			default:
				if err := chk.run(ctx); err != nil {
					results[chk.name] = "error: " + err.Error()
					ready = false
				} else {
					results[chk.name] = "ok"
				}
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": results})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
