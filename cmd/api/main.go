package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/pinmap/internal/adapters/http"
	natsadapter "github.com/samirrijal/pinmap/internal/adapters/nats"
	"github.com/samirrijal/pinmap/internal/adapters/pinsapi"
	"github.com/samirrijal/pinmap/internal/adapters/postgres"
	"github.com/samirrijal/pinmap/internal/adapters/valkey"
	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/core/usecases"
	"github.com/samirrijal/pinmap/internal/core/viewport"
	"github.com/samirrijal/pinmap/internal/pkg/config"
	"github.com/samirrijal/pinmap/internal/pkg/logging"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
	"github.com/samirrijal/pinmap/internal/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load("pinmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "pinmap-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{Logger: logger, Version: version}

	// NATS
	var publisher ports.EventPublisher
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unavailable, pin changes stay in-process", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
			deps.NATS = pub
		}
	}

	// Pins source
	var source ports.PinsSource
	var pinSvc *usecases.PinService
	switch cfg.Pins.Source {
	case config.SourceRemote:
		client, err := pinsapi.New(cfg.Pins.BaseURL, cfg.Pins.APIKey, cfg.Pins.RatePerSec, cfg.Pins.Burst,
			time.Duration(cfg.Pins.TimeoutSec)*time.Second)
		if err != nil {
			log.Fatalf("pins api: %v", err)
		}
		source = client
		logger.Info("pins served by remote backend", "base_url", cfg.Pins.BaseURL)

	default:
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, "pinmap-api")
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		deps.DB = db
		go reportPoolStats(ctx, db)

		var cache ports.CacheService
		if cfg.Valkey.Addr != "" {
			c, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix)
			if err != nil {
				logger.Warn("valkey unavailable", "error", err)
			} else {
				defer c.Close()
				cache = c
				deps.Cache = c
			}
		}

		pinSvc = usecases.NewPinService(postgres.NewPinRepo(db), cache, publisher, cfg.Cache.PinsTTLSeconds)
		source = pinSvc
		deps.Points = pinSvc
		deps.Events = pinSvc
	}
	deps.Pins = source

	// Map sessions
	hub := viewport.NewHub(source, viewport.Options{
		DraftProximityMeters: cfg.Pipeline.DraftProximityMeters,
		SearchResetMeters:    cfg.Pipeline.SearchResetMeters,
		ViewportEpsilon:      cfg.Pipeline.ViewportEpsilon,
	}, logger)
	defer hub.CloseAll()
	deps.Hub = hub

	reload := func(ctx context.Context, change ports.PinsChange) {
		n := hub.ReloadAll(ctx)
		logger.Debug("pins changed, sessions reloading", "action", change.Action, "pin_id", change.PinID, "reloading", n)
	}

	if cfg.NATS.URL != "" && publisher != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			err := sub.SubscribePinsChanged(ctx, func(ctx context.Context, change ports.PinsChange) error {
				metrics.PinsEvents.WithLabelValues("received", change.Action).Inc()
				if pinSvc != nil {
					if err := pinSvc.Invalidate(ctx); err != nil {
						return err
					}
				}
				reload(ctx, change)
				return nil
			})
			if err != nil {
				logger.Warn("pins changed subscription failed", "error", err)
			}
		}
	} else if pinSvc != nil {
		pinSvc.OnLocalChange(reload)
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Pinmap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting", "addr", addr, "pins_source", cfg.Pins.Source)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		case <-ctx.Done():
			return
		}
	}
}
