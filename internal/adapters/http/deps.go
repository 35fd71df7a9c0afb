package http

import (
	"context"
	"log/slog"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/core/viewport"
)

// PointReader looks up single listing pins.
type PointReader interface {
	GetPoint(ctx context.Context, id string) (*domain.ServerPoint, error)
}

// ChangeNotifier records pin mutations.
type ChangeNotifier interface {
	NotifyChanged(ctx context.Context, change ports.PinsChange) error
}

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnStatus reports broker connectivity.
type ConnStatus interface {
	Connected() bool
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Pins   ports.PinsSource
	Points PointReader    // nil when pins come from a remote backend
	Events ChangeNotifier // nil: changes reload local sessions directly
	Hub    *viewport.Hub
	DB     Pinger
	Cache  Pinger
	NATS   ConnStatus
	Logger *slog.Logger

	Version  string // reported by /v1/health, "dev" when empty
	SpecPath string // OpenAPI document served under /docs
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dependencies) pipeline() viewport.Options {
	if d.Hub != nil {
		return d.Hub.Options()
	}
	return viewport.DefaultOptions()
}
