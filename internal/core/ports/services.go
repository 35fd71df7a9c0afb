package ports

import (
	"context"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// PinsSource answers pins-in-bounds queries. Implementations must return
// ctx.Err() (or an error wrapping it) when the context is canceled.
type PinsSource interface {
	PinsInBounds(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error)
}

// PinsChange describes a mutation of backend pin data.
type PinsChange struct {
	Action string `json:"action"` // created | updated | deleted | planned | reserved
	PinID  string `json:"pin_id,omitempty"`
}

// Valid reports whether Action is a known mutation.
func (c PinsChange) Valid() bool {
	switch c.Action {
	case "created", "updated", "deleted", "planned", "reserved":
		return true
	}
	return false
}

// EventPublisher publishes pin mutation events to a message broker.
type EventPublisher interface {
	PublishPinsChanged(ctx context.Context, change PinsChange) error
}

// EventSubscriber subscribes to pin mutation events from a message broker.
type EventSubscriber interface {
	SubscribePinsChanged(ctx context.Context, handler func(ctx context.Context, change PinsChange) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}
