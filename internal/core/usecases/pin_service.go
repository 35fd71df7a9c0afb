package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
	"github.com/samirrijal/pinmap/internal/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/samirrijal/pinmap/internal/core/usecases")

const generationKey = "pins:generation"

// PinService answers pins-in-bounds queries from the repository with a
// read-through cache. Cache entries are keyed by a generation counter that
// every pin mutation bumps, so stale entries are never read again.
type PinService struct {
	pins      ports.PinRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
	ttl       int
	local     func(ctx context.Context, change ports.PinsChange)
}

// NewPinService creates a new PinService. cache and publisher may be nil.
func NewPinService(pins ports.PinRepository, cache ports.CacheService, publisher ports.EventPublisher, ttlSeconds int) *PinService {
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}
	return &PinService{pins: pins, cache: cache, publisher: publisher, ttl: ttlSeconds}
}

// OnLocalChange registers fn to run after NotifyChanged when no publisher
// is configured.
func (s *PinService) OnLocalChange(fn func(ctx context.Context, change ports.PinsChange)) {
	s.local = fn
}

// PinsInBounds returns the points and drafts inside q.Bounds.
func (s *PinService) PinsInBounds(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error) {
	if !q.Bounds.Valid() {
		return domain.PinsResult{}, fmt.Errorf("pins in bounds: %w", domain.ErrInvalidBounds)
	}
	if !q.DraftState.Valid() {
		return domain.PinsResult{}, fmt.Errorf("pins in bounds: unknown draftState %q", q.DraftState)
	}

	ctx, span := tracer.Start(ctx, telemetry.SpanPinsQuery)
	defer span.End()

	cacheKey := s.cacheKey(ctx, q)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var res domain.PinsResult
			if err := json.Unmarshal(data, &res); err == nil {
				metrics.CacheHits.WithLabelValues("pins_in_bounds").Inc()
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return res.Normalized(), nil
			}
		}
		metrics.CacheMisses.WithLabelValues("pins_in_bounds").Inc()
	}

	var res domain.PinsResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := s.pins.PointsInBounds(gctx, q)
		if err != nil {
			return fmt.Errorf("points: %w", err)
		}
		res.Points = points
		return nil
	})
	g.Go(func() error {
		drafts, err := s.pins.DraftsInBounds(gctx, q)
		if err != nil {
			return fmt.Errorf("drafts: %w", err)
		}
		res.Drafts = drafts
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.PinsResult{}, err
	}
	res = res.Normalized()
	span.SetAttributes(
		attribute.Bool("cache.hit", false),
		attribute.Int("points", len(res.Points)),
		attribute.Int("drafts", len(res.Drafts)),
	)

	if s.cache != nil {
		if data, err := json.Marshal(res); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl)
		}
	}
	return res, nil
}

// GetPoint returns a single listing pin.
func (s *PinService) GetPoint(ctx context.Context, id string) (*domain.ServerPoint, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("get point: %w", domain.ErrNotFound)
	}
	return s.pins.GetPoint(ctx, id)
}

// Invalidate retires every cached pins-in-bounds result.
func (s *PinService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.Incr(ctx, generationKey); err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	return nil
}

// NotifyChanged records a pin mutation: the cache is invalidated and the
// change is broadcast so live map sessions reload.
func (s *PinService) NotifyChanged(ctx context.Context, change ports.PinsChange) error {
	if !change.Valid() {
		return fmt.Errorf("unknown pins change action %q", change.Action)
	}
	if err := s.Invalidate(ctx); err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishPinsChanged(ctx, change); err != nil {
			return fmt.Errorf("publish pins change: %w", err)
		}
		metrics.PinsEvents.WithLabelValues("published", change.Action).Inc()
		return nil
	}
	if s.local != nil {
		s.local(ctx, change)
	}
	return nil
}

func (s *PinService) cacheKey(ctx context.Context, q domain.PinsQuery) string {
	gen := int64(0)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, generationKey); err == nil {
			gen, _ = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		}
	}
	// Shortest exact form: any bounds the change gate tells apart get their own key.
	return fmt.Sprintf("pins:%d:%s:%s:%s:%s:%s:%s:%s", gen,
		coordKey(q.Bounds.SW.Lat), coordKey(q.Bounds.SW.Lng), coordKey(q.Bounds.NE.Lat), coordKey(q.Bounds.NE.Lng),
		q.DraftState, flagKey(q.IsNew), flagKey(q.IsOld))
}

func coordKey(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flagKey(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}
