package usecases_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/core/usecases"
)

// --- Mock PinRepository ---

type mockPinRepo struct {
	pointsFn func(ctx context.Context, q domain.PinsQuery) ([]domain.ServerPoint, error)
	draftsFn func(ctx context.Context, q domain.PinsQuery) ([]domain.ServerDraft, error)
	getFn    func(ctx context.Context, id string) (*domain.ServerPoint, error)

	mu    sync.Mutex
	calls int
}

func (m *mockPinRepo) PointsInBounds(ctx context.Context, q domain.PinsQuery) ([]domain.ServerPoint, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.pointsFn != nil {
		return m.pointsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockPinRepo) DraftsInBounds(ctx context.Context, q domain.PinsQuery) ([]domain.ServerDraft, error) {
	if m.draftsFn != nil {
		return m.draftsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockPinRepo) GetPoint(ctx context.Context, id string) (*domain.ServerPoint, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPinRepo) pointCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	published []ports.PinsChange
	err       error
}

func (p *mockPublisher) PublishPinsChanged(ctx context.Context, change ports.PinsChange) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, change)
	return nil
}

var seoulBounds = domain.GeoBounds{
	SW: domain.LatLng{Lat: 37.49, Lng: 126.99},
	NE: domain.LatLng{Lat: 37.51, Lng: 127.01},
}

func TestPinService_PinsInBounds(t *testing.T) {
	repo := &mockPinRepo{
		pointsFn: func(ctx context.Context, q domain.PinsQuery) ([]domain.ServerPoint, error) {
			return []domain.ServerPoint{{ID: "1", Lat: 37.5, Lng: 127.0}}, nil
		},
	}

	svc := usecases.NewPinService(repo, nil, nil, 30)
	res, err := svc.PinsInBounds(context.Background(), domain.PinsQuery{Bounds: seoulBounds})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(res.Points))
	}
	if res.Drafts == nil {
		t.Error("drafts should be an empty slice, not nil")
	}
}

func TestPinService_InvalidBounds(t *testing.T) {
	svc := usecases.NewPinService(&mockPinRepo{}, nil, nil, 30)
	_, err := svc.PinsInBounds(context.Background(), domain.PinsQuery{})
	if !errors.Is(err, domain.ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}

	_, err = svc.PinsInBounds(context.Background(), domain.PinsQuery{
		Bounds:   seoulBounds,
		PinFlags: domain.PinFlags{DraftState: "someday"},
	})
	if err == nil {
		t.Fatal("expected error for unknown draftState")
	}
}

func TestPinService_RepoErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	repo := &mockPinRepo{
		draftsFn: func(ctx context.Context, q domain.PinsQuery) ([]domain.ServerDraft, error) {
			return nil, boom
		},
	}
	svc := usecases.NewPinService(repo, nil, nil, 30)
	if _, err := svc.PinsInBounds(context.Background(), domain.PinsQuery{Bounds: seoulBounds}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped repo error, got %v", err)
	}
}

func TestPinService_CacheAndInvalidate(t *testing.T) {
	repo := &mockPinRepo{}
	cache := newMemCache()
	svc := usecases.NewPinService(repo, cache, nil, 30)
	ctx := context.Background()
	q := domain.PinsQuery{Bounds: seoulBounds}

	for i := 0; i < 3; i++ {
		if _, err := svc.PinsInBounds(ctx, q); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if repo.pointCalls() != 1 {
		t.Fatalf("expected 1 repo call with cache, got %d", repo.pointCalls())
	}

	if err := svc.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := svc.PinsInBounds(ctx, q); err != nil {
		t.Fatal(err)
	}
	if repo.pointCalls() != 2 {
		t.Errorf("expected a fresh read after invalidation, got %d calls", repo.pointCalls())
	}
}

func TestPinService_CacheKeySeparatesNearbyBounds(t *testing.T) {
	repo := &mockPinRepo{}
	svc := usecases.NewPinService(repo, newMemCache(), nil, 30)
	ctx := context.Background()

	// Each corner moves 4e-7 degrees: the summed change crosses the 1e-6
	// viewport epsilon but vanishes under six-decimal rounding.
	shifted := seoulBounds
	shifted.SW.Lat += 4e-7
	shifted.SW.Lng += 4e-7
	shifted.NE.Lat += 4e-7
	shifted.NE.Lng += 4e-7

	for _, b := range []domain.GeoBounds{seoulBounds, shifted} {
		if _, err := svc.PinsInBounds(ctx, domain.PinsQuery{Bounds: b}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if repo.pointCalls() != 2 {
		t.Errorf("distinct bounds shared a cache entry: %d repo calls", repo.pointCalls())
	}
}

func TestPinService_NotifyChanged(t *testing.T) {
	pub := &mockPublisher{}
	cache := newMemCache()
	svc := usecases.NewPinService(&mockPinRepo{}, cache, pub, 30)
	ctx := context.Background()

	if err := svc.NotifyChanged(ctx, ports.PinsChange{Action: "created", PinID: "77"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.published) != 1 || pub.published[0].PinID != "77" {
		t.Errorf("published = %+v", pub.published)
	}
	if gen, _ := cache.Get(ctx, "pins:generation"); string(gen) != "1" {
		t.Errorf("generation = %q, want 1", gen)
	}

	if err := svc.NotifyChanged(ctx, ports.PinsChange{Action: "exploded"}); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestPinService_NotifyChangedLocal(t *testing.T) {
	svc := usecases.NewPinService(&mockPinRepo{}, nil, nil, 30)
	var got []ports.PinsChange
	svc.OnLocalChange(func(ctx context.Context, change ports.PinsChange) {
		got = append(got, change)
	})

	if err := svc.NotifyChanged(context.Background(), ports.PinsChange{Action: "deleted", PinID: "5"}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Action != "deleted" {
		t.Errorf("local listener got %+v", got)
	}
}

func TestPinService_GetPoint(t *testing.T) {
	repo := &mockPinRepo{
		getFn: func(ctx context.Context, id string) (*domain.ServerPoint, error) {
			return &domain.ServerPoint{ID: id, Lat: 37.5, Lng: 127}, nil
		},
	}
	svc := usecases.NewPinService(repo, nil, nil, 30)

	p, err := svc.GetPoint(context.Background(), "9")
	if err != nil || p.ID != "9" {
		t.Fatalf("got %+v, %v", p, err)
	}
	if _, err := svc.GetPoint(context.Background(), " "); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
