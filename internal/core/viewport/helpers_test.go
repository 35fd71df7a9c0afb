package viewport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// --- Mock PinsSource ---

type mockSource struct {
	pinsFn func(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error)

	mu      sync.Mutex
	queries []domain.PinsQuery
}

func (m *mockSource) PinsInBounds(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.pinsFn != nil {
		return m.pinsFn(ctx, q)
	}
	return domain.PinsResult{}, nil
}

func (m *mockSource) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

func (m *mockSource) last() domain.PinsQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queries) == 0 {
		return domain.PinsQuery{}
	}
	return m.queries[len(m.queries)-1]
}

// frameLog collects emitted frames.
type frameLog struct {
	mu     sync.Mutex
	frames []domain.Frame
}

func (l *frameLog) emit(f domain.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func (l *frameLog) all() []domain.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Frame(nil), l.frames...)
}

var seoul = domain.LatLng{Lat: 37.5, Lng: 127.0}

// viewportAround returns an axis-aligned viewport centered on c.
func viewportAround(c domain.LatLng, half float64) domain.Viewport {
	return domain.Viewport{
		LeftTop:     domain.LatLng{Lat: c.Lat + half, Lng: c.Lng - half},
		RightTop:    domain.LatLng{Lat: c.Lat + half, Lng: c.Lng + half},
		LeftBottom:  domain.LatLng{Lat: c.Lat - half, Lng: c.Lng - half},
		RightBottom: domain.LatLng{Lat: c.Lat - half, Lng: c.Lng + half},
	}
}

// north shifts p by roughly meters to the north.
func north(p domain.LatLng, meters float64) domain.LatLng {
	return domain.LatLng{Lat: p.Lat + meters/111195.0, Lng: p.Lng}
}

func point(id string, p domain.LatLng) domain.ServerPoint {
	return domain.ServerPoint{ID: id, Lat: p.Lat, Lng: p.Lng}
}

func strPtr(s string) *string { return &s }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
