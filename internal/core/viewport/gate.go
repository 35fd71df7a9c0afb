package viewport

import (
	"math"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/pkg/geospatial"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
)

// GateState is the viewport gate's state.
type GateState int

const (
	GateIdle GateState = iota
	GateTracking
)

func (s GateState) String() string {
	if s == GateTracking {
		return "tracking"
	}
	return "idle"
}

// GateResult is the outcome of observing one viewport event.
type GateResult struct {
	// Changed is false when the event was dropped as a duplicate.
	Changed bool
	// Bounds is only meaningful when HasBounds is set.
	Bounds    domain.GeoBounds
	HasBounds bool
	// ClearSearch asks the caller to drop search-originated markers.
	ClearSearch bool
}

// Gate filters redundant viewport events and tracks the last search center.
type Gate struct {
	epsilon     float64
	resetMeters float64

	state        GateState
	last         domain.Viewport
	searchCenter *domain.LatLng
}

// NewGate returns an idle gate.
func NewGate(opts Options) *Gate {
	opts = opts.withDefaults()
	return &Gate{epsilon: opts.ViewportEpsilon, resetMeters: opts.SearchResetMeters}
}

// State returns the gate state.
func (g *Gate) State() GateState { return g.state }

// Last returns the last accepted viewport.
func (g *Gate) Last() (domain.Viewport, bool) {
	return g.last, g.state == GateTracking
}

// SetSearchCenter records where the last search or menu anchor was. Nil
// clears it.
func (g *Gate) SetSearchCenter(c *domain.LatLng) {
	if c == nil {
		g.searchCenter = nil
		return
	}
	cc := *c
	g.searchCenter = &cc
}

// SearchCenter returns the tracked search center, if any.
func (g *Gate) SearchCenter() (domain.LatLng, bool) {
	if g.searchCenter == nil {
		return domain.LatLng{}, false
	}
	return *g.searchCenter, true
}

// Observe processes a viewport event from the map engine.
func (g *Gate) Observe(v domain.Viewport) GateResult {
	if v.IsZero() {
		return GateResult{}
	}
	if g.state == GateTracking && SameViewport(g.last, v, g.epsilon) {
		metrics.GateSkips.Inc()
		return GateResult{}
	}
	g.state = GateTracking
	g.last = v

	res := GateResult{Changed: true}
	res.Bounds, res.HasBounds = geospatial.BoundsFromViewport(v)

	if g.searchCenter != nil {
		d := geospatial.Distance(v.Center(), *g.searchCenter)
		if d > g.resetMeters {
			res.ClearSearch = true
			g.searchCenter = nil
		}
	}
	return res
}

// Reset returns the gate to idle, forgetting the last viewport.
func (g *Gate) Reset() {
	g.state = GateIdle
	g.last = domain.Viewport{}
}

// SameViewport reports whether the summed absolute difference of all four
// corners is below epsilon.
func SameViewport(a, b domain.Viewport, epsilon float64) bool {
	ac, bc := a.Corners(), b.Corners()
	var diff float64
	for i := range ac {
		diff += math.Abs(ac[i].Lat-bc[i].Lat) + math.Abs(ac[i].Lng-bc[i].Lng)
	}
	return diff < epsilon
}
