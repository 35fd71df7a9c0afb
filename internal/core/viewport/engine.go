package viewport

import (
	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/pkg/geospatial"
)

// MapEngine exposes the visible area of a map. ok is false until the engine
// has rendered a viewport.
type MapEngine interface {
	Viewport() (v domain.Viewport, ok bool)
}

// CurrentBounds reads the engine's viewport as a query rectangle.
func CurrentBounds(engine MapEngine) (domain.GeoBounds, bool) {
	if engine == nil {
		return domain.GeoBounds{}, false
	}
	v, ok := engine.Viewport()
	if !ok {
		return domain.GeoBounds{}, false
	}
	return geospatial.BoundsFromViewport(v)
}
