package geospatial

import (
	"github.com/paulmach/orb"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// BoundsFromViewport normalizes the four viewport corners into a
// southwest/northeast rectangle. It returns false when the viewport is
// empty or has a non-finite corner.
func BoundsFromViewport(v domain.Viewport) (domain.GeoBounds, bool) {
	if v.IsZero() {
		return domain.GeoBounds{}, false
	}

	corners := v.Corners()
	mp := make(orb.MultiPoint, 0, len(corners))
	for _, c := range corners {
		if !c.Finite() {
			return domain.GeoBounds{}, false
		}
		mp = append(mp, orb.Point{c.Lng, c.Lat})
	}

	return FromOrbBound(mp.Bound()), true
}

// ToOrbBound converts bounds to an orb.Bound (x = lng, y = lat).
func ToOrbBound(b domain.GeoBounds) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.SW.Lng, b.SW.Lat},
		Max: orb.Point{b.NE.Lng, b.NE.Lat},
	}
}

// FromOrbBound converts an orb.Bound back to domain bounds.
func FromOrbBound(b orb.Bound) domain.GeoBounds {
	return domain.GeoBounds{
		SW: domain.LatLng{Lat: b.Min.Lat(), Lng: b.Min.Lon()},
		NE: domain.LatLng{Lat: b.Max.Lat(), Lng: b.Max.Lon()},
	}
}

// Contains reports whether p lies inside b, edges included.
func Contains(b domain.GeoBounds, p domain.LatLng) bool {
	if !p.Finite() {
		return false
	}
	return ToOrbBound(b).Contains(orb.Point{p.Lng, p.Lat})
}
