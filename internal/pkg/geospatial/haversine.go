package geospatial

import (
	"math"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Distance is Haversine over domain coordinates.
func Distance(a, b domain.LatLng) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Within reports whether a and b are at most radiusMeters apart.
// Non-finite coordinates never match.
func Within(a, b domain.LatLng, radiusMeters float64) bool {
	if !a.Finite() || !b.Finite() {
		return false
	}
	return Distance(a, b) <= radiusMeters
}

// LngDelta returns the absolute longitude difference in degrees, taking the
// short way around the antimeridian. The result is in [0, 180].
func LngDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
