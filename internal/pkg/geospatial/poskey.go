package geospatial

import (
	"strconv"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// PosKeyPrecision is the number of decimals kept in a position key
// (about one meter at mid latitudes).
const PosKeyPrecision = 5

// PosKey groups coordinates by rounding them to PosKeyPrecision decimals.
// It returns "" for non-finite positions.
func PosKey(p domain.LatLng) string {
	return PosKeyWithPrecision(p, PosKeyPrecision)
}

// PosKeyWithPrecision is PosKey with an explicit number of decimals.
func PosKeyWithPrecision(p domain.LatLng, decimals int) string {
	if !p.Finite() {
		return ""
	}
	return strconv.FormatFloat(p.Lat, 'f', decimals, 64) + "," +
		strconv.FormatFloat(p.Lng, 'f', decimals, 64)
}
