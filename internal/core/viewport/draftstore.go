package viewport

import (
	"math"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/pkg/geospatial"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
)

// DraftStore holds the temporary markers a session created before the
// backend confirmed a real pin. It keeps insertion order and is not safe for
// concurrent use; the owning Session serializes access.
type DraftStore struct {
	radius  float64
	markers []domain.LocalDraftMarker
	// ids hidden by the previous Visible call
	suppressed map[string]struct{}
}

// NewDraftStore returns an empty store that suppresses markers within
// radiusMeters of a server pin.
func NewDraftStore(radiusMeters float64) *DraftStore {
	if radiusMeters <= 0 {
		radiusMeters = DefaultDraftProximityMeters
	}
	return &DraftStore{radius: radiusMeters}
}

func (s *DraftStore) index(id string) int {
	for i, m := range s.markers {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Upsert inserts m or updates the marker with the same id in place.
func (s *DraftStore) Upsert(m domain.LocalDraftMarker) {
	if i := s.index(m.ID); i >= 0 {
		s.markers[i] = m
		return
	}
	s.markers = append(s.markers, m)
}

// SafeUpsert inserts m unless its position is unusable or a server pin or
// another local marker already sits within the proximity radius. It reports
// whether m was stored.
func (s *DraftStore) SafeUpsert(m domain.LocalDraftMarker, points []domain.ServerPoint, drafts []domain.ServerDraft) bool {
	if !m.Position.Finite() {
		return false
	}
	if nearAnyRecord(m.Position, points, s.radius) || nearAnyRecord(m.Position, drafts, s.radius) {
		return false
	}
	for _, other := range s.markers {
		if other.ID != m.ID && near(m.Position, other.Position, s.radius) {
			return false
		}
	}
	s.Upsert(m)
	return true
}

// ReplaceTempByRealID gives the marker tempID the identity realID, keeping
// its position and content. Any other entry already holding realID is
// dropped so exactly one marker carries it. Reports whether tempID existed.
func (s *DraftStore) ReplaceTempByRealID(tempID, realID string) bool {
	i := s.index(tempID)
	if i < 0 {
		return false
	}
	if tempID == realID {
		return true
	}
	renamed := s.markers[i]
	renamed.ID = realID

	out := s.markers[:0]
	for j, m := range s.markers {
		switch {
		case j == i:
			out = append(out, renamed)
		case m.ID == realID:
		default:
			out = append(out, m)
		}
	}
	s.markers = out
	return true
}

// Remove deletes the marker with id.
func (s *DraftStore) Remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.markers = append(s.markers[:i], s.markers[i+1:]...)
	return true
}

// ClearTemp removes every local marker.
func (s *DraftStore) ClearTemp() {
	s.markers = nil
}

// ClearSearch removes markers created by a place search. It reports whether
// anything was removed.
func (s *DraftStore) ClearSearch() bool {
	out := s.markers[:0]
	for _, m := range s.markers {
		if m.Origin != domain.OriginSearch {
			out = append(out, m)
		}
	}
	removed := len(out) != len(s.markers)
	s.markers = out
	return removed
}

// Len returns the number of stored markers.
func (s *DraftStore) Len() int { return len(s.markers) }

// All returns a copy of the stored markers in insertion order.
func (s *DraftStore) All() []domain.LocalDraftMarker {
	out := make([]domain.LocalDraftMarker, len(s.markers))
	copy(out, s.markers)
	return out
}

// Visible returns the markers to draw: those with a usable position and no
// server point or draft within the proximity radius. A marker is counted as
// suppressed once per stretch of consecutive calls that hide it.
func (s *DraftStore) Visible(points []domain.ServerPoint, drafts []domain.ServerDraft) []domain.LocalDraftMarker {
	out := make([]domain.LocalDraftMarker, 0, len(s.markers))
	hidden := make(map[string]struct{})
	for _, m := range s.markers {
		if !m.Position.Finite() {
			continue
		}
		if s.Suppressed(m, points, drafts) {
			if _, seen := s.suppressed[m.ID]; !seen {
				metrics.DraftsSuppressed.Inc()
			}
			hidden[m.ID] = struct{}{}
			continue
		}
		out = append(out, m)
	}
	s.suppressed = hidden
	return out
}

// Suppressed reports whether m has no usable position or lies within the
// proximity radius of a server point or draft. It does not consult or
// change the stored markers.
func (s *DraftStore) Suppressed(m domain.LocalDraftMarker, points []domain.ServerPoint, drafts []domain.ServerDraft) bool {
	if !m.Position.Finite() {
		return true
	}
	return nearAnyRecord(m.Position, points, s.radius) || nearAnyRecord(m.Position, drafts, s.radius)
}

func nearAnyRecord(p domain.LatLng, records []domain.PinRecord, radius float64) bool {
	if !p.Finite() || len(records) == 0 {
		return false
	}
	// The box is a coarse prefilter; Within makes the decision. Longitude
	// offsets wrap so pins across the antimeridian are still compared.
	minLat, minLng, maxLat, maxLng := geospatial.BoundingBox(p.Lat, p.Lng, radius*1.01)
	halfLat, halfLng := (maxLat-minLat)/2, (maxLng-minLng)/2
	for _, r := range records {
		if math.Abs(r.Lat-p.Lat) > halfLat || geospatial.LngDelta(p.Lng, r.Lng) > halfLng {
			continue
		}
		if geospatial.Within(p, r.Position(), radius) {
			return true
		}
	}
	return false
}

func near(a, b domain.LatLng, radius float64) bool {
	return geospatial.Within(a, b, radius)
}
