package viewport

import "github.com/samirrijal/pinmap/internal/core/domain"

// FlagsForFilter maps the active menu filter to pins-in-bounds query flags.
func FlagsForFilter(key domain.FilterKey) domain.PinFlags {
	on := true
	switch key {
	case domain.FilterPlannedOnly:
		return domain.PinFlags{DraftState: domain.DraftStateBefore}
	case domain.FilterNew:
		return domain.PinFlags{IsNew: &on}
	case domain.FilterOld:
		return domain.PinFlags{IsOld: &on}
	default:
		return domain.PinFlags{}
	}
}

// NormalizeRecords returns a non-nil copy of records.
func NormalizeRecords(records []domain.PinRecord) []domain.PinRecord {
	out := make([]domain.PinRecord, len(records))
	copy(out, records)
	return out
}

// SearchPinsToPoints converts filter search pins to the server point shape.
func SearchPinsToPoints(pins []domain.SearchPin) []domain.ServerPoint {
	out := make([]domain.ServerPoint, 0, len(pins))
	for _, p := range pins {
		out = append(out, domain.ServerPoint{
			ID:      string(p.ID),
			Lat:     p.Lat,
			Lng:     p.Lng,
			Name:    p.Name,
			Address: p.AddressLine,
			PinKind: p.PinKind,
			IsNew:   p.IsNew,
		})
	}
	return out
}

// SearchDraftsToDrafts converts filter search drafts to the server draft shape.
func SearchDraftsToDrafts(drafts []domain.SearchDraft) []domain.ServerDraft {
	out := make([]domain.ServerDraft, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, domain.ServerDraft{
			ID:      string(d.ID),
			Lat:     d.Lat,
			Lng:     d.Lng,
			Title:   d.Title,
			Address: d.AddressLine,
		})
	}
	return out
}

// Effective picks the point and draft sets the map shows. An active search
// replaces the viewport data outright; it is never merged with it.
func Effective(search *domain.SearchResult, points []domain.ServerPoint, drafts []domain.ServerDraft) ([]domain.ServerPoint, []domain.ServerDraft) {
	if search != nil {
		return SearchPinsToPoints(search.Pins), SearchDraftsToDrafts(search.Drafts)
	}
	return NormalizeRecords(points), NormalizeRecords(drafts)
}
