package viewport

import (
	"strings"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/pkg/geospatial"
)

// SearchMarkerID is the id a place-search result marker carries until it is
// saved as a real pin.
const SearchMarkerID = "__search__"

// PointToMarker converts a server point or draft into a renderable marker.
// Non-finite positions are carried through unchanged.
func PointToMarker(p domain.PinRecord, source domain.MarkerSource) domain.Marker {
	label := p.DisplayLabel()
	kind := p.PinKind
	if kind == "" {
		kind = domain.DefaultPinKind
	}
	m := domain.Marker{
		ID:         p.ID,
		Position:   p.Position(),
		Name:       label,
		Title:      label,
		Kind:       kind,
		Source:     source,
		PinDraftID: p.DraftID,
		PosKey:     geospatial.PosKey(p.Position()),
		IsNew:      p.IsNew,
	}
	if p.Address != nil {
		m.Address = *p.Address
	}
	return m
}

// LocalToMarker converts a local draft marker. Local markers render as
// drafts and are flagged temporary.
func LocalToMarker(l domain.LocalDraftMarker) domain.Marker {
	kind := l.Kind
	if kind == "" {
		kind = domain.DefaultPinKind
	}
	return domain.Marker{
		ID:       l.ID,
		Position: l.Position,
		Name:     strings.TrimSpace(l.Title),
		Title:    strings.TrimSpace(l.Title),
		Address:  l.Address,
		Kind:     kind,
		Source:   domain.SourceDraft,
		PosKey:   geospatial.PosKey(l.Position),
		Temp:     true,
	}
}

// Merge builds the ordered marker list: local markers first, then server
// points, then server drafts. The first marker seen for an id wins.
func Merge(local []domain.Marker, points []domain.ServerPoint, drafts []domain.ServerDraft) []domain.Marker {
	out := make([]domain.Marker, 0, len(local)+len(points)+len(drafts))
	seen := make(map[string]struct{}, cap(out))
	add := func(m domain.Marker) {
		if _, dup := seen[m.ID]; dup {
			return
		}
		seen[m.ID] = struct{}{}
		if m.PosKey == "" {
			m.PosKey = geospatial.PosKey(m.Position)
		}
		out = append(out, m)
	}
	for _, m := range local {
		add(m)
	}
	for _, p := range points {
		add(PointToMarker(p, domain.SourcePin))
	}
	for _, d := range drafts {
		add(PointToMarker(d, domain.SourceDraft))
	}
	return out
}

// BuildMeta groups marker ids by position key in marker order. Markers
// without a usable position are left out.
func BuildMeta(markers []domain.Marker) domain.MergeMeta {
	groups := make(map[string][]string)
	for _, m := range markers {
		if m.PosKey == "" {
			continue
		}
		groups[m.PosKey] = append(groups[m.PosKey], m.ID)
	}
	return domain.MergeMeta{Groups: groups}
}

// EffectiveHiddenID returns the marker whose label is hidden. An open menu
// with a target forces that target; otherwise the requested id is used.
func EffectiveHiddenID(menuOpen bool, menuTargetID, requested string) string {
	if menuOpen && menuTargetID != "" {
		return menuTargetID
	}
	return requested
}
