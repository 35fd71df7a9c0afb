package viewport_test

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/viewport"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
)

func TestFlagsForFilter(t *testing.T) {
	tests := []struct {
		key     domain.FilterKey
		state   domain.DraftState
		wantNew bool
		wantOld bool
	}{
		{key: domain.FilterAll},
		{key: domain.FilterPlannedOnly, state: domain.DraftStateBefore},
		{key: domain.FilterNew, wantNew: true},
		{key: domain.FilterOld, wantOld: true},
		{key: "favorites"},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			f := viewport.FlagsForFilter(tt.key)
			if f.DraftState != tt.state {
				t.Errorf("draftState = %q, want %q", f.DraftState, tt.state)
			}
			if (f.IsNew != nil) != tt.wantNew {
				t.Errorf("isNew set = %v, want %v", f.IsNew != nil, tt.wantNew)
			}
			if (f.IsOld != nil) != tt.wantOld {
				t.Errorf("isOld set = %v, want %v", f.IsOld != nil, tt.wantOld)
			}
			if f.IsNew != nil && !*f.IsNew {
				t.Error("isNew should be true")
			}
		})
	}
}

func TestEffective_SearchOverridesViewport(t *testing.T) {
	points := []domain.ServerPoint{point("p1", seoul), point("p2", seoul), point("p3", seoul), point("p4", seoul), point("p5", seoul)}
	drafts := []domain.ServerDraft{point("d1", seoul), point("d2", seoul)}
	search := &domain.SearchResult{Pins: []domain.SearchPin{
		{ID: "s1", Lat: 37.51, Lng: 127.01, Name: strPtr("One")},
		{ID: "s2", Lat: 37.52, Lng: 127.02},
		{ID: "s3", Lat: 37.53, Lng: 127.03, AddressLine: strPtr("Gangnam-daero 1")},
	}}

	gotPoints, gotDrafts := viewport.Effective(search, points, drafts)
	if len(gotPoints) != 3 {
		t.Fatalf("expected 3 points, got %d", len(gotPoints))
	}
	if len(gotDrafts) != 0 {
		t.Fatalf("expected 0 drafts, got %d", len(gotDrafts))
	}
	if gotPoints[2].Address == nil || *gotPoints[2].Address != "Gangnam-daero 1" {
		t.Errorf("address not carried over: %+v", gotPoints[2])
	}

	gotPoints, gotDrafts = viewport.Effective(nil, points, drafts)
	if len(gotPoints) != 5 || len(gotDrafts) != 2 {
		t.Errorf("without search expected 5/2, got %d/%d", len(gotPoints), len(gotDrafts))
	}
}

func TestPointToMarker(t *testing.T) {
	p := domain.ServerPoint{
		ID:       "7",
		Lat:      37.5,
		Lng:      127.0,
		Property: &domain.PropertyRef{Title: strPtr("  Hanok House ")},
		Address:  strPtr("Jongno 3"),
		DraftID:  "99",
	}
	m := viewport.PointToMarker(p, domain.SourcePin)
	if m.Name != "Hanok House" || m.Title != "Hanok House" {
		t.Errorf("label = %q/%q", m.Name, m.Title)
	}
	if m.Kind != domain.DefaultPinKind {
		t.Errorf("kind = %q, want default", m.Kind)
	}
	if m.PinDraftID != "99" || m.Address != "Jongno 3" {
		t.Errorf("unexpected marker %+v", m)
	}
	if m.PosKey != "37.50000,127.00000" {
		t.Errorf("posKey = %q", m.PosKey)
	}

	m = viewport.PointToMarker(domain.ServerPoint{ID: "8", Lat: math.NaN(), Lng: 127}, domain.SourceDraft)
	if m.Name != "8" {
		t.Errorf("id fallback expected, got %q", m.Name)
	}
	if !math.IsNaN(m.Position.Lat) {
		t.Error("non-finite position should be carried through")
	}
}

func TestMerge_OrderAndFirstWins(t *testing.T) {
	local := []domain.Marker{{ID: "a", Position: seoul, Title: "local"}}
	points := []domain.ServerPoint{point("a", seoul), point("b", seoul)}
	drafts := []domain.ServerDraft{point("b", seoul), point("c", seoul)}

	got := viewport.Merge(local, points, drafts)
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if got[0].Title != "local" {
		t.Error("local marker should win over the server point")
	}
	if got[1].Source != domain.SourcePin || got[2].Source != domain.SourceDraft {
		t.Errorf("sources = %s/%s", got[1].Source, got[2].Source)
	}
}

func TestBuildMeta_GroupsByPositionKey(t *testing.T) {
	markers := viewport.Merge(nil, []domain.ServerPoint{
		point("a", domain.LatLng{Lat: 37.5, Lng: 127.0}),
		point("b", domain.LatLng{Lat: 37.5, Lng: 127.000001}),
		point("c", domain.LatLng{Lat: 37.6, Lng: 127.0}),
		{ID: "bad", Lat: math.NaN(), Lng: 127.0},
	}, nil)

	meta := viewport.BuildMeta(markers)
	group := meta.Groups["37.50000,127.00000"]
	if len(group) != 2 || group[0] != "a" || group[1] != "b" {
		t.Errorf("group = %v", group)
	}
	if len(meta.Groups) != 2 {
		t.Errorf("expected 2 groups, got %d", len(meta.Groups))
	}
}

func TestEffectiveHiddenID(t *testing.T) {
	if got := viewport.EffectiveHiddenID(true, "42", "7"); got != "42" {
		t.Errorf("open menu should force target, got %q", got)
	}
	if got := viewport.EffectiveHiddenID(true, "", "7"); got != "7" {
		t.Errorf("got %q", got)
	}
	if got := viewport.EffectiveHiddenID(false, "42", "7"); got != "7" {
		t.Errorf("got %q", got)
	}
}

func TestDraftStore_SuppressedNearServerPin(t *testing.T) {
	s := viewport.NewDraftStore(viewport.DefaultDraftProximityMeters)
	s.Upsert(domain.LocalDraftMarker{ID: "near", Position: north(seoul, 500)})
	s.Upsert(domain.LocalDraftMarker{ID: "far", Position: north(seoul, 2000)})
	s.Upsert(domain.LocalDraftMarker{ID: "broken", Position: domain.LatLng{Lat: math.NaN(), Lng: 127}})

	visible := s.Visible([]domain.ServerPoint{point("p", seoul)}, nil)
	if len(visible) != 1 || visible[0].ID != "far" {
		t.Fatalf("visible = %+v", visible)
	}

	visible = s.Visible(nil, nil)
	if len(visible) != 2 {
		t.Errorf("with nothing near both valid markers stay, got %d", len(visible))
	}
	if s.Len() != 3 {
		t.Errorf("suppression must not delete, len = %d", s.Len())
	}
}

func TestDraftStore_SuppressedAcrossAntimeridian(t *testing.T) {
	east := domain.LatLng{Lat: 0, Lng: 179.9999}
	west := domain.LatLng{Lat: 0, Lng: -179.9999}

	s := viewport.NewDraftStore(viewport.DefaultDraftProximityMeters)
	s.Upsert(domain.LocalDraftMarker{ID: "tmp", Position: east})
	if visible := s.Visible([]domain.ServerPoint{point("p", west)}, nil); len(visible) != 0 {
		t.Errorf("marker 22 m from a pin across 180 degrees should be hidden, got %+v", visible)
	}
	if visible := s.Visible(nil, []domain.ServerDraft{point("d", west)}); len(visible) != 0 {
		t.Errorf("marker 22 m from a draft across 180 degrees should be hidden, got %+v", visible)
	}

	fresh := viewport.NewDraftStore(viewport.DefaultDraftProximityMeters)
	if fresh.SafeUpsert(domain.LocalDraftMarker{ID: "tmp", Position: east}, []domain.ServerPoint{point("p", west)}, nil) {
		t.Error("SafeUpsert should refuse a marker next to a pin across 180 degrees")
	}
}

func TestDraftStore_SuppressionCountedOnce(t *testing.T) {
	s := viewport.NewDraftStore(viewport.DefaultDraftProximityMeters)
	s.Upsert(domain.LocalDraftMarker{ID: "near", Position: north(seoul, 300)})
	points := []domain.ServerPoint{point("p", seoul)}

	base := testutil.ToFloat64(metrics.DraftsSuppressed)
	for i := 0; i < 3; i++ {
		s.Visible(points, nil)
	}
	if got := testutil.ToFloat64(metrics.DraftsSuppressed) - base; got != 1 {
		t.Fatalf("repeated builds counted %v suppressions, want 1", got)
	}

	// Visible again, then hidden again: a new transition.
	s.Visible(nil, nil)
	s.Visible(points, nil)
	if got := testutil.ToFloat64(metrics.DraftsSuppressed) - base; got != 2 {
		t.Errorf("after reappearing counted %v, want 2", got)
	}
}

func TestDraftStore_SafeUpsert(t *testing.T) {
	s := viewport.NewDraftStore(800)
	drafts := []domain.ServerDraft{point("d", seoul)}

	if s.SafeUpsert(domain.LocalDraftMarker{ID: "x", Position: north(seoul, 700)}, nil, drafts) {
		t.Error("marker 700 m from a draft should be refused")
	}
	if !s.SafeUpsert(domain.LocalDraftMarker{ID: "y", Position: north(seoul, 900)}, nil, drafts) {
		t.Fatal("marker 900 m away should be stored")
	}
	if s.SafeUpsert(domain.LocalDraftMarker{ID: "z", Position: north(seoul, 1200)}, nil, drafts) {
		t.Error("marker 300 m from another local marker should be refused")
	}
	if s.SafeUpsert(domain.LocalDraftMarker{ID: "n", Position: domain.LatLng{Lat: math.Inf(1)}}, nil, nil) {
		t.Error("non-finite marker should be refused")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestDraftStore_ReplaceTempByRealID(t *testing.T) {
	s := viewport.NewDraftStore(800)
	pos := north(seoul, 100)
	s.Upsert(domain.LocalDraftMarker{ID: "tmp-1", Position: pos, Title: "New listing", Origin: domain.OriginMenu})
	s.Upsert(domain.LocalDraftMarker{ID: "42", Position: seoul})
	s.Upsert(domain.LocalDraftMarker{ID: "tmp-2", Position: north(seoul, 3000)})

	if !s.ReplaceTempByRealID("tmp-1", "42") {
		t.Fatal("expected replace to succeed")
	}
	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 markers, got %+v", all)
	}
	if all[0].ID != "42" || all[0].Position != pos || all[0].Title != "New listing" {
		t.Errorf("renamed marker lost content: %+v", all[0])
	}
	for _, m := range all {
		if m.ID == "tmp-1" {
			t.Error("old id still present")
		}
	}
	if s.ReplaceTempByRealID("missing", "43") {
		t.Error("unknown temp id should report false")
	}
}

func TestDraftStore_ClearSearch(t *testing.T) {
	s := viewport.NewDraftStore(800)
	s.Upsert(domain.LocalDraftMarker{ID: "s", Position: seoul, Origin: domain.OriginSearch})
	s.Upsert(domain.LocalDraftMarker{ID: "m", Position: north(seoul, 5000), Origin: domain.OriginMenu})

	if !s.ClearSearch() {
		t.Fatal("expected a search marker to be removed")
	}
	if all := s.All(); len(all) != 1 || all[0].ID != "m" {
		t.Errorf("remaining = %+v", all)
	}
	if s.ClearSearch() {
		t.Error("second clear should remove nothing")
	}
	s.ClearTemp()
	if s.Len() != 0 {
		t.Error("ClearTemp should empty the store")
	}
}

func TestGate_EpsilonAndSearchReset(t *testing.T) {
	g := viewport.NewGate(viewport.DefaultOptions())

	if res := g.Observe(domain.Viewport{}); res.Changed {
		t.Fatal("zero viewport should be ignored")
	}
	if g.State() != viewport.GateIdle {
		t.Fatal("gate should stay idle")
	}

	v := viewportAround(seoul, 0.01)
	res := g.Observe(v)
	if !res.Changed || !res.HasBounds {
		t.Fatalf("first viewport should pass: %+v", res)
	}
	if res.Bounds.SW != v.LeftBottom || res.Bounds.NE != v.RightTop {
		t.Errorf("bounds = %+v", res.Bounds)
	}

	jitter := v
	jitter.RightTop.Lat += 1e-7
	if g.Observe(jitter).Changed {
		t.Error("sub-epsilon change should be ignored")
	}

	center := seoul
	g.SetSearchCenter(&center)
	if res := g.Observe(viewportAround(north(seoul, 200), 0.01)); res.ClearSearch {
		t.Error("200 m move should not clear search markers")
	}
	if res := g.Observe(viewportAround(north(seoul, 350), 0.01)); !res.ClearSearch {
		t.Error("350 m move should clear search markers")
	}
	if _, ok := g.SearchCenter(); ok {
		t.Error("search center should be reset")
	}
}

func TestSameViewport_AllCorners(t *testing.T) {
	a := viewportAround(seoul, 0.01)
	b := a
	b.LeftBottom.Lng += 1e-5
	if viewport.SameViewport(a, b, viewport.DefaultViewportEpsilon) {
		t.Error("a left-bottom change beyond epsilon must count")
	}
}
