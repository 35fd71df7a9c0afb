package viewport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/ports"
)

// Emitter receives every frame a session produces. It runs with the session
// lock held and must not call back into the session.
type Emitter func(domain.Frame)

// Session is the pipeline behind one map view. It gates viewport events,
// drives the fetcher, applies the active filter or search, keeps local
// draft markers and merges everything into frames.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger

	fetcher *Fetcher

	mu         sync.Mutex
	gate       *Gate
	drafts     *DraftStore
	filter     domain.FilterKey
	search     *domain.SearchResult
	app        []domain.Marker
	menuOpen   bool
	menuTarget string
	hidden     string
	seq        uint64
	emit       Emitter
	closed     bool
}

// NewSession creates a session reading pins from source. emit may be nil.
func NewSession(id string, source ports.PinsSource, opts Options, emit Emitter, logger *slog.Logger) *Session {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:     id,
		opts:   opts,
		logger: logger.With("session_id", id),
		gate:   NewGate(opts),
		drafts: NewDraftStore(opts.DraftProximityMeters),
		filter: domain.FilterAll,
		emit:   emit,
	}
	s.fetcher = NewFetcher(source, s.onFetchSettled)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Viewport returns the last accepted viewport, so a session can serve as
// the MapEngine of CurrentBounds.
func (s *Session) Viewport() (domain.Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.Last()
}

func (s *Session) onFetchSettled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	st := s.fetcher.State()
	if st.Error != "" {
		s.logger.Warn("pins fetch failed", "error", st.Error)
	}
	s.emitLocked()
}

// HandleViewport feeds one viewport event from the map engine. Duplicate
// viewports are dropped; a changed one updates the fetch bounds and may
// clear search markers when the map moved away from the last search.
func (s *Session) HandleViewport(ctx context.Context, v domain.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	res := s.gate.Observe(v)
	if !res.Changed {
		return
	}
	if res.ClearSearch && s.drafts.ClearSearch() {
		s.logger.Debug("search markers cleared", "reason", "recentered")
	}
	var bounds *domain.GeoBounds
	if res.HasBounds {
		bounds = &res.Bounds
	}
	s.fetcher.SetBounds(ctx, bounds)
	s.emitLocked()
}

// SetFilter switches the menu filter and refetches with its flags.
func (s *Session) SetFilter(ctx context.Context, key domain.FilterKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setFilterLocked(ctx, key)
}

// ToggleFilter selects key, or falls back to "all" when key is already
// active.
func (s *Session) ToggleFilter(ctx context.Context, key domain.FilterKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.filter {
		key = domain.FilterAll
	}
	s.setFilterLocked(ctx, key)
}

func (s *Session) setFilterLocked(ctx context.Context, key domain.FilterKey) {
	if s.closed || key == s.filter {
		return
	}
	if key == "" {
		key = domain.FilterAll
	}
	s.filter = key
	s.fetcher.SetFlags(ctx, FlagsForFilter(key))
	s.emitLocked()
}

// Filter returns the active filter.
func (s *Session) Filter() domain.FilterKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetSearchResult activates a filter search result, which replaces the
// viewport data until cleared with nil.
func (s *Session) SetSearchResult(r *domain.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if r == nil {
		s.search = nil
	} else {
		cp := domain.SearchResult{
			Pins:   append([]domain.SearchPin(nil), r.Pins...),
			Drafts: append([]domain.SearchDraft(nil), r.Drafts...),
		}
		s.search = &cp
	}
	s.emitLocked()
}

// SetAppMarkers replaces the markers the application supplies directly.
// They are merged ahead of local drafts and server pins.
func (s *Session) SetAppMarkers(markers []domain.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.app = append([]domain.Marker(nil), markers...)
	s.emitLocked()
}

// UpsertDraftMarker inserts or updates a local marker unconditionally.
func (s *Session) UpsertDraftMarker(m domain.LocalDraftMarker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.drafts.Upsert(m)
	s.emitLocked()
}

// SafeUpsertDraftMarker inserts m unless something already sits nearby.
// It reports whether m was stored.
func (s *Session) SafeUpsertDraftMarker(m domain.LocalDraftMarker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	points, drafts := s.effectiveLocked()
	if !s.drafts.SafeUpsert(m, points, drafts) {
		return false
	}
	s.emitLocked()
	return true
}

// ReplaceTempByRealID renames a local marker once its pin is saved.
func (s *Session) ReplaceTempByRealID(tempID, realID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.drafts.ReplaceTempByRealID(tempID, realID) {
		return false
	}
	if s.hidden == tempID {
		s.hidden = realID
	}
	if s.menuTarget == tempID {
		s.menuTarget = realID
	}
	s.emitLocked()
	return true
}

// ClearTempMarkers drops every local marker.
func (s *Session) ClearTempMarkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.drafts.ClearTemp()
	s.emitLocked()
}

// ClearSearchMarkers drops the local markers created by a place search.
func (s *Session) ClearSearchMarkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.drafts.ClearSearch() {
		s.emitLocked()
	}
}

// OpenMenu opens the context menu on targetID. A non-nil anchor becomes the
// search center used for the recenter reset.
func (s *Session) OpenMenu(targetID string, anchor *domain.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.menuOpen = true
	s.menuTarget = targetID
	if targetID != "" {
		s.hidden = targetID
	}
	if anchor != nil {
		s.gate.SetSearchCenter(anchor)
	}
	s.emitLocked()
}

// CloseMenu closes the context menu. A label hidden for the search marker
// becomes visible again.
func (s *Session) CloseMenu() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.menuOpen {
		return
	}
	s.menuOpen = false
	s.menuTarget = ""
	if s.hidden == SearchMarkerID {
		s.hidden = ""
	}
	s.emitLocked()
}

// SetHiddenLabel hides the label of marker id. An empty id shows all.
func (s *Session) SetHiddenLabel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.hidden == id {
		return
	}
	s.hidden = id
	s.emitLocked()
}

// Reload refetches the current bounds. It reports whether a fetch started.
func (s *Session) Reload(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.fetcher.Reload(ctx) {
		return false
	}
	s.emitLocked()
	return true
}

// Snapshot builds the current frame without emitting it.
func (s *Session) Snapshot() domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked()
}

// Wait blocks until outstanding fetches have settled.
func (s *Session) Wait() {
	s.fetcher.Wait()
}

// Close cancels outstanding work. The session emits nothing afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.fetcher.Close()
}

func (s *Session) effectiveLocked() ([]domain.ServerPoint, []domain.ServerDraft) {
	st := s.fetcher.State()
	return Effective(s.search, st.Points, st.Drafts)
}

func (s *Session) buildLocked() domain.Frame {
	st := s.fetcher.State()
	points, drafts := Effective(s.search, st.Points, st.Drafts)

	visible := s.drafts.Visible(points, drafts)
	local := make([]domain.Marker, 0, len(s.app)+len(visible))
	local = append(local, s.app...)
	for _, l := range visible {
		local = append(local, LocalToMarker(l))
	}

	markers := Merge(local, points, drafts)
	return domain.Frame{
		Seq:      s.seq,
		Markers:  markers,
		Meta:     BuildMeta(markers),
		HiddenID: EffectiveHiddenID(s.menuOpen, s.menuTarget, s.hidden),
		Loading:  st.Loading,
		Error:    st.Error,
		Bounds:   st.Bounds,
	}
}

func (s *Session) emitLocked() {
	s.seq++
	if s.emit == nil {
		return
	}
	s.emit(s.buildLocked())
}
