package viewport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
)

// Hub owns the live sessions of a process.
type Hub struct {
	source ports.PinsSource
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub returns an empty hub whose sessions read from source.
func NewHub(source ports.PinsSource, opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source:   source,
		opts:     opts.withDefaults(),
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Options returns the thresholds sessions are created with.
func (h *Hub) Options() Options { return h.opts }

// Open registers a new session with a random id.
func (h *Hub) Open(emit Emitter) *Session {
	s := NewSession(uuid.NewString(), h.source, h.opts, emit, h.logger)

	h.mu.Lock()
	h.sessions[s.ID()] = s
	n := len(h.sessions)
	h.mu.Unlock()

	metrics.ActiveSessions.Inc()
	h.logger.Debug("map session opened", "session_id", s.ID(), "sessions", n)
	return s
}

// Get looks up a live session.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Close closes and unregisters session id.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	metrics.ActiveSessions.Dec()
	h.logger.Debug("map session closed", "session_id", id)
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ReloadAll refetches every session that has bounds, after a pin was
// created, edited or deleted. It returns how many fetches started. The
// fetches outlive ctx; each ends with its session.
func (h *Hub) ReloadAll(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)
	started := 0
	for _, s := range h.snapshot() {
		if s.Reload(ctx) {
			started++
		}
	}
	return started
}

// CloseAll closes every session.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	for _, s := range all {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}
