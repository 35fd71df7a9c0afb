package http

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/viewport"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// wsMessage is sent from the client to drive its map session.
// Type selects which of the other fields are read.
type wsMessage struct {
	Type     string                   `json:"type"`
	Viewport *domain.Viewport         `json:"viewport,omitempty"` // viewport
	Filter   domain.FilterKey         `json:"filter,omitempty"`   // filter
	Toggle   bool                     `json:"toggle,omitempty"`   // filter
	Search   *domain.SearchResult     `json:"search,omitempty"`   // search; null clears
	Markers  []domain.Marker          `json:"markers,omitempty"`  // app
	Marker   *domain.LocalDraftMarker `json:"marker,omitempty"`   // upsert, safeUpsert
	TempID   string                   `json:"tempId,omitempty"`   // replace
	RealID   string                   `json:"realId,omitempty"`   // replace
	Open     bool                     `json:"open,omitempty"`     // menu
	TargetID string                   `json:"targetId,omitempty"` // menu
	Anchor   *domain.LatLng           `json:"anchor,omitempty"`   // menu
	ID       string                   `json:"id,omitempty"`       // hideLabel
	Op       string                   `json:"op,omitempty"`       // measure: click|move|end|reset
	Point    *domain.LatLng           `json:"point,omitempty"`    // measure
}

// wsReply is pushed to the client.
type wsReply struct {
	Type      string                   `json:"type"` // frame | measure | ack | error
	SessionID string                   `json:"sessionId,omitempty"`
	Frame     *domain.Frame            `json:"frame,omitempty"`
	Ops       []viewport.OverlayOp     `json:"ops,omitempty"`
	Summary   *viewport.MeasureSummary `json:"summary,omitempty"`
	Request   string                   `json:"request,omitempty"`
	OK        *bool                    `json:"ok,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// wsWriter owns all writes to one connection. Frames are full snapshots,
// so only the newest pending one is kept; other replies are queued.
type wsWriter struct {
	conn    *websocket.Conn
	replies chan wsReply
	wake    chan struct{}
	done    chan struct{} // closed by the reader on disconnect
	stopped chan struct{} // closed when run returns

	mu    sync.Mutex
	frame *domain.Frame
}

func newWSWriter(conn *websocket.Conn) *wsWriter {
	return &wsWriter{
		conn:    conn,
		replies: make(chan wsReply, 32),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// pushFrame never blocks; it runs under the session lock.
func (w *wsWriter) pushFrame(f domain.Frame) {
	w.mu.Lock()
	w.frame = &f
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *wsWriter) send(r wsReply) {
	select {
	case w.replies <- r:
	case <-w.done:
	case <-w.stopped:
	}
}

func (w *wsWriter) takeFrame() *domain.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	f := w.frame
	w.frame = nil
	return f
}

func (w *wsWriter) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWriter) run(sessionID string) error {
	defer close(w.stopped)
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.wake:
			if f := w.takeFrame(); f != nil {
				if err := w.write(wsReply{Type: "frame", SessionID: sessionID, Frame: f}); err != nil {
					return err
				}
			}
		case r := <-w.replies:
			if err := w.write(r); err != nil {
				return err
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-w.done:
			return nil
		}
	}
}

// WebSocketHandler returns a handler that runs one map session per
// connection. The client streams viewport changes and marker edits; the
// server answers with frames and measure overlay instructions.
// Clients send JSON such as {"type":"viewport","viewport":{...}}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		logger := deps.logger().With("remote_addr", c.RemoteAddr().String())
		if deps.Hub == nil {
			_ = c.WriteJSON(wsReply{Type: "error", Error: "map sessions not available"})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		w := newWSWriter(c)
		session := deps.Hub.Open(w.pushFrame)
		logger = logger.With("session_id", session.ID())
		logger.Info("ws client connected")

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			if err := w.run(session.ID()); err != nil {
				logger.Debug("ws write failed", "error", err)
				_ = c.Close()
			}
		}()

		w.pushFrame(session.Snapshot())
		measure := viewport.NewMeasure()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				w.send(wsReply{Type: "error", Error: "invalid JSON"})
				continue
			}
			handleWSMessage(ctx, session, measure, w, m)
		}

		cancel()
		deps.Hub.Close(session.ID())
		close(w.done)
		<-w.stopped
		logger.Info("ws client disconnected")
	}
}

func handleWSMessage(ctx context.Context, s *viewport.Session, measure *viewport.Measure, w *wsWriter, m wsMessage) {
	ack := func(ok bool) {
		w.send(wsReply{Type: "ack", Request: m.Type, OK: &ok})
	}
	fail := func(msg string) {
		w.send(wsReply{Type: "error", Request: m.Type, Error: msg})
	}

	switch m.Type {
	case "viewport":
		if m.Viewport == nil {
			fail("viewport is required")
			return
		}
		s.HandleViewport(ctx, *m.Viewport)

	case "filter":
		if m.Toggle {
			s.ToggleFilter(ctx, m.Filter)
		} else {
			s.SetFilter(ctx, m.Filter)
		}

	case "search":
		s.SetSearchResult(m.Search)

	case "app":
		s.SetAppMarkers(m.Markers)

	case "upsert":
		if m.Marker == nil || m.Marker.ID == "" {
			fail("marker with id is required")
			return
		}
		s.UpsertDraftMarker(*m.Marker)

	case "safeUpsert":
		if m.Marker == nil || m.Marker.ID == "" {
			fail("marker with id is required")
			return
		}
		ack(s.SafeUpsertDraftMarker(*m.Marker))

	case "replace":
		if m.TempID == "" || m.RealID == "" {
			fail("tempId and realId are required")
			return
		}
		ack(s.ReplaceTempByRealID(m.TempID, m.RealID))

	case "clearTemp":
		s.ClearTempMarkers()

	case "clearSearchMarkers":
		s.ClearSearchMarkers()

	case "menu":
		if m.Open {
			s.OpenMenu(m.TargetID, m.Anchor)
		} else {
			s.CloseMenu()
		}

	case "hideLabel":
		s.SetHiddenLabel(m.ID)

	case "reload":
		ack(s.Reload(ctx))

	case "measure":
		handleMeasure(measure, w, m)

	default:
		fail("unknown message type: " + m.Type)
	}
}

func handleMeasure(measure *viewport.Measure, w *wsWriter, m wsMessage) {
	var (
		ops     []viewport.OverlayOp
		summary *viewport.MeasureSummary
	)
	switch m.Op {
	case "click", "move":
		if m.Point == nil {
			w.send(wsReply{Type: "error", Request: "measure", Error: "point is required"})
			return
		}
		if m.Op == "click" {
			ops = measure.Click(*m.Point)
		} else {
			ops = measure.Move(*m.Point)
		}
	case "end":
		ops, summary = measure.End()
	case "reset":
		ops = measure.Reset()
	default:
		w.send(wsReply{Type: "error", Request: "measure", Error: "unknown measure op: " + m.Op})
		return
	}
	if len(ops) == 0 && summary == nil {
		return
	}
	w.send(wsReply{Type: "measure", Ops: ops, Summary: summary})
}
