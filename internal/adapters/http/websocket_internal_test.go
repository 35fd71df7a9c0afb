package http

import (
	"context"
	"testing"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/viewport"
)

type emptySource struct{}

func (emptySource) PinsInBounds(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error) {
	return domain.PinsResult{}, nil
}

// drain returns the replies queued so far; the writer loop is not running.
func drain(w *wsWriter) []wsReply {
	var out []wsReply
	for {
		select {
		case r := <-w.replies:
			out = append(out, r)
		default:
			return out
		}
	}
}

func TestHandleWSMessage_Replies(t *testing.T) {
	hub := viewport.NewHub(emptySource{}, viewport.DefaultOptions(), nil)
	defer hub.CloseAll()
	w := newWSWriter(nil)
	s := hub.Open(w.pushFrame)
	measure := viewport.NewMeasure()
	ctx := context.Background()

	marker := &domain.LocalDraftMarker{ID: "tmp-1", Position: domain.LatLng{Lat: 37.5, Lng: 127.0}, Origin: domain.OriginMenu}
	pt := &domain.LatLng{Lat: 37.5, Lng: 127.0}

	tests := []struct {
		name    string
		msg     wsMessage
		typ     string
		ok      bool
		errText string
	}{
		{"safe upsert stored", wsMessage{Type: "safeUpsert", Marker: marker}, "ack", true, ""},
		{"safe upsert next to itself", wsMessage{Type: "safeUpsert", Marker: &domain.LocalDraftMarker{ID: "tmp-2", Position: marker.Position}}, "ack", false, ""},
		{"replace known", wsMessage{Type: "replace", TempID: "tmp-1", RealID: "42"}, "ack", true, ""},
		{"replace unknown", wsMessage{Type: "replace", TempID: "tmp-9", RealID: "43"}, "ack", false, ""},
		{"replace missing ids", wsMessage{Type: "replace", TempID: "tmp-9"}, "error", false, "tempId and realId are required"},
		{"reload without bounds", wsMessage{Type: "reload"}, "ack", false, ""},
		{"viewport missing", wsMessage{Type: "viewport"}, "error", false, "viewport is required"},
		{"measure without point", wsMessage{Type: "measure", Op: "click"}, "error", false, "point is required"},
		{"measure click", wsMessage{Type: "measure", Op: "click", Point: pt}, "measure", false, ""},
		{"unknown type", wsMessage{Type: "teleport"}, "error", false, "unknown message type: teleport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handleWSMessage(ctx, s, measure, w, tt.msg)
			replies := drain(w)
			if len(replies) != 1 {
				t.Fatalf("expected one reply, got %d", len(replies))
			}
			r := replies[0]
			if r.Type != tt.typ {
				t.Fatalf("reply type = %q, want %q", r.Type, tt.typ)
			}
			switch tt.typ {
			case "ack":
				if r.OK == nil || *r.OK != tt.ok {
					t.Errorf("ack ok = %v, want %v", r.OK, tt.ok)
				}
			case "error":
				if r.Error != tt.errText {
					t.Errorf("error = %q, want %q", r.Error, tt.errText)
				}
			case "measure":
				if len(r.Ops) == 0 {
					t.Error("expected overlay ops")
				}
			}
		})
	}

	// Mutations publish frames through the coalescing slot, not the reply queue.
	f := w.takeFrame()
	if f == nil {
		t.Fatal("expected a pending frame")
	}
	if len(f.Markers) != 1 || f.Markers[0].ID != "42" {
		t.Errorf("latest frame markers = %+v, want the renamed local marker", f.Markers)
	}
}
