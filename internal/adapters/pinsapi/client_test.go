package pinsapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samirrijal/pinmap/internal/adapters/pinsapi"
	"github.com/samirrijal/pinmap/internal/core/domain"
)

var testBounds = domain.GeoBounds{
	SW: domain.LatLng{Lat: 37.50, Lng: 127.00},
	NE: domain.LatLng{Lat: 37.52, Lng: 127.02},
}

func newClient(t *testing.T, url string) *pinsapi.Client {
	t.Helper()
	c, err := pinsapi.New(url, "secret", 100, 10, 2*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestQueryValues_PlannedOnly(t *testing.T) {
	v := pinsapi.QueryValues(domain.PinsQuery{
		Bounds:   testBounds,
		PinFlags: domain.PinFlags{DraftState: domain.DraftStateBefore},
	})
	if v.Get("swLat") != "37.5" || v.Get("neLng") != "127.02" {
		t.Errorf("bounds params = %v", v)
	}
	if v.Get("draftState") != "before" {
		t.Errorf("draftState = %q", v.Get("draftState"))
	}
	if v.Has("isNew") || v.Has("isOld") {
		t.Errorf("absent flags must not be sent: %v", v)
	}
}

func TestPinsInBounds_DecodesAliases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pins/map" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header")
		}
		if r.URL.Query().Get("isNew") != "true" {
			t.Errorf("isNew = %q", r.URL.Query().Get("isNew"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"points":[{"id":1,"y":37.51,"x":127.01,"name":"A"}],"drafts":null}`))
	}))
	defer srv.Close()

	on := true
	res, err := newClient(t, srv.URL).PinsInBounds(context.Background(), domain.PinsQuery{
		Bounds:   testBounds,
		PinFlags: domain.PinFlags{IsNew: &on},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Points) != 1 || res.Points[0].ID != "1" || res.Points[0].Lat != 37.51 {
		t.Errorf("points = %+v", res.Points)
	}
	if res.Drafts == nil || len(res.Drafts) != 0 {
		t.Errorf("null drafts should normalize to empty, got %v", res.Drafts)
	}
}

func TestPinsInBounds_DataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"points":[],"drafts":[{"id":"d1","lat":37.51,"lng":127.01}]}}`))
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL).PinsInBounds(context.Background(), domain.PinsQuery{Bounds: testBounds})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Drafts) != 1 || res.Drafts[0].ID != "d1" {
		t.Errorf("drafts = %+v", res.Drafts)
	}
}

func TestPinsInBounds_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, func(err error) bool { return errors.Is(err, pinsapi.ErrUnauthorized) }},
		{"bad request", http.StatusBadRequest, func(err error) bool { return errors.Is(err, pinsapi.ErrBadRequest) }},
		{"server error", http.StatusBadGateway, func(err error) bool {
			var se *pinsapi.StatusError
			return errors.As(err, &se) && se.Code == http.StatusBadGateway
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newClient(t, srv.URL).PinsInBounds(context.Background(), domain.PinsQuery{Bounds: testBounds})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
			if calls != 1 {
				t.Errorf("failed requests must not be retried, calls = %d", calls)
			}
		})
	}
}

func TestPinsInBounds_CanceledReturnsContextError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newClient(t, srv.URL).PinsInBounds(ctx, domain.PinsQuery{Bounds: testBounds})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := pinsapi.New("/pins", "", 1, 1, time.Second); err == nil {
		t.Error("expected error for relative base URL")
	}
}
