package http_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"

	handler "github.com/samirrijal/pinmap/internal/adapters/http"
	"github.com/samirrijal/pinmap/internal/core/domain"
)

// findOpenAPISpec locates api/openapi.yaml by walking up from the test directory.
func findOpenAPISpec(t *testing.T) string {
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

func loadSpec(t *testing.T) *openapi3.T {
	t.Helper()
	data, err := os.ReadFile(findOpenAPISpec(t))
	if err != nil {
		t.Fatalf("read openapi.yaml: %v", err)
	}
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("parse OpenAPI spec: %v", err)
	}
	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI spec validation failed: %v", err)
	}
	return spec
}

func TestOpenAPISpec(t *testing.T) {
	spec := loadSpec(t)

	for _, path := range []string{
		"/v1/health",
		"/v1/ready",
		"/v1/pins/map",
		"/v1/pins/{id}",
		"/v1/pins/events",
		"/v1/map/merge",
		"/graphql",
	} {
		if item := spec.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found in spec", path)
		}
	}

	for _, schema := range []string{
		"Pin",
		"PinsResult",
		"PinsChange",
		"LocalDraftMarker",
		"Marker",
		"MergeRequest",
		"MergeResponse",
		"APIError",
	} {
		if spec.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}
}

func TestOpenAPIInfo(t *testing.T) {
	spec := loadSpec(t)

	if spec.Info.Title != "Pinmap API" {
		t.Errorf("expected title 'Pinmap API', got %q", spec.Info.Title)
	}
	if spec.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", spec.Info.Version)
	}
	if len(spec.Servers) == 0 {
		t.Fatal("expected at least one server")
	}
}

// TestResponsesMatchContract runs live handlers and validates their bodies
// against the documented response schemas.
func TestResponsesMatchContract(t *testing.T) {
	spec := loadSpec(t)
	router, err := legacy.NewRouter(spec)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	title := "Gangnam 1room"
	source := &mockSource{pinsFn: func(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error) {
		return domain.PinsResult{
			Points: []domain.ServerPoint{{ID: "p1", Lat: 37.55, Lng: 127.0, Title: &title, PinKind: "1room"}},
			Drafts: []domain.ServerDraft{},
		}, nil
	}}
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Pins = source }))

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"pins map", "http://localhost:8080" + mapQuery, 200},
		{"pins map bad bounds", "http://localhost:8080/v1/pins/map?swLat=x", 400},
		{"health", "http://localhost:8080/v1/health", 200},
		{"ready", "http://localhost:8080/v1/ready", 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			route, params, err := router.FindRoute(req)
			if err != nil {
				t.Fatalf("route: %v", err)
			}

			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)

			err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
				RequestValidationInput: &openapi3filter.RequestValidationInput{
					Request:    req,
					PathParams: params,
					Route:      route,
				},
				Status: resp.StatusCode,
				Header: resp.Header,
				Body:   io.NopCloser(bytes.NewReader(body)),
			})
			if err != nil {
				t.Errorf("response violates contract: %v\nbody: %s", err, body)
			}
		})
	}
}
