// Package pinsapi is a client for a remote backend that serves the
// pins-in-bounds query over REST.
package pinsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
	"github.com/samirrijal/pinmap/internal/pkg/telemetry"
)

var (
	ErrUnauthorized = errors.New("pinsapi: unauthorized")
	ErrBadRequest   = errors.New("pinsapi: bad request")
)

// StatusError is returned for unexpected response codes.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pinsapi: status %d", e.Code)
	}
	return fmt.Sprintf("pinsapi: status %d: %s", e.Code, e.Body)
}

// Client implements ports.PinsSource against GET {base}/pins/map.
// Requests are rate limited client-side and never retried; a failed fetch
// is retried by the next viewport change.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

// New creates a client. rps <= 0 defaults to 10 requests per second.
func New(base, key string, rps float64, burst int, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("pinsapi: invalid base URL %q", base)
	}
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// QueryValues encodes q as the backend's query string. Absent flags are
// omitted rather than sent as false.
func QueryValues(q domain.PinsQuery) url.Values {
	v := url.Values{}
	v.Set("swLat", formatCoord(q.Bounds.SW.Lat))
	v.Set("swLng", formatCoord(q.Bounds.SW.Lng))
	v.Set("neLat", formatCoord(q.Bounds.NE.Lat))
	v.Set("neLng", formatCoord(q.Bounds.NE.Lng))
	if q.DraftState != "" {
		v.Set("draftState", string(q.DraftState))
	}
	if q.IsNew != nil {
		v.Set("isNew", strconv.FormatBool(*q.IsNew))
	}
	if q.IsOld != nil {
		v.Set("isOld", strconv.FormatBool(*q.IsOld))
	}
	return v
}

type envelope struct {
	Points json.RawMessage    `json:"points"`
	Drafts json.RawMessage    `json:"drafts"`
	Data   *domain.PinsResult `json:"data"`
}

// PinsInBounds fetches the pins inside q.Bounds.
func (c *Client) PinsInBounds(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error) {
	ctx, span := otel.Tracer("github.com/samirrijal/pinmap/internal/adapters/pinsapi").Start(ctx, telemetry.SpanRemotePins)
	defer span.End()

	res, err := c.pinsInBounds(ctx, q)
	if err != nil && ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("points", len(res.Points)), attribute.Int("drafts", len(res.Drafts)))
	return res, err
}

func (c *Client) pinsInBounds(ctx context.Context, q domain.PinsQuery) (domain.PinsResult, error) {
	if err := c.rl.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return domain.PinsResult{}, ctx.Err()
		}
		return domain.PinsResult{}, fmt.Errorf("pinsapi: rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/pins/map?"+QueryValues(q).Encode(), nil)
	if err != nil {
		return domain.PinsResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pinmap/1.0")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PinsResult{}, ctx.Err()
		}
		metrics.RemoteRequests.WithLabelValues("error").Inc()
		return domain.PinsResult{}, fmt.Errorf("pinsapi: %w", err)
	}
	defer resp.Body.Close()
	metrics.RemoteRequests.WithLabelValues(strconv.Itoa(resp.StatusCode/100) + "xx").Inc()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.PinsResult{}, ErrUnauthorized
	case resp.StatusCode == http.StatusBadRequest:
		return domain.PinsResult{}, fmt.Errorf("%w: %s", ErrBadRequest, readSnippet(resp.Body))
	case resp.StatusCode == http.StatusNoContent:
		return domain.PinsResult{}.Normalized(), nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return domain.PinsResult{}, &StatusError{Code: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	return decode(resp.Body)
}

// decode accepts both a bare {points, drafts} body and one wrapped in
// {"data": {...}}.
func decode(r io.Reader) (domain.PinsResult, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return domain.PinsResult{}, fmt.Errorf("pinsapi: decode: %w", err)
	}
	if env.Data != nil && env.Points == nil && env.Drafts == nil {
		return env.Data.Normalized(), nil
	}

	var res domain.PinsResult
	if len(env.Points) > 0 {
		if err := json.Unmarshal(env.Points, &res.Points); err != nil {
			return domain.PinsResult{}, fmt.Errorf("pinsapi: decode points: %w", err)
		}
	}
	if len(env.Drafts) > 0 {
		if err := json.Unmarshal(env.Drafts, &res.Drafts); err != nil {
			return domain.PinsResult{}, fmt.Errorf("pinsapi: decode drafts: %w", err)
		}
	}
	return res.Normalized(), nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(b))
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
