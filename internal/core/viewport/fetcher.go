package viewport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/pkg/metrics"
	"github.com/samirrijal/pinmap/internal/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/samirrijal/pinmap/internal/core/viewport")

// FetchState is an immutable snapshot of a Fetcher.
type FetchState struct {
	Loading bool
	Error   string
	Points  []domain.ServerPoint
	Drafts  []domain.ServerDraft
	Bounds  *domain.GeoBounds
	Flags   domain.PinFlags
}

// Fetcher loads the pins inside the current bounds. At most one request is
// outstanding: starting a new one cancels the previous, and a result that
// arrives for a superseded request is dropped.
type Fetcher struct {
	source   ports.PinsSource
	onChange func()

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	closed bool
	state  FetchState
	wg     sync.WaitGroup
}

// NewFetcher returns a fetcher reading from source. onChange, if set, runs on
// the fetch goroutine after a request settles, with no fetcher lock held.
func NewFetcher(source ports.PinsSource, onChange func()) *Fetcher {
	return &Fetcher{
		source:   source,
		onChange: onChange,
		state: FetchState{
			Points: []domain.ServerPoint{},
			Drafts: []domain.ServerDraft{},
		},
	}
}

// State returns the current snapshot. The slices must not be modified.
func (f *Fetcher) State() FetchState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Load starts a fetch for bounds and flags, cancelling any request in flight.
func (f *Fetcher) Load(ctx context.Context, bounds domain.GeoBounds, flags domain.PinFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	b := bounds
	f.state.Bounds = &b
	f.state.Flags = flags
	f.startLocked(ctx)
}

// SetBounds updates the query rectangle and refetches when it changed. Nil
// or unusable bounds cancel any request and empty the result sets without
// a network call. It reports whether the state changed.
func (f *Fetcher) SetBounds(ctx context.Context, bounds *domain.GeoBounds) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if bounds == nil || !bounds.Valid() {
		return f.clearLocked()
	}
	if f.state.Bounds != nil && *f.state.Bounds == *bounds {
		return false
	}
	b := *bounds
	f.state.Bounds = &b
	f.startLocked(ctx)
	return true
}

// SetFlags updates the query flags and refetches when they changed and
// bounds are known.
func (f *Fetcher) SetFlags(ctx context.Context, flags domain.PinFlags) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.state.Flags.Equal(flags) {
		return false
	}
	f.state.Flags = flags
	if f.state.Bounds == nil {
		return false
	}
	f.startLocked(ctx)
	return true
}

// Reload refetches the last known bounds. It is a no-op without bounds.
func (f *Fetcher) Reload(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.state.Bounds == nil {
		return false
	}
	f.startLocked(ctx)
	return true
}

// Close cancels the outstanding request. Later calls are no-ops.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Wait blocks until every started request has settled.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

func (f *Fetcher) clearLocked() bool {
	hadRequest := f.cancel != nil
	if hadRequest {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
	changed := f.state.Bounds != nil || f.state.Loading || len(f.state.Points) > 0 || len(f.state.Drafts) > 0
	f.state.Bounds = nil
	f.state.Loading = false
	f.state.Points = []domain.ServerPoint{}
	f.state.Drafts = []domain.ServerDraft{}
	return changed || hadRequest
}

func (f *Fetcher) startLocked(parent context.Context) {
	if f.cancel != nil {
		f.cancel()
		metrics.PinFetches.WithLabelValues("canceled").Inc()
	}
	ctx, cancel := context.WithCancel(parent)
	f.cancel = cancel
	f.gen++
	gen := f.gen

	f.state.Loading = true
	f.state.Error = ""

	q := domain.PinsQuery{Bounds: *f.state.Bounds, PinFlags: f.state.Flags}
	metrics.PinFetches.WithLabelValues("started").Inc()

	f.wg.Add(1)
	go f.run(ctx, gen, q)
}

func (f *Fetcher) run(ctx context.Context, gen uint64, q domain.PinsQuery) {
	defer f.wg.Done()

	ctx, span := tracer.Start(ctx, telemetry.SpanViewportFetch)
	span.SetAttributes(
		attribute.Float64("bounds.sw.lat", q.Bounds.SW.Lat),
		attribute.Float64("bounds.sw.lng", q.Bounds.SW.Lng),
		attribute.Float64("bounds.ne.lat", q.Bounds.NE.Lat),
		attribute.Float64("bounds.ne.lng", q.Bounds.NE.Lng),
		attribute.String("draft_state", string(q.DraftState)),
	)
	defer span.End()

	start := time.Now()
	res, err := f.source.PinsInBounds(ctx, q)

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		span.SetAttributes(attribute.Bool("superseded", true))
		return
	}
	canceled := errors.Is(err, context.Canceled) || ctx.Err() != nil
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}

	switch {
	case canceled:
		f.state.Loading = false
		metrics.PinFetches.WithLabelValues("canceled").Inc()
	case err != nil:
		f.state.Loading = false
		f.state.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.PinFetches.WithLabelValues("failed").Inc()
	default:
		res = res.Normalized()
		f.state.Loading = false
		f.state.Error = ""
		f.state.Points = res.Points
		f.state.Drafts = res.Drafts
		span.SetAttributes(
			attribute.Int("points", len(res.Points)),
			attribute.Int("drafts", len(res.Drafts)),
		)
		metrics.PinFetches.WithLabelValues("ok").Inc()
		metrics.PinFetchDuration.Observe(time.Since(start).Seconds())
	}
	f.mu.Unlock()

	if f.onChange != nil {
		f.onChange()
	}
}
