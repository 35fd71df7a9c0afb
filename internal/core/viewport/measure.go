package viewport

import (
	"math"

	"github.com/google/uuid"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/pkg/geospatial"
)

// Travel speeds used for the measure summary, in meters per minute.
const (
	WalkMetersPerMinute = 67
	BikeMetersPerMinute = 227
)

// OverlayKind names a drawable the measure tool owns.
type OverlayKind string

const (
	OverlayLine  OverlayKind = "line"  // confirmed path
	OverlayGuide OverlayKind = "guide" // segment following the pointer
	OverlayDot   OverlayKind = "dot"
	OverlayLabel OverlayKind = "label" // per-vertex cumulative distance
	OverlayTotal OverlayKind = "total" // running total, then the summary
)

// OverlayAction is what the renderer should do with an overlay.
type OverlayAction string

const (
	ActionCreate  OverlayAction = "create"
	ActionUpdate  OverlayAction = "update"
	ActionRelease OverlayAction = "release"
)

// TravelTime is a duration split for display. Hours is only set when the
// total exceeds an hour.
type TravelTime struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// MeasureSummary is shown at the last vertex when a measurement ends.
type MeasureSummary struct {
	Meters int        `json:"meters"`
	Walk   TravelTime `json:"walk"`
	Bike   TravelTime `json:"bike"`
}

// OverlayOp is one instruction for the map renderer.
type OverlayOp struct {
	Action   OverlayAction   `json:"action"`
	ID       string          `json:"id"`
	Kind     OverlayKind     `json:"kind"`
	Path     []domain.LatLng `json:"path,omitempty"`
	Position *domain.LatLng  `json:"position,omitempty"`
	Meters   *int            `json:"meters,omitempty"`
	Summary  *MeasureSummary `json:"summary,omitempty"`
}

type overlay struct {
	id   string
	kind OverlayKind
}

// Measure is the distance measuring tool of a map view. Every overlay it
// creates is tracked until released. It is not safe for concurrent use.
type Measure struct {
	drawing bool
	path    []domain.LatLng

	line   *overlay
	guide  *overlay
	total  *overlay
	dots   []overlay
	labels []overlay
}

// NewMeasure returns an idle tool.
func NewMeasure() *Measure { return &Measure{} }

// Drawing reports whether a measurement is in progress.
func (m *Measure) Drawing() bool { return m.drawing }

// Path returns a copy of the confirmed vertices.
func (m *Measure) Path() []domain.LatLng {
	return append([]domain.LatLng(nil), m.path...)
}

// Meters is the length of the confirmed path.
func (m *Measure) Meters() float64 {
	var d float64
	for i := 1; i < len(m.path); i++ {
		d += geospatial.Distance(m.path[i-1], m.path[i])
	}
	return d
}

// Live returns the number of overlays not yet released.
func (m *Measure) Live() int {
	n := len(m.dots) + len(m.labels)
	for _, o := range []*overlay{m.line, m.guide, m.total} {
		if o != nil {
			n++
		}
	}
	return n
}

// Click starts a measurement or adds a vertex to the current one.
func (m *Measure) Click(p domain.LatLng) []OverlayOp {
	if !m.drawing {
		return m.Start(p)
	}
	return m.Add(p)
}

// Start discards any previous measurement and begins a new one at p.
func (m *Measure) Start(p domain.LatLng) []OverlayOp {
	if !p.Finite() {
		return nil
	}
	ops := m.releaseAll()
	m.drawing = true
	m.path = []domain.LatLng{p}

	m.line = newOverlay(OverlayLine)
	m.guide = newOverlay(OverlayGuide)
	ops = append(ops,
		OverlayOp{Action: ActionCreate, ID: m.line.id, Kind: OverlayLine, Path: m.Path()},
		OverlayOp{Action: ActionCreate, ID: m.guide.id, Kind: OverlayGuide},
	)
	return append(ops, m.addVertexOverlays(p, 0)...)
}

// Add appends vertex p.
func (m *Measure) Add(p domain.LatLng) []OverlayOp {
	if !m.drawing {
		return m.Start(p)
	}
	if !p.Finite() {
		return nil
	}
	m.path = append(m.path, p)
	ops := []OverlayOp{{Action: ActionUpdate, ID: m.line.id, Kind: OverlayLine, Path: m.Path()}}
	return append(ops, m.addVertexOverlays(p, roundMeters(m.Meters()))...)
}

// Move draws the guide segment from the last vertex to p with the running
// total at the pointer.
func (m *Measure) Move(p domain.LatLng) []OverlayOp {
	if !m.drawing || !p.Finite() || len(m.path) == 0 {
		return nil
	}
	last := m.path[len(m.path)-1]
	meters := roundMeters(m.Meters() + geospatial.Distance(last, p))
	pos := p

	ops := []OverlayOp{{Action: ActionUpdate, ID: m.guide.id, Kind: OverlayGuide, Path: []domain.LatLng{last, p}}}
	action := ActionUpdate
	if m.total == nil {
		m.total = newOverlay(OverlayTotal)
		action = ActionCreate
	}
	return append(ops, OverlayOp{Action: action, ID: m.total.id, Kind: OverlayTotal, Position: &pos, Meters: &meters})
}

// End finishes the measurement. With at least two vertices the path stays
// on the map with a summary at the last vertex; otherwise everything is
// removed. The summary is nil in the latter case.
func (m *Measure) End() ([]OverlayOp, *MeasureSummary) {
	if !m.drawing {
		return nil, nil
	}
	m.drawing = false

	var ops []OverlayOp
	if m.guide != nil {
		ops = append(ops, release(*m.guide))
		m.guide = nil
	}
	if len(m.path) < 2 {
		ops = append(ops, m.releaseAll()...)
		m.path = nil
		return ops, nil
	}

	if n := len(m.labels); n > 0 {
		ops = append(ops, release(m.labels[n-1]))
		m.labels = m.labels[:n-1]
	}

	summary := Summarize(m.Meters())
	last := m.path[len(m.path)-1]
	action := ActionUpdate
	if m.total == nil {
		m.total = newOverlay(OverlayTotal)
		action = ActionCreate
	}
	ops = append(ops, OverlayOp{Action: action, ID: m.total.id, Kind: OverlayTotal, Position: &last, Summary: &summary})
	return ops, &summary
}

// Reset releases every overlay, as when the tool is hidden.
func (m *Measure) Reset() []OverlayOp {
	ops := m.releaseAll()
	m.drawing = false
	m.path = nil
	return ops
}

// Summarize converts a distance into the displayed totals.
func Summarize(meters float64) MeasureSummary {
	d := roundMeters(meters)
	return MeasureSummary{
		Meters: d,
		Walk:   splitMinutes(d / WalkMetersPerMinute),
		Bike:   splitMinutes(d / BikeMetersPerMinute),
	}
}

func splitMinutes(total int) TravelTime {
	if total > 60 {
		return TravelTime{Hours: total / 60, Minutes: total % 60}
	}
	return TravelTime{Minutes: total}
}

func (m *Measure) addVertexOverlays(p domain.LatLng, meters int) []OverlayOp {
	dot, label := *newOverlay(OverlayDot), *newOverlay(OverlayLabel)
	m.dots = append(m.dots, dot)
	m.labels = append(m.labels, label)
	pos := p
	return []OverlayOp{
		{Action: ActionCreate, ID: dot.id, Kind: OverlayDot, Position: &pos},
		{Action: ActionCreate, ID: label.id, Kind: OverlayLabel, Position: &pos, Meters: &meters},
	}
}

func (m *Measure) releaseAll() []OverlayOp {
	var ops []OverlayOp
	for _, o := range []*overlay{m.line, m.guide, m.total} {
		if o != nil {
			ops = append(ops, release(*o))
		}
	}
	for _, o := range m.dots {
		ops = append(ops, release(o))
	}
	for _, o := range m.labels {
		ops = append(ops, release(o))
	}
	m.line, m.guide, m.total = nil, nil, nil
	m.dots, m.labels = nil, nil
	return ops
}

func newOverlay(kind OverlayKind) *overlay {
	return &overlay{id: uuid.NewString(), kind: kind}
}

func release(o overlay) OverlayOp {
	return OverlayOp{Action: ActionRelease, ID: o.id, Kind: o.kind}
}

func roundMeters(d float64) int {
	return int(math.Round(d))
}
