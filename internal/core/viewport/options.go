// Package viewport implements the map's viewport pin pipeline: it turns
// viewport changes into pins-in-bounds fetches, merges server pins with
// local temporary markers and produces the ordered marker set a renderer
// draws.
package viewport

const (
	// DefaultDraftProximityMeters suppresses local draft markers this close
	// to a server point or draft.
	DefaultDraftProximityMeters = 800.0
	// DefaultSearchResetMeters clears search markers once the map center
	// moves this far from the last search location.
	DefaultSearchResetMeters = 300.0
	// DefaultViewportEpsilon is the summed absolute corner difference below
	// which two viewports are considered equal.
	DefaultViewportEpsilon = 1e-6
)

// Options are the pipeline thresholds. Zero fields take the defaults.
type Options struct {
	DraftProximityMeters float64
	SearchResetMeters    float64
	ViewportEpsilon      float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		DraftProximityMeters: DefaultDraftProximityMeters,
		SearchResetMeters:    DefaultSearchResetMeters,
		ViewportEpsilon:      DefaultViewportEpsilon,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DraftProximityMeters <= 0 {
		o.DraftProximityMeters = d.DraftProximityMeters
	}
	if o.SearchResetMeters <= 0 {
		o.SearchResetMeters = d.SearchResetMeters
	}
	if o.ViewportEpsilon <= 0 {
		o.ViewportEpsilon = d.ViewportEpsilon
	}
	return o
}
