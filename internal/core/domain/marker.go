package domain

// MarkerSource tags where a marker came from.
type MarkerSource string

const (
	SourcePin   MarkerSource = "pin"
	SourceDraft MarkerSource = "draft"
)

// Marker is the unified on-map representation handed to the renderer.
type Marker struct {
	ID         string       `json:"id"`
	Position   LatLng       `json:"position"`
	Name       string       `json:"name,omitempty"`
	Title      string       `json:"title,omitempty"`
	Address    string       `json:"address,omitempty"`
	Kind       string       `json:"kind,omitempty"`
	Source     MarkerSource `json:"source,omitempty"`
	PinDraftID string       `json:"pinDraftId,omitempty"`
	PosKey     string       `json:"posKey,omitempty"`
	IsNew      *bool        `json:"isNew,omitempty"`
	Temp       bool         `json:"temp,omitempty"`
}

// DraftOrigin records which interaction created a local marker.
type DraftOrigin string

const (
	OriginSearch DraftOrigin = "search"
	OriginMenu   DraftOrigin = "menu"
)

// LocalDraftMarker is a temporary marker created client-side before the
// backend confirms a real pin.
type LocalDraftMarker struct {
	ID       string      `json:"id"`
	Position LatLng      `json:"position"`
	Title    string      `json:"title,omitempty"`
	Address  string      `json:"address,omitempty"`
	Kind     string      `json:"kind,omitempty"`
	Origin   DraftOrigin `json:"origin,omitempty"`
}

// MergeMeta groups marker ids that share a rounded position.
type MergeMeta struct {
	Groups map[string][]string `json:"groups"`
}

// Frame is one rendered state of a map session.
type Frame struct {
	Seq      uint64     `json:"seq"`
	Markers  []Marker   `json:"markers"`
	Meta     MergeMeta  `json:"meta"`
	HiddenID string     `json:"hiddenId,omitempty"`
	Loading  bool       `json:"loading"`
	Error    string     `json:"error,omitempty"`
	Bounds   *GeoBounds `json:"bounds,omitempty"`
}
