package domain

import (
	"encoding/json"
	"math"
)

// LatLng is a WGS 84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Finite reports whether both coordinates are usable numbers.
func (p LatLng) Finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// MarshalJSON writes non-finite coordinates as null.
func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}{finitePtr(p.Lat), finitePtr(p.Lng)})
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// GeoBounds is the southwest/northeast rectangle of a pins query.
type GeoBounds struct {
	SW LatLng `json:"sw"`
	NE LatLng `json:"ne"`
}

// IsZero reports whether the bounds were never set.
func (b GeoBounds) IsZero() bool {
	return b == GeoBounds{}
}

// Valid reports whether the rectangle can be used for a fetch.
func (b GeoBounds) Valid() bool {
	if !b.SW.Finite() || !b.NE.Finite() {
		return false
	}
	return b.SW.Lat < b.NE.Lat && b.SW.Lng != b.NE.Lng
}

// Viewport is the four-corner visible area as emitted by the map engine.
type Viewport struct {
	LeftTop     LatLng `json:"leftTop"`
	RightTop    LatLng `json:"rightTop"`
	LeftBottom  LatLng `json:"leftBottom"`
	RightBottom LatLng `json:"rightBottom"`
}

// IsZero reports whether no corner was provided.
func (v Viewport) IsZero() bool {
	return v == Viewport{}
}

// Center is the midpoint of the left-top and right-bottom corners.
func (v Viewport) Center() LatLng {
	return LatLng{
		Lat: (v.LeftTop.Lat + v.RightBottom.Lat) / 2,
		Lng: (v.LeftTop.Lng + v.RightBottom.Lng) / 2,
	}
}

// Corners returns the corners in a fixed order.
func (v Viewport) Corners() [4]LatLng {
	return [4]LatLng{v.LeftTop, v.RightTop, v.LeftBottom, v.RightBottom}
}
