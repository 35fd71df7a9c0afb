package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DraftState selects which scheduled-visit drafts the backend returns.
// The zero value leaves the choice to the backend.
type DraftState string

const (
	DraftStateBefore    DraftState = "before"
	DraftStateScheduled DraftState = "scheduled"
	DraftStateAll       DraftState = "all"
)

// Valid reports whether s is empty or one of the known states.
func (s DraftState) Valid() bool {
	switch s {
	case "", DraftStateBefore, DraftStateScheduled, DraftStateAll:
		return true
	}
	return false
}

// DefaultPinKind is used when a record carries no pinKind.
const DefaultPinKind = "1room"

// PinFlags are the optional filters of a pins-in-bounds query.
// A nil pointer means the flag is absent from the request.
type PinFlags struct {
	DraftState DraftState `json:"draftState,omitempty"`
	IsNew      *bool      `json:"isNew,omitempty"`
	IsOld      *bool      `json:"isOld,omitempty"`
}

// Equal compares flag values rather than pointers.
func (f PinFlags) Equal(o PinFlags) bool {
	return f.DraftState == o.DraftState && boolPtrEqual(f.IsNew, o.IsNew) && boolPtrEqual(f.IsOld, o.IsOld)
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PinsQuery is a pins-in-bounds request.
type PinsQuery struct {
	Bounds GeoBounds `json:"bounds"`
	PinFlags
}

// PropertyRef is the nested property some backends attach to a pin.
type PropertyRef struct {
	Name  *string `json:"name,omitempty"`
	Title *string `json:"title,omitempty"`
}

// PinRecord is a backend-sourced listing location. Points and drafts share
// the shape and differ only by the dataset they were read from.
type PinRecord struct {
	ID           string       `json:"id"`
	Lat          float64      `json:"lat"`
	Lng          float64      `json:"lng"`
	Title        *string      `json:"title,omitempty"`
	Name         *string      `json:"name,omitempty"`
	DisplayName  *string      `json:"displayName,omitempty"`
	Label        *string      `json:"label,omitempty"`
	PropertyName *string      `json:"propertyName,omitempty"`
	Property     *PropertyRef `json:"property,omitempty"`
	Address      *string      `json:"address,omitempty"`
	PinKind      string       `json:"pinKind,omitempty"`
	DraftID      string       `json:"draftId,omitempty"`
	IsNew        *bool        `json:"isNew,omitempty"`
}

// ServerPoint is an active listing pin.
type ServerPoint = PinRecord

// ServerDraft is a draft or scheduled-visit pin.
type ServerDraft = PinRecord

// Position returns the record's coordinate; it may be non-finite.
func (p PinRecord) Position() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// DisplayLabel resolves the label shown next to a marker:
// title, name, displayName, label, propertyName, property name, property title, id.
func (p PinRecord) DisplayLabel() string {
	candidates := []*string{p.Title, p.Name, p.DisplayName, p.Label, p.PropertyName}
	if p.Property != nil {
		candidates = append(candidates, p.Property.Name, p.Property.Title)
	}
	for _, c := range candidates {
		if c != nil {
			return strings.TrimSpace(*c)
		}
	}
	return strings.TrimSpace(p.ID)
}

type pinRecordWire struct {
	ID           json.RawMessage `json:"id"`
	Lat          json.RawMessage `json:"lat"`
	Y            json.RawMessage `json:"y"`
	Lng          json.RawMessage `json:"lng"`
	X            json.RawMessage `json:"x"`
	Title        *string         `json:"title"`
	Name         *string         `json:"name"`
	DisplayName  *string         `json:"displayName"`
	Label        *string         `json:"label"`
	PropertyName *string         `json:"propertyName"`
	Property     *PropertyRef    `json:"property"`
	AddressLine  *string         `json:"addressLine"`
	Address      *string         `json:"address"`
	PinKind      *string         `json:"pinKind"`
	DraftID      json.RawMessage `json:"draftId"`
	PinDraftID   json.RawMessage `json:"pin_draft_id"`
	IsNew        *bool           `json:"isNew"`
}

// UnmarshalJSON accepts the field aliases used across backend versions:
// lat|y, lng|x, addressLine|address, draftId|pin_draft_id, and numeric or
// string ids. Missing coordinates decode to NaN.
func (p *PinRecord) UnmarshalJSON(data []byte) error {
	var w pinRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode pin: %w", err)
	}

	*p = PinRecord{
		ID:           rawString(w.ID),
		Lat:          rawNumber(firstRaw(w.Lat, w.Y)),
		Lng:          rawNumber(firstRaw(w.Lng, w.X)),
		Title:        w.Title,
		Name:         w.Name,
		DisplayName:  w.DisplayName,
		Label:        w.Label,
		PropertyName: w.PropertyName,
		Property:     w.Property,
		Address:      w.AddressLine,
		IsNew:        w.IsNew,
		DraftID:      rawString(firstRaw(w.DraftID, w.PinDraftID)),
	}
	if p.Address == nil {
		p.Address = w.Address
	}
	if w.PinKind != nil {
		p.PinKind = *w.PinKind
	}
	return nil
}

// MarshalJSON writes the canonical field names. Non-finite coordinates are
// emitted as null because JSON has no NaN.
func (p PinRecord) MarshalJSON() ([]byte, error) {
	type canonical PinRecord
	out := struct {
		canonical
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}{canonical: canonical(p), Lat: finitePtr(p.Lat), Lng: finitePtr(p.Lng)}
	return json.Marshal(out)
}

func isNullRaw(r json.RawMessage) bool {
	t := bytes.TrimSpace(r)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func firstRaw(rs ...json.RawMessage) json.RawMessage {
	for _, r := range rs {
		if !isNullRaw(r) {
			return r
		}
	}
	return nil
}

func rawString(r json.RawMessage) string {
	if isNullRaw(r) {
		return ""
	}
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(r, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(r))
}

func rawNumber(r json.RawMessage) float64 {
	if isNullRaw(r) {
		return math.NaN()
	}
	var f float64
	if err := json.Unmarshal(r, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return math.NaN()
}

// PinsResult is the response of a pins-in-bounds query.
type PinsResult struct {
	Points []ServerPoint `json:"points"`
	Drafts []ServerDraft `json:"drafts"`
}

// Normalized replaces nil slices with empty ones.
func (r PinsResult) Normalized() PinsResult {
	if r.Points == nil {
		r.Points = []ServerPoint{}
	}
	if r.Drafts == nil {
		r.Drafts = []ServerDraft{}
	}
	return r
}
