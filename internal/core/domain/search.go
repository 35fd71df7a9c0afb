package domain

// FilterKey is the active map menu filter.
type FilterKey string

const (
	FilterAll         FilterKey = "all"
	FilterPlannedOnly FilterKey = "plannedOnly"
	FilterNew         FilterKey = "new"
	FilterOld         FilterKey = "old"
)

// FlexID decodes identifiers sent as either JSON strings or numbers.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	*id = FlexID(rawString(data))
	return nil
}

// SearchPin is a listing returned by the filter search.
type SearchPin struct {
	ID          FlexID  `json:"id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Name        *string `json:"name,omitempty"`
	AddressLine *string `json:"addressLine,omitempty"`
	PinKind     string  `json:"pinKind,omitempty"`
	IsNew       *bool   `json:"isNew,omitempty"`
}

// SearchDraft is a scheduled-visit draft returned by the filter search.
type SearchDraft struct {
	ID          FlexID  `json:"id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Title       *string `json:"title,omitempty"`
	AddressLine *string `json:"addressLine,omitempty"`
}

// SearchResult is an active filter search. While one is set it replaces
// the viewport-fetched pins and drafts entirely.
type SearchResult struct {
	Pins   []SearchPin   `json:"pins"`
	Drafts []SearchDraft `json:"drafts"`
}
