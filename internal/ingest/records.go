// Package ingest bulk-loads listing pins and visit drafts from CSV exports.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// Kind is the table a record goes to.
type Kind string

const (
	KindPin   Kind = "pin"
	KindDraft Kind = "draft"
)

// Record is one CSV row. Ref is the caller's stable key; importing the same
// ref twice updates the row.
type Record struct {
	Kind     Kind
	Ref      string
	Position domain.LatLng
	Title    string
	Name     string
	Address  string
	PinKind  string
	IsNew    bool
	IsOld    bool
	State    domain.DraftState // drafts only
	DraftRef string            // pins only: ref of the draft the pin came from
}

// RowError reports a skipped line.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

var requiredColumns = []string{"type", "ref", "lat", "lng"}

// ParseCSV reads records with a header row. Required columns are type, ref,
// lat and lng; title, name, address, pin_kind, is_new, is_old, state and
// draft_ref are optional. Invalid rows are skipped and reported.
func ParseCSV(r io.Reader) ([]Record, []RowError, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", c)
		}
	}

	var (
		records []Record
		skipped []RowError
	)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			skipped = append(skipped, RowError{Line: line, Err: err})
			continue
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			skipped = append(skipped, RowError{Line: line, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func parseRow(row []string, cols map[string]int) (Record, error) {
	rec := Record{
		Kind:     Kind(strings.ToLower(getField(row, cols, "type"))),
		Ref:      getField(row, cols, "ref"),
		Title:    getField(row, cols, "title"),
		Name:     getField(row, cols, "name"),
		Address:  getField(row, cols, "address"),
		PinKind:  getField(row, cols, "pin_kind"),
		DraftRef: getField(row, cols, "draft_ref"),
	}
	if rec.Kind != KindPin && rec.Kind != KindDraft {
		return rec, fmt.Errorf("unknown type %q", rec.Kind)
	}
	if rec.Ref == "" {
		return rec, errors.New("ref is required")
	}

	var err error
	if rec.Position.Lat, err = parseCoord(getField(row, cols, "lat"), 90); err != nil {
		return rec, fmt.Errorf("lat: %w", err)
	}
	if rec.Position.Lng, err = parseCoord(getField(row, cols, "lng"), 180); err != nil {
		return rec, fmt.Errorf("lng: %w", err)
	}

	if rec.IsNew, err = parseBool(getField(row, cols, "is_new")); err != nil {
		return rec, fmt.Errorf("is_new: %w", err)
	}
	if rec.IsOld, err = parseBool(getField(row, cols, "is_old")); err != nil {
		return rec, fmt.Errorf("is_old: %w", err)
	}

	switch rec.Kind {
	case KindPin:
		if rec.PinKind == "" {
			rec.PinKind = domain.DefaultPinKind
		}
	case KindDraft:
		rec.State = domain.DraftState(getField(row, cols, "state"))
		if rec.State == "" {
			rec.State = domain.DraftStateBefore
		}
		if rec.State != domain.DraftStateBefore && rec.State != domain.DraftStateScheduled {
			return rec, fmt.Errorf("unknown state %q", rec.State)
		}
	}
	return rec, nil
}

func parseCoord(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	p := domain.LatLng{Lat: v}
	if !p.Finite() || v < -limit || v > limit {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return v, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		// Strip BOM from first column
		col = strings.TrimPrefix(col, "\xef\xbb\xbf")
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

func getField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
