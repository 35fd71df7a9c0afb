package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// maxPinsPerQuery caps a single viewport query.
const maxPinsPerQuery = 2000

// Bounds filters compare the geography column itself with && so the GIST
// indexes on location serve them. The geography box of the envelope is
// slightly larger than the planar rectangle, so ST_Intersects rechecks the
// index candidates against the exact lat/lng box.
const (
	pointsInBoundsSQL = `
		SELECT p.id::text, ST_Y(p.location::geometry), ST_X(p.location::geometry),
		       p.title, p.name, p.address_line, p.pin_kind,
		       COALESCE(p.draft_id::text, ''), p.is_new
		FROM pins p
		WHERE p.deleted_at IS NULL
		  AND p.location && ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography
		  AND ST_Intersects(p.location::geometry, ST_MakeEnvelope($1, $2, $3, $4, 4326))
		  AND ($5::boolean IS NULL OR p.is_new = $5)
		  AND ($6::boolean IS NULL OR p.is_old = $6)
		ORDER BY p.id
		LIMIT $7`

	draftsInBoundsSQL = `
		SELECT d.id::text, ST_Y(d.location::geometry), ST_X(d.location::geometry),
		       d.title, d.address_line
		FROM pin_drafts d
		WHERE d.location && ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography
		  AND ST_Intersects(d.location::geometry, ST_MakeEnvelope($1, $2, $3, $4, 4326))
		  AND ($5::text IS NULL OR d.state = $5)
		  AND NOT EXISTS (SELECT 1 FROM pins p WHERE p.draft_id = d.id AND p.deleted_at IS NULL)
		ORDER BY d.id
		LIMIT $6`

	getPointSQL = `
		SELECT p.id::text, ST_Y(p.location::geometry), ST_X(p.location::geometry),
		       p.title, p.name, p.address_line, p.pin_kind,
		       COALESCE(p.draft_id::text, ''), p.is_new
		FROM pins p
		WHERE p.id = $1 AND p.deleted_at IS NULL`
)

// PinRepo implements ports.PinRepository over PostGIS.
type PinRepo struct {
	db *DB
}

// NewPinRepo creates a new PinRepo.
func NewPinRepo(db *DB) *PinRepo {
	return &PinRepo{db: db}
}

// PointsInBounds returns live listing pins inside the query rectangle.
func (r *PinRepo) PointsInBounds(ctx context.Context, q domain.PinsQuery) ([]domain.ServerPoint, error) {
	rows, err := r.db.Pool.Query(ctx, pointsInBoundsSQL,
		q.Bounds.SW.Lng, q.Bounds.SW.Lat, q.Bounds.NE.Lng, q.Bounds.NE.Lat, q.IsNew, q.IsOld, maxPinsPerQuery)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var points []domain.ServerPoint
	for rows.Next() {
		var p domain.ServerPoint
		var isNew bool
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &p.Title, &p.Name, &p.Address, &p.PinKind, &p.DraftID, &isNew); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.IsNew = &isNew
		points = append(points, p)
	}
	return points, rows.Err()
}

// DraftsInBounds returns visit drafts inside the query rectangle. An empty
// or "all" draft state returns every draft.
func (r *PinRepo) DraftsInBounds(ctx context.Context, q domain.PinsQuery) ([]domain.ServerDraft, error) {
	var state *string
	if q.DraftState != "" && q.DraftState != domain.DraftStateAll {
		s := string(q.DraftState)
		state = &s
	}

	rows, err := r.db.Pool.Query(ctx, draftsInBoundsSQL,
		q.Bounds.SW.Lng, q.Bounds.SW.Lat, q.Bounds.NE.Lng, q.Bounds.NE.Lat, state, maxPinsPerQuery)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []domain.ServerDraft
	for rows.Next() {
		var d domain.ServerDraft
		if err := rows.Scan(&d.ID, &d.Lat, &d.Lng, &d.Title, &d.Address); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// parsePinID converts a path id to the bigint key. Ids that cannot be a
// pin key are reported as not found.
func parsePinID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("pin %q: %w", id, domain.ErrNotFound)
	}
	return n, nil
}

// GetPoint returns a single live pin.
func (r *PinRepo) GetPoint(ctx context.Context, id string) (*domain.ServerPoint, error) {
	key, err := parsePinID(id)
	if err != nil {
		return nil, err
	}
	var p domain.ServerPoint
	var isNew bool
	err = r.db.Pool.QueryRow(ctx, getPointSQL, key).
		Scan(&p.ID, &p.Lat, &p.Lng, &p.Title, &p.Name, &p.Address, &p.PinKind, &p.DraftID, &isNew)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pin %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pin: %w", err)
	}
	p.IsNew = &isNew
	return &p, nil
}
