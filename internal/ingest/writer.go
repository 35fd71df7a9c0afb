package ingest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DefaultBatchSize is the number of upserts sent per round trip.
const DefaultBatchSize = 500

// BatchSender is satisfied by *pgxpool.Pool and pgx.Tx.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Stats counts written rows.
type Stats struct {
	Pins   int
	Drafts int
}

const upsertDraft = `
	INSERT INTO pin_drafts (external_ref, title, address_line, location, state)
	VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6)
	ON CONFLICT (external_ref) DO UPDATE
	SET title = EXCLUDED.title, address_line = EXCLUDED.address_line,
	    location = EXCLUDED.location, state = EXCLUDED.state`

const upsertPin = `
	INSERT INTO pins (external_ref, title, name, address_line, pin_kind, location, is_new, is_old, draft_id)
	VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography, $8, $9,
	        (SELECT id FROM pin_drafts WHERE external_ref = $10))
	ON CONFLICT (external_ref) DO UPDATE
	SET title = EXCLUDED.title, name = EXCLUDED.name, address_line = EXCLUDED.address_line,
	    pin_kind = EXCLUDED.pin_kind, location = EXCLUDED.location,
	    is_new = EXCLUDED.is_new, is_old = EXCLUDED.is_old, draft_id = EXCLUDED.draft_id,
	    updated_at = now(), deleted_at = NULL`

// Write upserts records in batches. Drafts are written before pins so a
// pin's draft_ref resolves within the same import.
func Write(ctx context.Context, db BatchSender, records []Record, batchSize int) (Stats, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var stats Stats
	for _, kind := range []Kind{KindDraft, KindPin} {
		batch := &pgx.Batch{}
		count := 0
		for _, r := range records {
			if r.Kind != kind {
				continue
			}
			queue(batch, r)
			count++
			if count >= batchSize {
				if err := flushBatch(ctx, db, batch, count); err != nil {
					return stats, fmt.Errorf("%s batch: %w", kind, err)
				}
				stats.add(kind, count)
				batch = &pgx.Batch{}
				count = 0
			}
		}
		if count > 0 {
			if err := flushBatch(ctx, db, batch, count); err != nil {
				return stats, fmt.Errorf("%s batch: %w", kind, err)
			}
			stats.add(kind, count)
		}
	}
	return stats, nil
}

func queue(b *pgx.Batch, r Record) {
	switch r.Kind {
	case KindDraft:
		b.Queue(upsertDraft, r.Ref, nilEmpty(r.Title), nilEmpty(r.Address),
			r.Position.Lng, r.Position.Lat, string(r.State))
	case KindPin:
		b.Queue(upsertPin, r.Ref, nilEmpty(r.Title), nilEmpty(r.Name), nilEmpty(r.Address), r.PinKind,
			r.Position.Lng, r.Position.Lat, r.IsNew, r.IsOld, nilEmpty(r.DraftRef))
	}
}

func (s *Stats) add(kind Kind, n int) {
	if kind == KindPin {
		s.Pins += n
	} else {
		s.Drafts += n
	}
}

func nilEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func flushBatch(ctx context.Context, db BatchSender, batch *pgx.Batch, count int) error {
	br := db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < count; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return nil
}
