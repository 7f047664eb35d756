package store

import (
	"context"
	"log"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
)

// LinkAddresses sets the postcode reference for every address whose
// normalised postcode exactly matches a postcode row. Only unlinked rows
// are touched, so a second run affects zero rows.
func (s *Store) LinkAddresses(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE addresses a
SET postcode_id = p.id
FROM postcodes p
WHERE a.postcode_norm = p.postcode
  AND a.postcode_id IS NULL
  AND a.postcode_norm IS NOT NULL`)
	if err != nil {
		return 0, &fault.DatabaseError{Op: "link addresses", Err: err}
	}
	log.Printf("addresses linked: %d", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// ScoreAddresses recomputes every address's confidence score and
// completeness flag. Weights sum to 1.0; completeness requires the link
// itself, a street, and a house number or name.
func (s *Store) ScoreAddresses(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE addresses SET
confidence = (
      CASE WHEN postcode_id IS NOT NULL THEN 0.3 ELSE 0.0 END
    + CASE WHEN street IS NOT NULL AND street <> '' THEN 0.2 ELSE 0.0 END
    + CASE WHEN (house_number IS NOT NULL AND house_number <> '')
            OR (house_name IS NOT NULL AND house_name <> '')
      THEN 0.2 ELSE 0.0 END
    + CASE WHEN city IS NOT NULL AND city <> '' THEN 0.15 ELSE 0.0 END
    + CASE WHEN latitude IS NOT NULL AND longitude IS NOT NULL THEN 0.1 ELSE 0.0 END
    + CASE WHEN suburb IS NOT NULL AND suburb <> '' THEN 0.05 ELSE 0.0 END
),
is_complete = (
    postcode_id IS NOT NULL
    AND street IS NOT NULL AND street <> ''
    AND (
        (house_number IS NOT NULL AND house_number <> '')
        OR (house_name IS NOT NULL AND house_name <> '')
    )
)`)
	if err != nil {
		return 0, &fault.DatabaseError{Op: "score addresses", Err: err}
	}
	log.Printf("confidence scores computed: %d", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// DeduplicateAddresses removes duplicate addresses sharing the same
// (postcode, street, house number, house name) group, keeping the highest
// confidence row and breaking ties on the lower id.
func (s *Store) DeduplicateAddresses(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM addresses a
USING (
    SELECT id, ROW_NUMBER() OVER (
        PARTITION BY postcode_norm,
                     COALESCE(street, ''),
                     COALESCE(house_number, ''),
                     COALESCE(house_name, '')
        ORDER BY confidence DESC NULLS LAST, id ASC
    ) AS rn
    FROM addresses
    WHERE postcode_norm IS NOT NULL
) ranked
WHERE a.id = ranked.id AND ranked.rn > 1`)
	if err != nil {
		return 0, &fault.DatabaseError{Op: "deduplicate addresses", Err: err}
	}
	log.Printf("duplicate addresses removed: %d", tag.RowsAffected())
	return tag.RowsAffected(), nil
}
