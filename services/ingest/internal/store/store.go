// Package store is the pgx-backed persistence layer for the pipeline:
// idempotent batch upserts keyed on each entity's natural key, the bulk
// merge operations, and source-run tracking. Schema creation is owned
// elsewhere; this package only reads and writes the agreed tables.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/pcode"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/record"
)

// Store wraps a pgx pool with the pipeline's database operations.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a Store to the given database.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &fault.DatabaseError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &fault.DatabaseError{Op: "ping", Err: err}
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const upsertCoordinateSQL = `INSERT INTO postcodes
    (postcode, postcode_no_space, latitude, longitude, location, easting, northing, positional_quality, country_code, source)
VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($4, $3), 4326), $5, $6, $7, $8, 'codepoint')
ON CONFLICT (postcode) DO UPDATE
SET latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    location = EXCLUDED.location,
    easting = EXCLUDED.easting,
    northing = EXCLUDED.northing,
    positional_quality = EXCLUDED.positional_quality,
    country_code = EXCLUDED.country_code,
    source = 'codepoint'`

// UpsertCoordinatePostcodes applies one coordinate batch, keyed on the
// normalised postcode. Re-running the same batch is a no-op update.
func (s *Store) UpsertCoordinatePostcodes(ctx context.Context, records []record.Coordinate) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertCoordinateSQL,
			r.PostcodeNorm, pcode.NoSpace(r.PostcodeNorm),
			r.Latitude, r.Longitude,
			r.Easting, r.Northing,
			r.PositionalQuality, r.CountryCode)
	}
	return s.sendBatch(ctx, batch, len(records))
}

const upsertAdminSQL = `INSERT INTO postcodes
    (postcode, postcode_no_space, country_code, region_code, local_authority, parliamentary_const, ward_code, parish_code, date_introduced, date_terminated, is_terminated, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'nspl')
ON CONFLICT (postcode) DO UPDATE
SET country_code = EXCLUDED.country_code,
    region_code = EXCLUDED.region_code,
    local_authority = EXCLUDED.local_authority,
    parliamentary_const = EXCLUDED.parliamentary_const,
    ward_code = EXCLUDED.ward_code,
    parish_code = EXCLUDED.parish_code,
    date_introduced = EXCLUDED.date_introduced,
    date_terminated = EXCLUDED.date_terminated,
    is_terminated = EXCLUDED.is_terminated,
    source = COALESCE(postcodes.source, '') || '+nspl'`

// UpsertAdminPostcodes merges one admin-lookup batch into postcodes, keyed
// on the normalised postcode. Codes not seen by the coordinate pass are
// inserted so terminated postcodes are represented too.
func (s *Store) UpsertAdminPostcodes(ctx context.Context, records []record.Admin) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertAdminSQL,
			r.PostcodeNorm, pcode.NoSpace(r.PostcodeNorm),
			r.CountryCode, r.RegionCode, r.LocalAuthority,
			r.ParliamentaryConst, r.WardCode, r.ParishCode,
			r.DateIntroduced, r.DateTerminated, r.IsTerminated)
	}
	return s.sendBatch(ctx, batch, len(records))
}

const insertAddressSQL = `INSERT INTO addresses
    (osm_id, osm_type, house_number, house_name, flat, street, suburb, city, county, postcode_raw, postcode_norm, latitude, longitude)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (osm_id, osm_type) DO NOTHING`

// InsertAddresses applies one address batch, keyed on the source-native
// (osm_id, osm_type) pair. Existing rows are left untouched so merge
// results survive a re-run.
func (s *Store) InsertAddresses(ctx context.Context, records []record.Address) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertAddressSQL,
			r.OSMID, r.OSMType,
			r.HouseNumber, r.HouseName, r.Flat,
			r.Street, r.Suburb, r.City, r.County,
			r.PostcodeRaw, r.PostcodeNorm,
			r.Latitude, r.Longitude)
	}
	return s.sendBatch(ctx, batch, len(records))
}

// sendBatch executes queued statements as one implicit transaction and sums
// the affected-row counts.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) (int, error) {
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	affected := 0
	for i := 0; i < n; i++ {
		tag, err := results.Exec()
		if err != nil {
			return affected, err
		}
		affected += int(tag.RowsAffected())
	}
	return affected, nil
}

// BackfillAddressLocations fills the PostGIS point for addresses loaded
// since the last run.
func (s *Store) BackfillAddressLocations(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE addresses
SET location = ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)
WHERE location IS NULL AND latitude IS NOT NULL`)
	if err != nil {
		return 0, &fault.DatabaseError{Op: "backfill locations", Err: err}
	}
	return tag.RowsAffected(), nil
}
