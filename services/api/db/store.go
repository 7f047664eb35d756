package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Postcode represents one postcode row with its admin codes.
type Postcode struct {
	Postcode           string   `json:"postcode"`
	PostcodeNoSpace    string   `json:"postcode_no_space"`
	Latitude           *float64 `json:"latitude,omitempty"`
	Longitude          *float64 `json:"longitude,omitempty"`
	Easting            *int     `json:"easting,omitempty"`
	Northing           *int     `json:"northing,omitempty"`
	CountryCode        *string  `json:"country_code,omitempty"`
	RegionCode         *string  `json:"region_code,omitempty"`
	LocalAuthority     *string  `json:"local_authority,omitempty"`
	ParliamentaryConst *string  `json:"parliamentary_const,omitempty"`
	WardCode           *string  `json:"ward_code,omitempty"`
	ParishCode         *string  `json:"parish_code,omitempty"`
	PositionalQuality  *int     `json:"positional_quality,omitempty"`
	IsTerminated       bool     `json:"is_terminated"`
	DateIntroduced     *string  `json:"date_introduced,omitempty"`
	DateTerminated     *string  `json:"date_terminated,omitempty"`
	Source             *string  `json:"source,omitempty"`
}

const postcodeColumns = `postcode, postcode_no_space, latitude, longitude, easting, northing,
country_code, region_code, local_authority, parliamentary_const, ward_code, parish_code,
positional_quality, is_terminated, date_introduced, date_terminated, source`

func scanPostcode(row pgx.Row) (Postcode, error) {
	var p Postcode
	err := row.Scan(
		&p.Postcode, &p.PostcodeNoSpace, &p.Latitude, &p.Longitude, &p.Easting, &p.Northing,
		&p.CountryCode, &p.RegionCode, &p.LocalAuthority, &p.ParliamentaryConst, &p.WardCode, &p.ParishCode,
		&p.PositionalQuality, &p.IsTerminated, &p.DateIntroduced, &p.DateTerminated, &p.Source,
	)
	return p, err
}

// GetPostcode looks up one postcode by its space-free form.
// The second return value is false when no such postcode exists.
func (s *Store) GetPostcode(ctx context.Context, noSpace string) (Postcode, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postcodeColumns+` FROM postcodes WHERE postcode_no_space = $1`, noSpace)
	p, err := scanPostcode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Postcode{}, false, nil
	}
	if err != nil {
		return Postcode{}, false, err
	}
	return p, true, nil
}

// Autocomplete returns postcodes whose space-free form starts with prefix.
func (s *Store) Autocomplete(ctx context.Context, prefix string, limit int) ([]Postcode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postcodeColumns+` FROM postcodes
WHERE postcode_no_space LIKE $1 || '%'
ORDER BY postcode
LIMIT $2`, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	postcodes := make([]Postcode, 0)
	for rows.Next() {
		p, err := scanPostcode(rows)
		if err != nil {
			return nil, err
		}
		postcodes = append(postcodes, p)
	}
	return postcodes, rows.Err()
}

// NearbyPostcode is a postcode with its distance from a query origin.
type NearbyPostcode struct {
	Postcode  string  `json:"postcode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	DistanceM float64 `json:"distance_m"`
}

// Nearest returns the postcodes closest to the given one, by geographic
// distance, excluding the origin itself.
func (s *Store) Nearest(ctx context.Context, noSpace string, limit int) ([]NearbyPostcode, error) {
	rows, err := s.pool.Query(ctx, `WITH origin AS (
    SELECT location FROM postcodes WHERE postcode_no_space = $1 AND location IS NOT NULL
)
SELECT p.postcode, p.latitude, p.longitude,
       ST_Distance(p.location::geography, o.location::geography) AS distance_m
FROM postcodes p, origin o
WHERE p.location IS NOT NULL AND p.postcode_no_space <> $1
ORDER BY p.location <-> o.location
LIMIT $2`, noSpace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nearby := make([]NearbyPostcode, 0)
	for rows.Next() {
		var n NearbyPostcode
		if err := rows.Scan(&n.Postcode, &n.Latitude, &n.Longitude, &n.DistanceM); err != nil {
			return nil, err
		}
		nearby = append(nearby, n)
	}
	return nearby, rows.Err()
}

// Address represents one merged address row.
type Address struct {
	ID           int64    `json:"id"`
	PostcodeNorm *string  `json:"postcode,omitempty"`
	HouseNumber  *string  `json:"house_number,omitempty"`
	HouseName    *string  `json:"house_name,omitempty"`
	Flat         *string  `json:"flat,omitempty"`
	Street       *string  `json:"street,omitempty"`
	Suburb       *string  `json:"suburb,omitempty"`
	City         *string  `json:"city,omitempty"`
	County       *string  `json:"county,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	IsComplete   bool     `json:"is_complete"`
}

// AddressQuery filters the address search. Empty fields are ignored;
// at least one must be set.
type AddressQuery struct {
	PostcodeNoSpace string
	Street          string
	City            string
	Limit           int
}

// SearchAddresses returns addresses matching the query, best confidence
// first.
func (s *Store) SearchAddresses(ctx context.Context, q AddressQuery) ([]Address, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if q.PostcodeNoSpace != "" {
		args = append(args, q.PostcodeNoSpace)
		where = append(where, fmt.Sprintf("REPLACE(postcode_norm, ' ', '') = $%d", len(args)))
	}
	if q.Street != "" {
		args = append(args, "%"+q.Street+"%")
		where = append(where, fmt.Sprintf("street ILIKE $%d", len(args)))
	}
	if q.City != "" {
		args = append(args, "%"+q.City+"%")
		where = append(where, fmt.Sprintf("city ILIKE $%d", len(args)))
	}
	if len(where) == 0 {
		return nil, errors.New("empty address query")
	}

	args = append(args, q.Limit)
	sql := fmt.Sprintf(`SELECT id, postcode_norm, house_number, house_name, flat, street, suburb, city, county,
latitude, longitude, confidence, is_complete
FROM addresses
WHERE %s
ORDER BY confidence DESC NULLS LAST, id
LIMIT $%d`, strings.Join(where, " AND "), len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := make([]Address, 0)
	for rows.Next() {
		var a Address
		if err := rows.Scan(
			&a.ID, &a.PostcodeNorm, &a.HouseNumber, &a.HouseName, &a.Flat, &a.Street, &a.Suburb, &a.City, &a.County,
			&a.Latitude, &a.Longitude, &a.Confidence, &a.IsComplete,
		); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// SourceStatus is one ingestion tracking row as exposed by the API.
type SourceStatus struct {
	SourceName  string     `json:"source_name"`
	Status      string     `json:"status"`
	FileHash    *string    `json:"file_hash,omitempty"`
	RecordCount *int       `json:"record_count,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IngestionStatus summarises the store for the status endpoint.
type IngestionStatus struct {
	Postcodes int64          `json:"postcodes"`
	Addresses int64          `json:"addresses"`
	Sources   []SourceStatus `json:"sources"`
}

// Status reports record counts and per-source ingestion state.
func (s *Store) Status(ctx context.Context) (IngestionStatus, error) {
	var st IngestionStatus
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM postcodes), (SELECT COUNT(*) FROM addresses)`).
		Scan(&st.Postcodes, &st.Addresses)
	if err != nil {
		return IngestionStatus{}, err
	}

	rows, err := s.pool.Query(ctx, `SELECT source_name, status, file_hash, record_count, started_at, completed_at
FROM data_sources
ORDER BY source_name`)
	if err != nil {
		return IngestionStatus{}, err
	}
	defer rows.Close()

	st.Sources = make([]SourceStatus, 0)
	for rows.Next() {
		var src SourceStatus
		if err := rows.Scan(&src.SourceName, &src.Status, &src.FileHash, &src.RecordCount, &src.StartedAt, &src.CompletedAt); err != nil {
			return IngestionStatus{}, err
		}
		st.Sources = append(st.Sources, src)
	}
	return st, rows.Err()
}
