package store

import (
	"context"
	"time"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
)

// Source-run states, in lifecycle order.
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusIngesting   = "ingesting"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// SourceRun is one row of the per-source tracking table.
type SourceRun struct {
	SourceName   string
	Status       string
	FileHash     *string
	RecordCount  *int
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}

// SourceUpdate carries the fields a stage wants to record. Nil fields are
// left as they were.
type SourceUpdate struct {
	Status       string
	FileHash     *string
	RecordCount  *int
	ErrorMessage *string
}

// UpdateSourceRun upserts the tracking row for one source. Transitioning
// into "ingesting" stamps started_at; "completed" stamps completed_at.
func (s *Store) UpdateSourceRun(ctx context.Context, name string, upd SourceUpdate) error {
	now := time.Now().UTC()
	var startedAt, completedAt *time.Time
	switch upd.Status {
	case StatusIngesting:
		startedAt = &now
	case StatusCompleted:
		completedAt = &now
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO data_sources
    (source_name, status, file_hash, record_count, error_message, started_at, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
ON CONFLICT (source_name) DO UPDATE
SET status = EXCLUDED.status,
    file_hash = COALESCE(EXCLUDED.file_hash, data_sources.file_hash),
    record_count = COALESCE(EXCLUDED.record_count, data_sources.record_count),
    error_message = COALESCE(EXCLUDED.error_message, data_sources.error_message),
    started_at = COALESCE(EXCLUDED.started_at, data_sources.started_at),
    completed_at = COALESCE(EXCLUDED.completed_at, data_sources.completed_at),
    updated_at = NOW()`,
		name, upd.Status, upd.FileHash, upd.RecordCount, upd.ErrorMessage, startedAt, completedAt)
	if err != nil {
		return &fault.DatabaseError{Op: "update source run", Err: err}
	}
	return nil
}

// ListSourceRuns returns every tracking row, ordered by source name.
func (s *Store) ListSourceRuns(ctx context.Context) ([]SourceRun, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_name, status, file_hash, record_count, started_at, completed_at, error_message
FROM data_sources
ORDER BY source_name`)
	if err != nil {
		return nil, &fault.DatabaseError{Op: "list source runs", Err: err}
	}
	defer rows.Close()

	var runs []SourceRun
	for rows.Next() {
		var r SourceRun
		if err := rows.Scan(&r.SourceName, &r.Status, &r.FileHash, &r.RecordCount, &r.StartedAt, &r.CompletedAt, &r.ErrorMessage); err != nil {
			return nil, &fault.DatabaseError{Op: "scan source run", Err: err}
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &fault.DatabaseError{Op: "list source runs", Err: err}
	}
	return runs, nil
}

// Summary aggregates the ingestion state for status reporting.
type Summary struct {
	Postcodes     int64
	Addresses     int64
	Linked        int64
	Complete      int64
	AvgConfidence float64
}

// Summarize computes record counts, link count, completeness count and the
// average confidence across all addresses.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.pool.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM postcodes),
    (SELECT COUNT(*) FROM addresses),
    (SELECT COUNT(*) FROM addresses WHERE postcode_id IS NOT NULL),
    (SELECT COUNT(*) FROM addresses WHERE is_complete),
    (SELECT COALESCE(AVG(confidence), 0) FROM addresses)`).
		Scan(&sum.Postcodes, &sum.Addresses, &sum.Linked, &sum.Complete, &sum.AvgConfidence)
	if err != nil {
		return Summary{}, &fault.DatabaseError{Op: "summarize", Err: err}
	}
	return sum, nil
}

// TruncatePostcodes empties the postcodes table before a clean reload.
func (s *Store) TruncatePostcodes(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE postcodes CASCADE`); err != nil {
		return &fault.DatabaseError{Op: "truncate postcodes", Err: err}
	}
	return nil
}

// TruncateAddresses empties the addresses table before a clean reload.
func (s *Store) TruncateAddresses(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE addresses CASCADE`); err != nil {
		return &fault.DatabaseError{Op: "truncate addresses", Err: err}
	}
	return nil
}
