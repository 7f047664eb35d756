// Package source turns local extract files into bounded batches of
// validated records. All three scanners share the same pull contract:
// Scan/Batch until Scan returns false, then Err for the structural error
// and Stats for row accounting. Malformed rows are skipped and counted;
// only structural problems (missing file, unreadable archive) abort a scan.
package source

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/geo"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/pcode"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/record"
)

// CodePointScanner reads the coordinate source: a ZIP of headerless
// fixed-column CSV files, one per postcode area. Members are processed in
// sorted name order so runs are reproducible.
type CodePointScanner struct {
	zr        *zip.ReadCloser
	members   []*zip.File
	batchSize int

	fileIdx int
	rc      io.ReadCloser
	reader  *csv.Reader
	line    int

	batch   []record.Coordinate
	err     error
	done    bool
	total   int
	skipped int
}

// OpenCodePoint opens the archive and prepares a scanner. Structural
// problems (missing file, corrupt ZIP) are reported here as ParseErrors.
func OpenCodePoint(path string, batchSize int) (*CodePointScanner, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &fault.ParseError{Source: "codepoint", Detail: "file not found: " + path, Err: err}
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &fault.ParseError{Source: "codepoint", Detail: "corrupt archive", Err: err}
	}

	var members []*zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".csv") && !strings.HasPrefix(f.Name, "__") && !strings.Contains(f.Name, "/Doc/") {
			members = append(members, f)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	if batchSize <= 0 {
		batchSize = 1
	}
	return &CodePointScanner{zr: zr, members: members, batchSize: batchSize}, nil
}

// Scan advances to the next batch of records.
func (s *CodePointScanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}

	batch := make([]record.Coordinate, 0, s.batchSize)
	for len(batch) < s.batchSize {
		row, err := s.nextRow()
		if err == io.EOF {
			s.done = true
			log.Printf("coordinate parse complete: total=%d skipped=%d", s.total, s.skipped)
			break
		}
		if err != nil {
			// Structural failure: the partial batch is discarded, batches
			// already handed out stay with the consumer.
			s.err = err
			s.done = true
			return false
		}

		rec, ok := s.buildRecord(row)
		if !ok {
			s.skipped++
			continue
		}
		batch = append(batch, rec)
	}

	s.batch = batch
	return len(batch) > 0
}

// Batch returns the batch read by the last successful Scan.
func (s *CodePointScanner) Batch() []record.Coordinate { return s.batch }

// Err returns the structural error that stopped the scan, if any.
func (s *CodePointScanner) Err() error { return s.err }

// Stats returns rows seen and rows skipped so far.
func (s *CodePointScanner) Stats() (total, skipped int) { return s.total, s.skipped }

// Close releases the archive.
func (s *CodePointScanner) Close() error {
	if s.rc != nil {
		s.rc.Close()
		s.rc = nil
	}
	if s.zr != nil {
		err := s.zr.Close()
		s.zr = nil
		return err
	}
	return nil
}

// nextRow returns the next CSV row across archive members, or io.EOF once
// every member is exhausted. Rows the CSV layer cannot parse are counted
// as skipped and passed over.
func (s *CodePointScanner) nextRow() ([]string, error) {
	for {
		if s.reader == nil {
			if s.fileIdx >= len(s.members) {
				return nil, io.EOF
			}
			member := s.members[s.fileIdx]
			s.fileIdx++

			rc, err := member.Open()
			if err != nil {
				return nil, &fault.ParseError{Source: "codepoint", Detail: "cannot read archive member " + member.Name, Err: err}
			}
			s.rc = rc
			reader := csv.NewReader(rc)
			reader.FieldsPerRecord = -1
			reader.LazyQuotes = true
			s.reader = reader
			s.line = 0
		}

		row, err := s.reader.Read()
		if err == io.EOF {
			s.rc.Close()
			s.rc = nil
			s.reader = nil
			continue
		}
		s.line++

		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			s.total++
			s.skipped++
			continue
		}
		if err != nil {
			return nil, &fault.ParseError{Source: "codepoint", Line: s.line, Detail: "read failure", Err: err}
		}

		s.total++
		return row, nil
	}
}

// buildRecord validates one fixed-column row:
// postcode, positional_quality, eastings, northings, country_code, ...
func (s *CodePointScanner) buildRecord(row []string) (record.Coordinate, bool) {
	if len(row) < 5 {
		return record.Coordinate{}, false
	}

	raw := strings.TrimSpace(row[0])
	norm := pcode.Normalise(raw)
	if norm == "" {
		return record.Coordinate{}, false
	}

	easting, err := strconv.Atoi(strings.TrimSpace(row[2]))
	if err != nil {
		return record.Coordinate{}, false
	}
	northing, err := strconv.Atoi(strings.TrimSpace(row[3]))
	if err != nil {
		return record.Coordinate{}, false
	}

	quality := 0
	if v := strings.TrimSpace(row[1]); v != "" {
		quality, err = strconv.Atoi(v)
		if err != nil {
			return record.Coordinate{}, false
		}
	}

	lat, lon := geo.OSGB36ToWGS84(float64(easting), float64(northing))

	return record.Coordinate{
		Postcode:          raw,
		PostcodeNorm:      norm,
		Easting:           easting,
		Northing:          northing,
		Latitude:          lat,
		Longitude:         lon,
		PositionalQuality: quality,
		CountryCode:       strings.TrimSpace(row[4]),
	}, true
}
