package source

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/pcode"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/record"
)

// Logical field -> header resolution. Releases suffix column names with a
// year code (ctry25cd, lad25cd, ...), so the exact legacy name is tried
// first and then a prefix match.
var adminColumns = []struct {
	field    string
	prefixes []string
	fallback string
}{
	{"country_code", []string{"ctry"}, "ctry"},
	{"region_code", []string{"rgn"}, "rgn"},
	{"local_authority", []string{"lad", "laua"}, "laua"},
	{"parliamentary_const", []string{"pcon"}, "pcon"},
	{"ward_code", []string{"wd", "ward"}, "ward"},
	{"parish_code", []string{"parish"}, "parish"},
}

// AdminScanner reads the administrative-lookup source: a ZIP holding one
// header-based CSV among metadata and split-file decoys.
type AdminScanner struct {
	zr        *zip.ReadCloser
	rc        io.ReadCloser
	reader    *csv.Reader
	batchSize int
	line      int

	cols map[string]int // logical field -> column index, -1 when absent

	batch   []record.Admin
	err     error
	done    bool
	total   int
	skipped int
}

// OpenAdmin opens the archive, picks the data CSV and resolves its header.
func OpenAdmin(path string, batchSize int) (*AdminScanner, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &fault.ParseError{Source: "nspl", Detail: "file not found: " + path, Err: err}
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &fault.ParseError{Source: "nspl", Detail: "corrupt archive", Err: err}
	}

	member, err := findAdminCSV(zr)
	if err != nil {
		zr.Close()
		return nil, err
	}
	log.Printf("using admin-lookup CSV: file=%s size=%d", member.Name, member.UncompressedSize64)

	rc, err := member.Open()
	if err != nil {
		zr.Close()
		return nil, &fault.ParseError{Source: "nspl", Detail: "cannot read archive member " + member.Name, Err: err}
	}

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		rc.Close()
		zr.Close()
		return nil, &fault.ParseError{Source: "nspl", Line: 1, Detail: "cannot read header", Err: err}
	}

	cols := resolveAdminColumns(header)
	if cols["pcds"] < 0 {
		rc.Close()
		zr.Close()
		return nil, &fault.ParseError{Source: "nspl", Line: 1, Detail: "no postcode (pcds) column in header"}
	}
	log.Printf("resolved admin-lookup columns: %v", cols)

	if batchSize <= 0 {
		batchSize = 1
	}
	return &AdminScanner{
		zr:        zr,
		rc:        rc,
		reader:    reader,
		batchSize: batchSize,
		line:      1,
		cols:      cols,
	}, nil
}

// findAdminCSV picks the data file: by name heuristic first, otherwise the
// largest CSV in the archive (the main file dwarfs the per-region splits).
func findAdminCSV(zr *zip.ReadCloser) (*zip.File, error) {
	var candidates []*zip.File
	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		if !strings.HasSuffix(lower, ".csv") || strings.HasPrefix(f.Name, "__") {
			continue
		}
		if strings.Contains(lower, "nspl") && !strings.Contains(lower, "metadata") && !strings.Contains(lower, "multi_csv") {
			candidates = append(candidates, f)
		}
	}

	if len(candidates) == 0 {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, &fault.ParseError{Source: "nspl", Detail: "no CSV found in archive"}
	}

	best := candidates[0]
	for _, f := range candidates[1:] {
		if f.UncompressedSize64 > best.UncompressedSize64 {
			best = f
		}
	}
	return best, nil
}

func resolveAdminColumns(header []string) map[string]int {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	index := func(name string) int {
		for i, h := range lower {
			if h == name {
				return i
			}
		}
		return -1
	}

	cols := map[string]int{
		"pcds":   index("pcds"),
		"dointr": index("dointr"),
		"doterm": index("doterm"),
	}

	for _, c := range adminColumns {
		idx := index(c.fallback)
		if idx < 0 {
			for _, prefix := range c.prefixes {
				for i, h := range lower {
					if strings.HasPrefix(h, prefix) {
						idx = i
						break
					}
				}
				if idx >= 0 {
					break
				}
			}
		}
		cols[c.field] = idx
	}
	return cols
}

// Scan advances to the next batch of records.
func (s *AdminScanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}

	batch := make([]record.Admin, 0, s.batchSize)
	for len(batch) < s.batchSize {
		row, err := s.reader.Read()
		if err == io.EOF {
			s.done = true
			log.Printf("admin-lookup parse complete: total=%d skipped=%d", s.total, s.skipped)
			break
		}
		s.line++

		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			s.total++
			s.skipped++
			continue
		}
		if err != nil {
			s.err = &fault.ParseError{Source: "nspl", Line: s.line, Detail: "read failure", Err: err}
			s.done = true
			return false
		}

		s.total++
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
func (s *AdminScanner) Batch() []record.Admin { return s.batch }

// Err returns the structural error that stopped the scan, if any.
func (s *AdminScanner) Err() error { return s.err }

// Stats returns rows seen and rows skipped so far.
func (s *AdminScanner) Stats() (total, skipped int) { return s.total, s.skipped }

// Close releases the archive.
func (s *AdminScanner) Close() error {
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

func (s *AdminScanner) buildRecord(row []string) (record.Admin, bool) {
	field := func(name string) string {
		idx := s.cols[name]
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	norm := pcode.Normalise(field("pcds"))
	if norm == "" {
		return record.Admin{}, false
	}

	doterm := field("doterm")

	return record.Admin{
		PostcodeNorm:       norm,
		CountryCode:        field("country_code"),
		RegionCode:         nullable(field("region_code")),
		LocalAuthority:     nullable(field("local_authority")),
		ParliamentaryConst: nullable(field("parliamentary_const")),
		WardCode:           nullable(field("ward_code")),
		ParishCode:         nullable(field("parish_code")),
		DateIntroduced:     nullable(field("dointr")),
		DateTerminated:     nullable(doterm),
		IsTerminated:       doterm != "",
	}, true
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
