package source

import (
	"context"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/addressing"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/pcode"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/record"
)

// osmQueueDepth bounds the number of unconsumed batches between the
// producer worker and the consumer. A full queue blocks the producer, an
// empty one blocks the consumer, keeping peak memory independent of either
// side's throughput.
const osmQueueDepth = 4

// OSMOptions tune the geographic-extract scanner.
type OSMOptions struct {
	BatchSize int
	// IndexMode selects the node-location index: "memory" trades RAM for
	// speed, "sparse-file" spills to a temporary bolt file.
	IndexMode string
	// IndexDir is where the sparse-file index lives; defaults to the
	// system temp directory.
	IndexDir string
}

// AddressScanner reads the binary geographic extract on a dedicated
// producer worker and streams address batches through a bounded queue.
// Only elements carrying at least one addr-namespace tag are extracted.
type AddressScanner struct {
	ctx   context.Context
	ch    chan []record.Address
	batch []record.Address

	// Written by the producer before it closes ch; the channel closure
	// orders them before any consumer read.
	err     error
	total   int
	skipped int
}

// OpenOSM verifies the extract exists and starts the producer worker.
func OpenOSM(ctx context.Context, path string, opts OSMOptions) (*AddressScanner, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &fault.ParseError{Source: "osm", Detail: "file not found: " + path, Err: err}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}

	log.Printf("starting geographic extract parse: path=%s index=%s batch_size=%d", path, opts.IndexMode, opts.BatchSize)

	s := &AddressScanner{ctx: ctx, ch: make(chan []record.Address, osmQueueDepth)}
	go s.produce(path, opts)
	return s, nil
}

// Scan blocks until the next batch arrives or the stream ends. Batches
// already queued when the producer hits a fatal error are still delivered;
// the error surfaces from Err only after the last of them.
func (s *AddressScanner) Scan() bool {
	batch, ok := <-s.ch
	if !ok {
		return false
	}
	s.batch = batch
	return true
}

// Batch returns the batch received by the last successful Scan.
func (s *AddressScanner) Batch() []record.Address { return s.batch }

// Err returns the producer's fatal error. Valid once Scan has returned false.
func (s *AddressScanner) Err() error { return s.err }

// Stats returns elements seen and skipped. Valid once Scan has returned false.
func (s *AddressScanner) Stats() (total, skipped int) { return s.total, s.skipped }

// produce runs on the dedicated worker: index node locations, then extract
// addresses. The end-of-stream marker is the channel closing; a fatal error
// is parked in s.err first so it trails all delivered batches.
func (s *AddressScanner) produce(path string, opts OSMOptions) {
	defer close(s.ch)

	idx, err := openNodeIndex(opts.IndexMode, opts.IndexDir)
	if err != nil {
		s.err = &fault.ParseError{Source: "osm", Detail: "node index", Err: err}
		return
	}
	defer idx.Close()

	if err := s.indexNodeLocations(path, idx); err != nil {
		s.err = err
		return
	}
	if err := s.extractAddresses(path, idx, opts.BatchSize); err != nil {
		s.err = err
		return
	}

	log.Printf("geographic extract parse complete: total=%d skipped=%d", s.total, s.skipped)
}

// indexNodeLocations is the first pass: record every node's location so way
// centroids can be resolved in the second pass.
func (s *AddressScanner) indexNodeLocations(path string, idx nodeIndex) error {
	f, err := os.Open(path)
	if err != nil {
		return &fault.ParseError{Source: "osm", Detail: "cannot open extract", Err: err}
	}
	defer f.Close()

	sc := osmpbf.New(s.ctx, f, runtime.GOMAXPROCS(0))
	defer sc.Close()
	sc.SkipWays = true
	sc.SkipRelations = true

	for sc.Scan() {
		n, ok := sc.Object().(*osm.Node)
		if !ok {
			continue
		}
		if err := idx.Put(int64(n.ID), n.Lat, n.Lon); err != nil {
			return &fault.ParseError{Source: "osm", Detail: "node index write", Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return &fault.ParseError{Source: "osm", Detail: "decode failure during node pass", Err: err}
	}
	return nil
}

// extractAddresses is the second pass: emit a record for every node or way
// carrying an addr-namespace tag.
func (s *AddressScanner) extractAddresses(path string, idx nodeIndex, batchSize int) error {
	f, err := os.Open(path)
	if err != nil {
		return &fault.ParseError{Source: "osm", Detail: "cannot open extract", Err: err}
	}
	defer f.Close()

	sc := osmpbf.New(s.ctx, f, runtime.GOMAXPROCS(0))
	defer sc.Close()
	sc.SkipRelations = true

	cur := make([]record.Address, 0, batchSize)
	for sc.Scan() {
		var (
			rec record.Address
			ok  bool
		)
		switch o := sc.Object().(type) {
		case *osm.Node:
			tags := tagMap(o.Tags)
			if !hasAddrTag(tags) {
				continue
			}
			s.total++
			rec, ok = buildAddress(int64(o.ID), "node", o.Lat, o.Lon, tags)
		case *osm.Way:
			tags := tagMap(o.Tags)
			if !hasAddrTag(tags) {
				continue
			}
			s.total++
			lat, lon, found := wayCentroid(o, idx)
			if found {
				rec, ok = buildAddress(int64(o.ID), "way", lat, lon, tags)
			}
		default:
			continue
		}

		if !ok {
			s.skipped++
			continue
		}

		cur = append(cur, rec)
		if len(cur) >= batchSize {
			if !s.emit(cur) {
				return s.ctx.Err()
			}
			cur = make([]record.Address, 0, batchSize)
		}
	}
	if err := sc.Err(); err != nil {
		return &fault.ParseError{Source: "osm", Detail: "decode failure during address pass", Err: err}
	}

	if len(cur) > 0 && !s.emit(cur) {
		return s.ctx.Err()
	}
	return nil
}

// emit blocks until the consumer frees a queue slot. Returns false when the
// context was cancelled instead.
func (s *AddressScanner) emit(batch []record.Address) bool {
	select {
	case s.ch <- batch:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func tagMap(tags osm.Tags) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}

func hasAddrTag(tags map[string]string) bool {
	for k := range tags {
		if strings.HasPrefix(k, "addr:") {
			return true
		}
	}
	return false
}

// wayCentroid averages the locations of the way's member nodes. Nodes
// missing from the index are ignored; at least one must resolve.
func wayCentroid(w *osm.Way, idx nodeIndex) (lat, lon float64, ok bool) {
	var latSum, lonSum float64
	count := 0
	for _, wn := range w.Nodes {
		nlat, nlon, found, err := idx.Get(int64(wn.ID))
		if err != nil || !found {
			continue
		}
		latSum += nlat
		lonSum += nlon
		count++
	}
	if count == 0 {
		return 0, 0, false
	}
	return latSum / float64(count), lonSum / float64(count), true
}

func buildAddress(id int64, elemType string, lat, lon float64, tags map[string]string) (record.Address, bool) {
	rawPostcode := tags["addr:postcode"]
	norm := ""
	if rawPostcode != "" {
		norm = pcode.Normalise(rawPostcode)
	}

	flat := tags["addr:flats"]
	if flat == "" {
		flat = tags["addr:unit"]
	}

	rec, err := record.NewAddress(id, elemType, lat, lon, record.AddressFields{
		HouseNumber:  tags["addr:housenumber"],
		HouseName:    tags["addr:housename"],
		Flat:         flat,
		Street:       addressing.NormaliseStreet(tags["addr:street"]),
		Suburb:       tags["addr:suburb"],
		City:         addressing.NormaliseCity(tags["addr:city"]),
		County:       tags["addr:county"],
		PostcodeRaw:  rawPostcode,
		PostcodeNorm: norm,
	})
	if err != nil {
		return record.Address{}, false
	}
	return rec, true
}
