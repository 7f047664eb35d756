package source

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	bolt "go.etcd.io/bbolt"
)

// nodeIndex maps element IDs to locations during the geographic extract's
// two-pass parse.
type nodeIndex interface {
	Put(id int64, lat, lon float64) error
	Get(id int64) (lat, lon float64, ok bool, err error)
	Close() error
}

func openNodeIndex(mode, dir string) (nodeIndex, error) {
	switch mode {
	case "memory":
		return &memoryNodeIndex{locs: make(map[int64][2]float64)}, nil
	case "", "sparse-file":
		return newBoltNodeIndex(dir)
	default:
		return nil, fmt.Errorf("unknown node index mode %q", mode)
	}
}

// memoryNodeIndex keeps every node location in RAM. Fast, but a national
// extract needs several gigabytes.
type memoryNodeIndex struct {
	locs map[int64][2]float64
}

func (m *memoryNodeIndex) Put(id int64, lat, lon float64) error {
	m.locs[id] = [2]float64{lat, lon}
	return nil
}

func (m *memoryNodeIndex) Get(id int64) (float64, float64, bool, error) {
	loc, ok := m.locs[id]
	if !ok {
		return 0, 0, false, nil
	}
	return loc[0], loc[1], true, nil
}

func (m *memoryNodeIndex) Close() error {
	m.locs = nil
	return nil
}

// boltNodeIndex spills node locations to a temporary bolt file. Writes are
// buffered and flushed in bulk transactions; the file is removed on Close.
type boltNodeIndex struct {
	db      *bolt.DB
	path    string
	pending map[int64][2]float64
}

var nodeBucket = []byte("nodes")

// boltFlushEvery balances transaction overhead against buffer memory.
const boltFlushEvery = 200_000

func newBoltNodeIndex(dir string) (*boltNodeIndex, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "node-index-*.bolt")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()

	db, err := bolt.Open(path, 0o600, &bolt.Options{NoSync: true})
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nodeBucket)
		return err
	}); err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}

	return &boltNodeIndex{
		db:      db,
		path:    path,
		pending: make(map[int64][2]float64, boltFlushEvery),
	}, nil
}

func (b *boltNodeIndex) Put(id int64, lat, lon float64) error {
	b.pending[id] = [2]float64{lat, lon}
	if len(b.pending) >= boltFlushEvery {
		return b.flush()
	}
	return nil
}

func (b *boltNodeIndex) Get(id int64) (float64, float64, bool, error) {
	if loc, ok := b.pending[id]; ok {
		return loc[0], loc[1], true, nil
	}

	var (
		lat, lon float64
		found    bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(nodeBucket).Get(nodeKey(id))
		if v == nil {
			return nil
		}
		lat = math.Float64frombits(binary.BigEndian.Uint64(v[:8]))
		lon = math.Float64frombits(binary.BigEndian.Uint64(v[8:16]))
		found = true
		return nil
	})
	return lat, lon, found, err
}

func (b *boltNodeIndex) Close() error {
	err := b.db.Close()
	os.Remove(b.path)
	return err
}

func (b *boltNodeIndex) flush() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(nodeBucket)
		for id, loc := range b.pending {
			var v [16]byte
			binary.BigEndian.PutUint64(v[:8], math.Float64bits(loc[0]))
			binary.BigEndian.PutUint64(v[8:], math.Float64bits(loc[1]))
			if err := bkt.Put(nodeKey(id), v[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	clear(b.pending)
	return nil
}

func nodeKey(id int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id))
	return k[:]
}
