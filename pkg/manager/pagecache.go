package manager

import (
	"encoding/binary"

	"github.com/dgraph-io/badger/v4"
)

// PageCache persists small pieces of manager state that should survive a
// process restart without needing to touch every corpus directory: right
// now, the last known estimated memory size of each corpus, so Info can
// report a size for a NOT_IN_CACHE corpus instead of silently reporting 0.
// Badger is already the teacher's embedded-storage dependency of choice
// for exactly this kind of small persistent key/value sidecar.
type PageCache struct {
	db *badger.DB
}

// OpenPageCache opens (creating if necessary) a badger store at dir.
func OpenPageCache(dir string) (*PageCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &PageCache{db: db}, nil
}

// Close releases the underlying badger store.
func (p *PageCache) Close() error {
	if p == nil {
		return nil
	}
	return p.db.Close()
}

// RecordSize stores the last known estimated memory size for corpus name.
func (p *PageCache) RecordSize(name string, size int64) error {
	if p == nil {
		return nil
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(size))
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("size:"+name), buf)
	})
}

// LastKnownSize returns the last recorded size for name, or (0, false) if
// none was ever recorded.
func (p *PageCache) LastKnownSize(name string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	var size int64
	found := false
	_ = p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("size:" + name))
		if err != nil {
			return nil //nolint:nilerr // key absence is a normal miss, not an error to surface
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				size = int64(binary.BigEndian.Uint64(val))
				found = true
			}
			return nil
		})
	})
	return size, found
}
