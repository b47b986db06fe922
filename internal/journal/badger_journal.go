package journal

import (
	"encoding/binary"
	"encoding/json"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
	"github.com/jxskiss/base62"
)

var keyPrefix = []byte("trip:")

// badgerJournal is the BadgerDB implementation of Journal. Keys are
// "trip:<big-endian unix-nanos>:<base62 seq>"; the fixed-width big-endian
// timestamp makes lexicographic key order numeric timestamp order, so Recent
// can iterate in reverse. The sequence suffix keeps same-nanosecond entries
// distinct.
type badgerJournal struct {
	db  *badger.DB
	seq uint64
}

// NewBadgerJournal opens (or creates) a journal at dbPath.
func NewBadgerJournal(dbPath string) (Journal, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging would interleave with ours; errors still surface
	// from every DB operation.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerJournal{db: db}, nil
}

// Append records one transition.
func (j *badgerJournal) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	seq := atomic.AddUint64(&j.seq, 1)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.Time.UnixNano()))

	key := append([]byte{}, keyPrefix...)
	key = append(key, ts[:]...)
	key = append(key, ':')
	key = append(key, base62.FormatInt(int64(seq))...)

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Recent returns up to n entries, newest first.
func (j *badgerJournal) Recent(n int) ([]Entry, error) {
	entries := make([]Entry, 0, n)

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible trip key, then walk backwards.
		seekKey := append(append([]byte{}, keyPrefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(keyPrefix) && len(entries) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the database.
func (j *badgerJournal) Close() error {
	return j.db.Close()
}
