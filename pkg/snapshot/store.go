package snapshot

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSnapshot = []byte("snapshot")
	keyIndex       = []byte("index")
	keyState       = []byte("state")
)

// Store is a BoltDB-backed cache holding the single most recent reducer
// snapshot for one node.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the snapshot database under dataDir.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "reducer-snapshot.db")

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshot)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Save overwrites the cached snapshot with state, tagged with the reducer
// index it was taken at.
func (s *Store) Save(index uint64, state []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshot)

		idx := make([]byte, 8)
		binary.BigEndian.PutUint64(idx, index)

		if err := b.Put(keyIndex, idx); err != nil {
			return err
		}
		return b.Put(keyState, state)
	})
}

// Load returns the cached snapshot and the index it was taken at. ok is
// false if no snapshot has ever been saved.
func (s *Store) Load() (index uint64, state []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshot)

		idx := b.Get(keyIndex)
		if idx == nil {
			return nil
		}
		index = binary.BigEndian.Uint64(idx)

		if raw := b.Get(keyState); raw != nil {
			state = append([]byte(nil), raw...)
			ok = true
		}
		return nil
	})
	return index, state, ok, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
