package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	BucketDigests = "digests"
	BucketMeta    = "meta"
)

// SchemaVersion is stored in the meta bucket of every database.
const SchemaVersion = "1"

// ErrSchemaMismatch is returned by Open for a database written with a
// different schema version.
var ErrSchemaMismatch = errors.New("unsupported database schema")

type DB struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path and its buckets.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	b, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = b.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketDigests, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return err
			}
		}
		meta := tx.Bucket([]byte(BucketMeta))
		stored := meta.Get([]byte("schema"))
		if stored == nil {
			return meta.Put([]byte("schema"), []byte(SchemaVersion))
		}
		if string(stored) != SchemaVersion {
			return fmt.Errorf("%w: %q, want %q", ErrSchemaMismatch, stored, SchemaVersion)
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	return &DB{db: b}, nil
}

func (d *DB) View(fn func(tx *bolt.Tx) error) error {
	return d.db.View(fn)
}

func (d *DB) Update(fn func(tx *bolt.Tx) error) error {
	return d.db.Update(fn)
}

func (d *DB) Path() string {
	return d.db.Path()
}

func (d *DB) Close() error {
	return d.db.Close()
}
