// Package cache remembers digests of files that were already hashed, keyed
// by absolute path and mode, and valid while size and mtime are unchanged.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/hoangsonww/ed2k/ed2k"
	apperrors "github.com/hoangsonww/ed2k/internal/errors"
	"github.com/hoangsonww/ed2k/internal/persistence"
)

// Entry is the stored record of one hashed file.
type Entry struct {
	Key      string    `json:"-"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Mode     string    `json:"mode"`
	Digest   string    `json:"digest"`
	HashedAt time.Time `json:"hashed_at"`
}

// Matches reports whether the entry still describes a file with info.
func (e Entry) Matches(info os.FileInfo) bool {
	return e.Size == info.Size() && e.ModTime.Equal(info.ModTime())
}

type Store struct {
	db     *persistence.DB
	recent *lru.Cache[string, Entry]
}

// New creates a store on db with an in-memory LRU of lruSize entries.
func New(db *persistence.DB, lruSize int) (*Store, error) {
	recent, err := lru.New[string, Entry](lruSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &Store{db: db, recent: recent}, nil
}

// Key returns the database key for path hashed in mode. path should be
// absolute.
func Key(path string, mode ed2k.Mode) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(path+"\x00"+mode.String()))
}

// Lookup returns the cached digest of path if it was hashed in mode and the
// file is unchanged since.
func (s *Store) Lookup(path string, info os.FileInfo, mode ed2k.Mode) (ed2k.Digest, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ed2k.Digest{}, false, err
	}
	e, ok, err := s.Get(Key(abs, mode))
	if err != nil || !ok {
		return ed2k.Digest{}, false, err
	}
	// xxhash keys may collide, so the stored path must match too
	if e.Path != abs || e.Mode != mode.String() || !e.Matches(info) {
		return ed2k.Digest{}, false, nil
	}
	d, err := ed2k.ParseDigest(e.Digest)
	if err != nil {
		return ed2k.Digest{}, false, apperrors.NewCacheCorruptedError(e.Key, err)
	}
	return d, true, nil
}

// Put records the digest of path.
func (s *Store) Put(path string, info os.FileInfo, mode ed2k.Mode, d ed2k.Digest) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	e := Entry{
		Key:      Key(abs, mode),
		Path:     abs,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Mode:     mode.String(),
		Digest:   d.String(),
		HashedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(persistence.BucketDigests)).Put([]byte(e.Key), data)
	})
	if err != nil {
		return err
	}
	s.recent.Add(e.Key, e)
	return nil
}

// Get returns the entry stored under key.
func (s *Store) Get(key string) (Entry, bool, error) {
	if e, ok := s.recent.Get(key); ok {
		return e, true, nil
	}

	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(persistence.BucketDigests)).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return Entry{}, false, err
	}

	e, err := decode(key, raw)
	if err != nil {
		return Entry{}, false, err
	}
	s.recent.Add(key, e)
	return e, true, nil
}

// Delete removes the entry stored under key.
func (s *Store) Delete(key string) error {
	s.recent.Remove(key)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(persistence.BucketDigests)).Delete([]byte(key))
	})
}

// List returns all entries. Entries that cannot be decoded are returned
// with only Key set.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(persistence.BucketDigests)).ForEach(func(k, v []byte) error {
			e, err := decode(string(k), v)
			if err != nil {
				e = Entry{Key: string(k)}
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(persistence.BucketDigests)).Stats().KeyN
		return nil
	})
	return count, err
}

// Clear removes all entries and returns how many there were.
func (s *Store) Clear() (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(persistence.BucketDigests)).Stats().KeyN
		if err := tx.DeleteBucket([]byte(persistence.BucketDigests)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(persistence.BucketDigests))
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recent.Purge()
	return count, nil
}

func decode(key string, raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, apperrors.NewCacheCorruptedError(key, err)
	}
	e.Key = key
	return e, nil
}
