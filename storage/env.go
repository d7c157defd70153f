// Package storage wraps go.etcd.io/bbolt as the transactional key-value
// environment backing one index's persisted metadata: priority, lock
// mode, per-collection etags, stats and the error ring. bbolt gives the
// index package real begin/commit snapshot isolation, which is what
// lets the workers' cursor updates and the other metadata updates commit
// atomically as one storage transaction. The full-text entries a batch
// writes are kept outside this environment.
package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the only schema version this package understands.
// Opening an environment stamped with any other version is a fatal
// error.
const SchemaVersion = 1

var (
	bucketMeta            = []byte("meta")
	bucketLastMappedEtags = []byte("last_mapped_etags")
	bucketLastTombEtags   = []byte("last_tombstone_etags")

	keySchemaVersion = []byte("schema_version")
)

// Env is one index's storage environment: a single bbolt database file
// (or, in memory-only mode, a file in a private temp directory removed
// on Close) holding the metadata, last-mapped-etag and
// last-tombstone-etag buckets described in the index package's external
// interfaces section.
type Env struct {
	db      *bolt.DB
	dir     string // temp dir to remove on Close, set only in memory-only mode
	memOnly bool
}

// Open opens or creates the environment at dir/name. memOnly creates the
// database in a private temp directory that Close removes, giving the
// "fresh state on next Open" semantics an in-memory index needs (S6).
func Open(dir, name string, memOnly bool) (*Env, error) {
	var tmpDir string
	if memOnly {
		var err error
		tmpDir, err = os.MkdirTemp("", "indexcore-storage-*")
		if err != nil {
			return nil, err
		}
		dir = tmpDir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		if tmpDir != "" {
			os.RemoveAll(tmpDir)
		}
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, name), 0o600, nil)
	if err != nil {
		if tmpDir != "" {
			os.RemoveAll(tmpDir)
		}
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	e := &Env{db: db, dir: tmpDir, memOnly: memOnly}

	if err := e.init(); err != nil {
		db.Close()
		if tmpDir != "" {
			os.RemoveAll(tmpDir)
		}
		return nil, err
	}

	return e, nil
}

func (e *Env) init() error {
	return e.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketLastMappedEtags); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketLastTombEtags); err != nil {
			return err
		}

		existing := meta.Get(keySchemaVersion)
		if existing == nil {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, SchemaVersion)
			return meta.Put(keySchemaVersion, buf)
		}
		version := binary.BigEndian.Uint64(existing)
		if version != SchemaVersion {
			return fmt.Errorf("storage: schema version %d, expected %d: %w", version, SchemaVersion, ErrSchemaMismatch)
		}
		return nil
	})
}

// Close closes the environment and, in memory-only mode, removes the
// backing temp directory.
func (e *Env) Close() error {
	err := e.db.Close()
	if e.memOnly && e.dir != "" {
		os.RemoveAll(e.dir)
	}
	return err
}

// View runs fn inside a read-only transaction.
func (e *Env) View(fn func(*Tx) error) error {
	return e.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// Update runs fn inside a read-write transaction. fn's return value
// controls commit vs rollback: a non-nil error rolls the whole
// transaction back, giving an all-or-nothing batch.
func (e *Env) Update(fn func(*Tx) error) error {
	return e.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}
