package storage

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"
)

// Tx wraps a bbolt transaction, read-only or read-write depending on
// whether it came from Env.View or Env.Update. The index package's
// IndexStorage never begins its own transaction — it is always handed
// one of these by the IndexingLoop or QueryPath.
type Tx struct {
	btx *bolt.Tx
}

// Writable reports whether this transaction can mutate the environment.
func (tx *Tx) Writable() bool {
	return tx.btx.Writable()
}

// MetaGet reads a raw value from the metadata bucket, or nil if absent.
func (tx *Tx) MetaGet(key string) []byte {
	b := tx.btx.Bucket(bucketMeta)
	v := b.Get([]byte(key))
	if v == nil {
		return nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

// MetaPut writes a raw value into the metadata bucket.
func (tx *Tx) MetaPut(key string, value []byte) error {
	b := tx.btx.Bucket(bucketMeta)
	return b.Put([]byte(key), value)
}

// MetaDelete removes a key from the metadata bucket.
func (tx *Tx) MetaDelete(key string) error {
	b := tx.btx.Bucket(bucketMeta)
	return b.Delete([]byte(key))
}

// LastMappedEtag reads the highest document etag mapped for collection,
// defaulting to 0 when no entry exists yet.
func (tx *Tx) LastMappedEtag(collection string) uint64 {
	return getEtag(tx.btx.Bucket(bucketLastMappedEtags), collection)
}

// SetLastMappedEtag records the highest document etag mapped for
// collection. Must be non-decreasing across the index's lifetime;
// callers are responsible for only ever advancing it.
func (tx *Tx) SetLastMappedEtag(collection string, etag uint64) error {
	return putEtag(tx.btx.Bucket(bucketLastMappedEtags), collection, etag)
}

// LastProcessedTombstoneEtag reads the highest tombstone etag processed
// for collection, defaulting to 0.
func (tx *Tx) LastProcessedTombstoneEtag(collection string) uint64 {
	return getEtag(tx.btx.Bucket(bucketLastTombEtags), collection)
}

// SetLastProcessedTombstoneEtag records the highest tombstone etag
// processed for collection.
func (tx *Tx) SetLastProcessedTombstoneEtag(collection string, etag uint64) error {
	return putEtag(tx.btx.Bucket(bucketLastTombEtags), collection, etag)
}

// EachLastMappedEtag iterates the last-mapped-etag bucket in collection
// order, used to publish the per-collection map to the tombstone
// cleaner.
func (tx *Tx) EachLastMappedEtag(fn func(collection string, etag uint64)) {
	eachEtag(tx.btx.Bucket(bucketLastMappedEtags), fn)
}

// EachLastProcessedTombstoneEtag iterates the last-tombstone-etag
// bucket in collection order.
func (tx *Tx) EachLastProcessedTombstoneEtag(fn func(collection string, etag uint64)) {
	eachEtag(tx.btx.Bucket(bucketLastTombEtags), fn)
}

func getEtag(b *bolt.Bucket, collection string) uint64 {
	v := b.Get([]byte(collection))
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func putEtag(b *bolt.Bucket, collection string, etag uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, etag)
	return b.Put([]byte(collection), buf)
}

func eachEtag(b *bolt.Bucket, fn func(collection string, etag uint64)) {
	_ = b.ForEach(func(k, v []byte) error {
		fn(string(k), binary.BigEndian.Uint64(v))
		return nil
	})
}
