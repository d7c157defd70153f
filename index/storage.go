package index

import (
	json "github.com/goccy/go-json"

	"github.com/jpl-au/indexcore/storage"
)

// Storage keys within the metadata bucket: a metadata tree keyed by
// fixed tags for priority, lock mode, stats, and the errors ring.
const (
	metaKeyPriority = "priority"
	metaKeyLockMode = "lock_mode"
	metaKeyStats    = "stats"
	metaKeyErrors   = "errors_ring"
)

// ErrorsRingSize bounds how many RecordedError entries read_errors
// returns: up to the last K errors, K fixed.
var ErrorsRingSize = 50

// IndexStorage is the persistent per-index metadata surface: priority,
// lock mode, per-collection etags, stats, and the bounded error ring.
// It never begins its own transaction — every method takes a
// *storage.Tx the caller already opened.
type IndexStorage struct{}

// ReadPriority returns the persisted priority, defaulting to Normal if
// never written.
func (is IndexStorage) ReadPriority(tx *storage.Tx) Priority {
	v := tx.MetaGet(metaKeyPriority)
	if v == nil {
		return PriorityNormal
	}
	return Priority(v[0])
}

// WritePriority persists p. Must be called inside a write transaction.
func (is IndexStorage) WritePriority(tx *storage.Tx, p Priority) error {
	return tx.MetaPut(metaKeyPriority, []byte{byte(p)})
}

// ReadLock returns the persisted lock mode, defaulting to LockUnlock.
func (is IndexStorage) ReadLock(tx *storage.Tx) LockMode {
	v := tx.MetaGet(metaKeyLockMode)
	if v == nil {
		return LockUnlock
	}
	return LockMode(v[0])
}

// WriteLock persists m. Must be called inside a write transaction.
func (is IndexStorage) WriteLock(tx *storage.Tx, m LockMode) error {
	return tx.MetaPut(metaKeyLockMode, []byte{byte(m)})
}

// ReadLastMappedEtag returns the highest document etag mapped for
// collection, 0 if none.
func (is IndexStorage) ReadLastMappedEtag(tx *storage.Tx, collection CollectionName) Etag {
	return Etag(tx.LastMappedEtag(collection.Normalize()))
}

// WriteLastMappedEtag records the highest document etag mapped for
// collection. Callers must only ever advance this value.
func (is IndexStorage) WriteLastMappedEtag(tx *storage.Tx, collection CollectionName, etag Etag) error {
	return tx.SetLastMappedEtag(collection.Normalize(), uint64(etag))
}

// ReadLastProcessedTombstoneEtag returns the highest tombstone etag
// processed for collection, 0 if none.
func (is IndexStorage) ReadLastProcessedTombstoneEtag(tx *storage.Tx, collection CollectionName) Etag {
	return Etag(tx.LastProcessedTombstoneEtag(collection.Normalize()))
}

// WriteLastProcessedTombstoneEtag records the highest tombstone etag
// processed for collection.
func (is IndexStorage) WriteLastProcessedTombstoneEtag(tx *storage.Tx, collection CollectionName, etag Etag) error {
	return tx.SetLastProcessedTombstoneEtag(collection.Normalize(), uint64(etag))
}

// EachLastMappedEtag iterates the last-mapped-etag map, used to publish
// progress to the tombstone cleaner
func (is IndexStorage) EachLastMappedEtag(tx *storage.Tx, fn func(collection CollectionName, etag Etag)) {
	tx.EachLastMappedEtag(func(c string, e uint64) { fn(CollectionName(c), Etag(e)) })
}

// EachLastProcessedTombstoneEtag iterates the last-processed-tombstone
// map.
func (is IndexStorage) EachLastProcessedTombstoneEtag(tx *storage.Tx, fn func(collection CollectionName, etag Etag)) {
	tx.EachLastProcessedTombstoneEtag(func(c string, e uint64) { fn(CollectionName(c), Etag(e)) })
}

// UpdateStats appends a batch's counters into the persisted rolling
// stats: bumps batch/map/delete/analyzer/write-error counts and records
// last-indexing-time = batchStart + duration
func (is IndexStorage) UpdateStats(tx *storage.Tx, batchStartMillis int64, durationMillis int64, batch BatchStats) error {
	s := is.ReadStats(tx)
	s.BatchCount++
	s.MapCount += batch.MapCount
	s.DeleteCount += batch.DeleteCount
	s.AnalyzerErrors += batch.AnalyzerErrors
	s.WriteErrorCount += batch.WriteErrors
	s.LastIndexingTime = batchStartMillis + durationMillis
	return is.writeStats(tx, s)
}

// ReadStats returns a snapshot of the persisted rolling counters.
func (is IndexStorage) ReadStats(tx *storage.Tx) Stats {
	v := tx.MetaGet(metaKeyStats)
	if v == nil {
		return Stats{}
	}
	var s Stats
	if err := json.Unmarshal(v, &s); err != nil {
		return Stats{}
	}
	return s
}

// RecordLastQueryingTime persists the monotonically-updated
// last-querying-time into stats, distinct from the batch-driven
// UpdateStats call so a query does not need a write transaction
// shared with the indexing loop.
func (is IndexStorage) RecordLastQueryingTime(tx *storage.Tx, millis int64) error {
	s := is.ReadStats(tx)
	if millis > s.LastQueryingTime {
		s.LastQueryingTime = millis
	}
	return is.writeStats(tx, s)
}

func (is IndexStorage) writeStats(tx *storage.Tx, s Stats) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return tx.MetaPut(metaKeyStats, data)
}

// RecordError appends e to the bounded error ring, dropping the oldest
// entry once the ring exceeds ErrorsRingSize.
func (is IndexStorage) RecordError(tx *storage.Tx, e RecordedError) error {
	errs := is.ReadErrors(tx)
	errs = append(errs, e)
	if len(errs) > ErrorsRingSize {
		errs = errs[len(errs)-ErrorsRingSize:]
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	return tx.MetaPut(metaKeyErrors, data)
}

// ReadErrors returns up to the last ErrorsRingSize recorded errors in
// chronological order.
func (is IndexStorage) ReadErrors(tx *storage.Tx) []RecordedError {
	v := tx.MetaGet(metaKeyErrors)
	if v == nil {
		return nil
	}
	var errs []RecordedError
	if err := json.Unmarshal(v, &errs); err != nil {
		return nil
	}
	return errs
}
