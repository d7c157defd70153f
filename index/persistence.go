package index

import (
	"github.com/jpl-au/indexcore/fulltext"
)

// IndexPersistence binds the full-text writer/reader lifecycle to the
// index. It opens writers eagerly; the lazy-writer semantics the
// IndexingLoop relies on (a batch that maps or deletes nothing never
// opens a writer and never triggers RecreateSearcher) come from the
// loop's lazyWriter, which calls OpenWriter only on the first write.
type IndexPersistence struct {
	engine *fulltext.Engine
}

// NewIndexPersistence binds to an already-open full-text engine. The
// engine is opened once at index initialization time with the same
// StorageDir and memory-only setting as the storage environment, but as
// a separate file: its writes are committed after the storage
// transaction commits, not as part of it.
func NewIndexPersistence(engine *fulltext.Engine) *IndexPersistence {
	return &IndexPersistence{engine: engine}
}

// OpenWriter opens a write handle immediately, taking the engine's
// exclusive writer gate. The caller must Commit or Discard it exactly
// once.
func (p *IndexPersistence) OpenWriter() (*fulltext.Writer, error) {
	return p.engine.OpenWriter()
}

// OpenReader returns a read handle bound to the current Searcher
// snapshot.
func (p *IndexPersistence) OpenReader() (*fulltext.Reader, error) {
	return p.engine.OpenReader()
}

// RecreateSearcher is called by the IndexingLoop exactly once after a
// batch commits any write. Readers opened before this call keep
// observing the pre-batch Searcher.
func (p *IndexPersistence) RecreateSearcher() error {
	return p.engine.RecreateSearcher()
}

// EntriesCount reports the number of live documents in the current
// Searcher snapshot.
func (p *IndexPersistence) EntriesCount() int {
	return p.engine.EntriesCount()
}

// Compact reorganises the backing file down to its minimal live form,
// dropping superseded records and fully-tombstoned documents. Not part
// of any batch's critical path — callers decide their own cadence.
func (p *IndexPersistence) Compact() error {
	return p.engine.Compact()
}

// Close releases the underlying full-text engine, part of an index's
// dispose().
func (p *IndexPersistence) Close() error {
	return p.engine.Close()
}
