package index

import (
	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/fulltext"
	"github.com/jpl-au/indexcore/storage"
)

// BatchBudget bounds how much one worker consumes per collection per
// batch — a max document count or max bytes, whichever is hit first.
type BatchBudget struct {
	MaxDocs  int
	MaxBytes int
}

// batchWriter is the write side a Worker sees during one batch. It is
// satisfied by *fulltext.Writer and by the loop's lazyWriter, which
// defers opening the real writer until the first HandleMap/HandleDelete
// call actually happens.
type batchWriter interface {
	HandleMap(in fulltext.MapInput) error
	HandleDelete(collection, docKey string) error
}

// Worker is the worker-pipeline contract: execute consumes from the
// document store and writes through the lazy writer, reporting whether
// it stopped because of the batch budget rather than because the
// source was exhausted.
type Worker interface {
	Execute(docCtx *docstore.Context, indexTx *storage.Tx, writer batchWriter, stats *BatchStats, cancel func() bool) (moreAvailable bool, err error)
}

// CleanupDeletedDocuments consumes tombstones per collection, starting
// from last_processed_tombstone_etag + 1, invoking handle_delete for
// each, up to a batch budget. Runs before MapDocuments in the canonical
// map-only ordering
type CleanupDeletedDocuments struct {
	Definition IndexDefinition
	Budget     BatchBudget
}

func (w CleanupDeletedDocuments) Execute(docCtx *docstore.Context, indexTx *storage.Tx, writer batchWriter, stats *BatchStats, cancel func() bool) (bool, error) {
	more := false
	for _, c := range w.Definition.Collections {
		collection := c.Normalize()
		processedThrough := indexStorage.ReadLastProcessedTombstoneEtag(indexTx, c)

		tombs := docCtx.GetTombstonesWithEtagGreaterThan(collection, docstore.Etag(processedThrough))
		consumed := 0
		for _, t := range tombs {
			if cancel != nil && cancel() {
				return more, ErrCancelled
			}
			if consumed >= w.Budget.MaxDocs && w.Budget.MaxDocs > 0 {
				more = true
				break
			}

			if err := writer.HandleDelete(collection, t.Key); err != nil {
				return more, &WriteError{Kind: WriteErrorPersistent, Cause: err}
			}
			processedThrough = Etag(t.Etag)
			stats.DeleteCount++
			consumed++
		}
		if err := indexStorage.WriteLastProcessedTombstoneEtag(indexTx, c, processedThrough); err != nil {
			return more, err
		}
	}
	return more, nil
}

// MapDocuments consumes documents per collection, starting from
// last_mapped_etag + 1, invoking handle_map, up to a batch budget.
type MapDocuments struct {
	Definition IndexDefinition
	Budget     BatchBudget
}

func (w MapDocuments) Execute(docCtx *docstore.Context, indexTx *storage.Tx, writer batchWriter, stats *BatchStats, cancel func() bool) (bool, error) {
	more := false
	for _, c := range w.Definition.Collections {
		collection := c.Normalize()
		lastMapped := indexStorage.ReadLastMappedEtag(indexTx, c)

		docs := docCtx.GetDocumentsWithEtagGreaterThan(collection, docstore.Etag(lastMapped))
		consumed, bytesConsumed := 0, 0
		for _, doc := range docs {
			if cancel != nil && cancel() {
				return more, ErrCancelled
			}
			overDocs := w.Budget.MaxDocs > 0 && consumed >= w.Budget.MaxDocs
			overBytes := w.Budget.MaxBytes > 0 && bytesConsumed >= w.Budget.MaxBytes
			if overDocs || overBytes {
				more = true
				break
			}

			size := fieldsSize(doc.Fields)
			if err := writer.HandleMap(fulltext.MapInput{
				Collection: collection,
				DocKey:     doc.Key,
				Fields:     doc.Fields,
			}); err != nil {
				return more, &WriteError{Kind: WriteErrorPersistent, Cause: err}
			}
			lastMapped = Etag(doc.Etag)
			stats.MapCount++
			consumed++
			bytesConsumed += size
		}
		if err := indexStorage.WriteLastMappedEtag(indexTx, c, lastMapped); err != nil {
			return more, err
		}
	}
	return more, nil
}

func fieldsSize(fields map[string]string) int {
	n := 0
	for k, v := range fields {
		n += len(k) + len(v)
	}
	return n
}
