package fulltext

// MapInput is the document handed to HandleMap: the mapped field values
// for one document in one collection.
type MapInput struct {
	Collection string
	DocKey     string
	Fields     map[string]string // field name -> raw value, compressed before storage
}

// Writer is the write handle for one batch. It is not safe for concurrent
// use — the index package's IndexingLoop is its only caller, and holds it
// for the lifetime of exactly one batch.
type Writer struct {
	engine    *Engine
	startTail int64
	committed bool
	wrote     bool
}

// OpenWriter acquires exclusive access to the engine for the duration of
// a batch. The caller must call Commit or Discard exactly once.
func (e *Engine) OpenWriter() (*Writer, error) {
	if err := e.blockWrite(); err != nil {
		return nil, err
	}
	return &Writer{engine: e, startTail: e.tail}, nil
}

// HandleMap stores the current field values for a document, overwriting
// any value previously stored for the same key: an append-then-supersede
// strategy, since a derived, fully-rebuilt index never needs a versioned
// document store.
func (w *Writer) HandleMap(in MapInput) error {
	if w.committed {
		return ErrNoWriter
	}
	compressed := make(map[string]string, len(in.Fields))
	for field, value := range in.Fields {
		compressed[field] = compressValue([]byte(value))
	}
	rec := &docRecord{
		Type:      TypeDoc,
		Doc:       in.DocKey,
		Coll:      in.Collection,
		Timestamp: nowMillis(),
		Fields:    compressed,
	}
	if _, err := w.engine.appendRecord(rec); err != nil {
		return err
	}
	w.wrote = true
	return nil
}

// HandleDelete tombstones a document so it no longer appears in query
// results once RecreateSearcher next runs.
func (w *Writer) HandleDelete(collection, docKey string) error {
	if w.committed {
		return ErrNoWriter
	}
	rec := &docRecord{
		Type:      TypeTombstone,
		Doc:       docKey,
		Coll:      collection,
		Timestamp: nowMillis(),
	}
	if _, err := w.engine.appendRecord(rec); err != nil {
		return err
	}
	w.wrote = true
	return nil
}

// Wrote reports whether any HandleMap/HandleDelete call succeeded, so
// the caller knows whether RecreateSearcher is needed: a batch that
// processes no documents and no tombstones never recreates the
// searcher.
func (w *Writer) Wrote() bool {
	return w.wrote
}

// Commit releases the engine back to other writers/readers. The caller
// is responsible for calling Engine.RecreateSearcher afterwards if Wrote
// is true — Commit itself does not flip the searcher, so readers that
// began before Commit keep their existing, consistent view.
func (w *Writer) Commit() error {
	if w.committed {
		return nil
	}
	w.committed = true
	w.engine.writer.Sync()
	w.engine.unblockWrite()
	return nil
}

// Discard rolls back every record this writer appended and releases the
// engine, used when a batch errors partway through: either every worker's
// writes in the batch land, or none do. RecreateSearcher is never needed
// afterwards, since the file ends up exactly as it was before OpenWriter.
func (w *Writer) Discard() error {
	if w.committed {
		return nil
	}
	w.committed = true
	if w.wrote {
		if err := w.engine.writer.Truncate(w.startTail); err != nil {
			w.engine.unblockWrite()
			return err
		}
		w.engine.tail = w.startTail
		w.engine.writer.Sync()
	}
	w.engine.unblockWrite()
	return nil
}
