package fulltext

// Term is a single equality condition over one field's value within one
// collection. Query results are the intersection of every Term's posting
// set (AND semantics — callers compose OR/NOT logic above this layer;
// the engine itself is purely a posting-set intersector).
type Term struct {
	Collection string
	Field      string
	Value      string
}

// Reader is a read handle bound to a single Searcher snapshot, taken at
// OpenReader time. It never observes a RecreateSearcher that happens
// after it was opened.
type Reader struct {
	engine   *Engine
	searcher *Searcher
}

// OpenReader acquires shared access to the engine and freezes the
// current Searcher for the lifetime of the Reader.
func (e *Engine) OpenReader() (*Reader, error) {
	if err := e.blockRead(); err != nil {
		return nil, err
	}
	return &Reader{engine: e, searcher: e.currentSearcher()}, nil
}

// Close releases the engine back to other readers/writers.
func (r *Reader) Close() error {
	r.engine.unblockRead()
	return nil
}

// EntriesCount returns the number of live documents in this Reader's
// frozen Searcher snapshot.
func (r *Reader) EntriesCount() int {
	return len(r.searcher.docs)
}

// Query intersects the posting sets of every term and invokes retrieve
// for each surviving document key, in no particular order. It stops
// early if cancel reports true between documents, or once total results
// have been retrieved (when max > 0).
func (r *Reader) Query(terms []Term, max int, cancel func() bool, retrieve func(docKey string) error) (int, error) {
	if len(terms) == 0 {
		return 0, nil
	}

	var candidates map[string]struct{}
	for i, t := range terms {
		key := postingKey(t.Collection, t.Field, t.Value)
		if r.searcher.bloom != nil && !r.searcher.bloom.Contains(key) {
			return 0, nil // definitely absent, short-circuit the whole AND
		}
		set := r.searcher.postings[key]
		if i == 0 {
			candidates = make(map[string]struct{}, len(set))
			for doc := range set {
				candidates[doc] = struct{}{}
			}
			continue
		}
		for doc := range candidates {
			if _, ok := set[doc]; !ok {
				delete(candidates, doc)
			}
		}
		if len(candidates) == 0 {
			return 0, nil
		}
	}

	count := 0
	for doc := range candidates {
		if cancel != nil && cancel() {
			return count, nil
		}
		if _, live := r.searcher.docs[doc]; !live {
			continue
		}
		if err := retrieve(doc); err != nil {
			return count, err
		}
		count++
		if max > 0 && count >= max {
			break
		}
	}
	return count, nil
}
