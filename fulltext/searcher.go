package fulltext

import (
	"bufio"
	"io"
	"os"
)

// storedDoc is the materialised, still-compressed field set for one
// document, as last written by HandleMap.
type storedDoc struct {
	Collection string
	Fields     map[string]string // field -> compressed value
}

// Searcher is an immutable, point-in-time view of the index built by
// scanning the engine's file once. Queries only ever see a Searcher
// produced by RecreateSearcher after a commit — never a
// partially-written batch.
type Searcher struct {
	docs     map[string]*storedDoc          // docKey -> fields
	postings map[string]map[string]struct{} // collection\x00field\x00value -> set of docKeys
	bloom    *bloom
}

func postingKey(collection, field, value string) string {
	return collection + "\x00" + field + "\x00" + value
}

// buildSearcher scans [start, end) once, keeping the last record seen
// per document key (later file offset wins), then derives the posting
// lists from the surviving documents.
func buildSearcher(reader *os.File, start, end int64, bloomFilter *bloom) (*Searcher, error) {
	if end < start {
		end = start
	}
	section := io.NewSectionReader(reader, start, end-start)
	scanner := bufio.NewScanner(section)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	latest := make(map[string]*docRecord)
	for scanner.Scan() {
		ln := scanner.Bytes()
		if !valid(ln) {
			continue
		}
		cp := make([]byte, len(ln))
		copy(cp, ln)
		rec, err := decodeRecord(cp)
		if err != nil {
			continue // skip torn/corrupt lines rather than fail the whole rebuild
		}
		latest[rec.Doc] = rec // later file offset overwrites earlier, so last write wins
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	s := &Searcher{
		docs:     make(map[string]*storedDoc),
		postings: make(map[string]map[string]struct{}),
		bloom:    bloomFilter,
	}

	for doc, rec := range latest {
		if rec.Type == TypeTombstone {
			continue
		}
		sd := &storedDoc{Collection: rec.Coll, Fields: rec.Fields}
		s.docs[doc] = sd
		for field, compressed := range rec.Fields {
			value, err := decompressValue(compressed)
			if err != nil {
				continue
			}
			key := postingKey(rec.Coll, field, string(value))
			set, ok := s.postings[key]
			if !ok {
				set = make(map[string]struct{})
				s.postings[key] = set
			}
			set[doc] = struct{}{}
			if bloomFilter != nil {
				bloomFilter.Add(key)
			}
		}
	}

	return s, nil
}

// rebuild scans the engine's current file contents and installs a fresh
// Searcher. Called once at Open and again whenever RecreateSearcher runs.
func (e *Engine) rebuild() error {
	s, err := buildSearcher(e.reader, HeaderSize, fileSize(e.reader), newBloom())
	if err != nil {
		return err
	}
	e.searcher.Store(s)
	return nil
}

// RecreateSearcher is called by the indexing loop exactly once after a
// batch commits any writes. Readers opened before this call continue to
// see the prior Searcher; the swap is atomic so in-flight reads are
// never torn.
func (e *Engine) RecreateSearcher() error {
	if e.state.Load() == stateClosed {
		return ErrClosed
	}
	return e.rebuild()
}

// currentSearcher returns the Searcher a newly-opened Reader should use.
func (e *Engine) currentSearcher() *Searcher {
	return e.searcher.Load()
}

// EntriesCount returns the number of live (non-tombstoned) documents
// visible in the current Searcher.
func (e *Engine) EntriesCount() int {
	return len(e.currentSearcher().docs)
}
