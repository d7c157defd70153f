// Package docstore defines the document-store contract the index
// package treats as an external collaborator, plus an in-memory
// implementation good enough to drive tests, the demo host, and the
// CLI. A real deployment would bind the index package to its actual
// document database instead.
package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Etag is a 64-bit monotonically increasing sequence number assigned by
// the store to each document write and each tombstone.
type Etag uint64

// Document is one stored document: an opaque key, the collection it
// belongs to, the etag of its last write, and its field values as the
// index's mapper sees them.
type Document struct {
	Key        string
	Collection string
	Etag       Etag
	Fields     map[string]string
}

// Tombstone marks a deleted document. DocEtag is the etag the document
// held at the moment it was deleted — the value StalenessOracle and
// CleanupDeletedDocuments compare against cutoffs.
type Tombstone struct {
	Key        string
	Collection string
	Etag       Etag // the tombstone's own etag
	DocEtag    Etag // the deleted document's last etag
}

// ContextHandle identifies one scoped operation context; Begin assigns
// each Context a fresh UUID. No log line in this repository includes it.
type ContextHandle string

// Context is a scoped handle into the document store, begun from a
// Pool and released back to it. It exposes the read operations the
// index package's workers and staleness/query paths need.
type Context struct {
	Handle ContextHandle
	store  *Store
	ctx    context.Context
}

// Pool yields scoped Contexts with begin/commit/reset — scoped
// acquisition with guaranteed release on all exit paths.
type Pool struct {
	store *Store
}

// NewPool returns a context pool bound to store.
func NewPool(store *Store) *Pool {
	return &Pool{store: store}
}

// Begin opens a new scoped context. The in-memory store has no real
// transaction log, so Begin/Commit/Reset are bookkeeping only — a real
// document database would snapshot a read view here.
func (p *Pool) Begin(ctx context.Context) *Context {
	return &Context{Handle: ContextHandle(uuid.NewString()), store: p.store, ctx: ctx}
}

// Commit ends the scoped context. No-op beyond bookkeeping for the
// in-memory store.
func (c *Context) Commit() error { return nil }

// Reset prepares the context for reuse without releasing it back to
// the pool. No-op for the in-memory store. QueryPath's retry loop does
// not call it: it commits the context and begins a new one.
func (c *Context) Reset() error { return nil }

// GetLastDocumentEtag returns the highest etag among live documents in
// collection, or 0 if the collection is empty.
func (c *Context) GetLastDocumentEtag(collection string) Etag {
	return c.store.lastDocumentEtag(collection)
}

// GetLastTombstoneEtag returns the highest tombstone etag recorded for
// collection, or 0 if none.
func (c *Context) GetLastTombstoneEtag(collection string) Etag {
	return c.store.lastTombstoneEtag(collection)
}

// GetTombstonesWithDocEtagLowerThan iterates, in ascending tombstone-etag
// order, every tombstone in collection whose DocEtag is <= cutoff —
// used by StalenessOracle's cutoff path to count unprocessed tombstones
// below cutoff
func (c *Context) GetTombstonesWithDocEtagLowerThan(collection string, cutoff Etag) []Tombstone {
	return c.store.tombstonesWithDocEtagLowerThan(collection, cutoff)
}

// GetTombstonesWithEtagGreaterThan iterates, in ascending tombstone-etag
// order, every tombstone in collection with (tombstone) etag > since —
// what CleanupDeletedDocuments consumes, starting from
// last_processed_tombstone_etag + 1
func (c *Context) GetTombstonesWithEtagGreaterThan(collection string, since Etag) []Tombstone {
	return c.store.tombstonesWithEtagGreaterThan(collection, since)
}

// GetDocumentsWithEtagGreaterThan iterates, in ascending etag order,
// every live document in collection with etag > since — the source
// MapDocuments consumes, starting from last_mapped_etag + 1.
func (c *Context) GetDocumentsWithEtagGreaterThan(collection string, since Etag) []Document {
	return c.store.documentsWithEtagGreaterThan(collection, since)
}

// Store is an in-memory, collection-partitioned document store. Etags
// are global across all collections, matching a single document
// database assigning one monotonic sequence to every write.
type Store struct {
	mu         sync.RWMutex
	nextEtag   Etag
	documents  map[string]map[string]*Document // collection -> key -> doc
	tombstones map[string][]Tombstone          // collection -> tombstones, append order == etag order
}

// NewStore returns an empty in-memory document store.
func NewStore() *Store {
	return &Store{
		documents:  make(map[string]map[string]*Document),
		tombstones: make(map[string][]Tombstone),
	}
}

// Put writes or overwrites a document, assigning it the next etag.
func (s *Store) Put(collection, key string, fields map[string]string) Etag {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEtag++
	etag := s.nextEtag
	coll := strings.ToLower(collection)
	if s.documents[coll] == nil {
		s.documents[coll] = make(map[string]*Document)
	}
	s.documents[coll][key] = &Document{Key: key, Collection: coll, Etag: etag, Fields: fields}
	return etag
}

// Delete removes a document, assigning a tombstone the next etag and
// recording the document's last etag as the tombstone's DocEtag.
func (s *Store) Delete(collection, key string) (Etag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := strings.ToLower(collection)
	doc, ok := s.documents[coll][key]
	if !ok {
		return 0, false
	}
	delete(s.documents[coll], key)
	s.nextEtag++
	tomb := Tombstone{Key: key, Collection: coll, Etag: s.nextEtag, DocEtag: doc.Etag}
	s.tombstones[coll] = append(s.tombstones[coll], tomb)
	return tomb.Etag, true
}

func (s *Store) lastDocumentEtag(collection string) Etag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max Etag
	for _, doc := range s.documents[strings.ToLower(collection)] {
		if doc.Etag > max {
			max = doc.Etag
		}
	}
	return max
}

func (s *Store) lastTombstoneEtag(collection string) Etag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tombs := s.tombstones[strings.ToLower(collection)]
	if len(tombs) == 0 {
		return 0
	}
	return tombs[len(tombs)-1].Etag
}

func (s *Store) tombstonesWithDocEtagLowerThan(collection string, cutoff Etag) []Tombstone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Tombstone
	for _, t := range s.tombstones[strings.ToLower(collection)] {
		if t.DocEtag <= cutoff {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Etag < out[j].Etag })
	return out
}

func (s *Store) tombstonesWithEtagGreaterThan(collection string, since Etag) []Tombstone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Tombstone
	for _, t := range s.tombstones[strings.ToLower(collection)] {
		if t.Etag > since {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Etag < out[j].Etag })
	return out
}

func (s *Store) documentsWithEtagGreaterThan(collection string, since Etag) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, doc := range s.documents[strings.ToLower(collection)] {
		if doc.Etag > since {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Etag < out[j].Etag })
	return out
}
