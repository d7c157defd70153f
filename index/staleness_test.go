package index

import (
	"context"
	"testing"

	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/storage"
)

func TestStalenessOracleNoCutoffFreshWhenFullyMapped(t *testing.T) {
	env := openTestEnv(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)
	docCtx := pool.Begin(context.Background())

	store.Put("users", "u1", map[string]string{"n": "a"})
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLastMappedEtag(tx, "users", 1)
	})

	oracle := NewStalenessOracle(IndexDefinition{Collections: []CollectionName{"users"}})
	var stale bool
	env.View(func(tx *storage.Tx) error {
		stale = oracle.IsStale(docCtx, tx, nil)
		return nil
	})
	if stale {
		t.Fatalf("expected not stale when last_doc_etag == last_mapped_etag")
	}
}

func TestStalenessOracleNoCutoffStaleWithUnmappedDocument(t *testing.T) {
	env := openTestEnv(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)
	docCtx := pool.Begin(context.Background())

	store.Put("users", "u1", map[string]string{"n": "a"})
	store.Put("users", "u2", map[string]string{"n": "b"})
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLastMappedEtag(tx, "users", 1)
	})

	oracle := NewStalenessOracle(IndexDefinition{Collections: []CollectionName{"users"}})
	var stale bool
	env.View(func(tx *storage.Tx) error {
		stale = oracle.IsStale(docCtx, tx, nil)
		return nil
	})
	if !stale {
		t.Fatalf("expected stale when a document is unmapped")
	}
}

func TestStalenessOracleNoCutoffStaleWithUnprocessedTombstone(t *testing.T) {
	env := openTestEnv(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)
	docCtx := pool.Begin(context.Background())

	e := store.Put("users", "u1", map[string]string{"n": "a"})
	store.Delete("users", "u1")
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLastMappedEtag(tx, "users", Etag(e))
	})

	oracle := NewStalenessOracle(IndexDefinition{Collections: []CollectionName{"users"}})
	var stale bool
	env.View(func(tx *storage.Tx) error {
		stale = oracle.IsStale(docCtx, tx, nil)
		return nil
	})
	if !stale {
		t.Fatalf("expected stale when a tombstone is unprocessed")
	}
}

func TestStalenessOracleWithCutoffIgnoresDocumentsPastCutoff(t *testing.T) {
	env := openTestEnv(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)
	docCtx := pool.Begin(context.Background())

	e1 := store.Put("users", "u1", map[string]string{"n": "a"})
	store.Put("users", "u2", map[string]string{"n": "b"}) // written after the cutoff
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLastMappedEtag(tx, "users", Etag(e1))
	})

	oracle := NewStalenessOracle(IndexDefinition{Collections: []CollectionName{"users"}})
	cutoff := Etag(e1)
	var stale bool
	env.View(func(tx *storage.Tx) error {
		stale = oracle.IsStale(docCtx, tx, &cutoff)
		return nil
	})
	if stale {
		t.Fatalf("expected not stale: the unmapped document is past the cutoff")
	}
}

func TestStalenessOracleWithCutoffCountsTombstonesAtOrBelowCutoff(t *testing.T) {
	env := openTestEnv(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)
	docCtx := pool.Begin(context.Background())

	e1 := store.Put("users", "u1", map[string]string{"n": "a"})
	store.Delete("users", "u1")
	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLastMappedEtag(tx, "users", Etag(e1))
	})

	oracle := NewStalenessOracle(IndexDefinition{Collections: []CollectionName{"users"}})
	cutoff := Etag(e1)
	var stale bool
	env.View(func(tx *storage.Tx) error {
		stale = oracle.IsStale(docCtx, tx, &cutoff)
		return nil
	})
	if !stale {
		t.Fatalf("expected stale: tombstone's DocEtag is at the cutoff and unprocessed")
	}
}
