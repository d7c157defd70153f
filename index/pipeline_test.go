package index

import (
	"context"
	"testing"

	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/fulltext"
	"github.com/jpl-au/indexcore/storage"
)

func openTestPersistence(t *testing.T) *IndexPersistence {
	t.Helper()
	engine, err := fulltext.Open(t.TempDir(), "test.fulltext", false, fulltext.Config{})
	if err != nil {
		t.Fatalf("fulltext.Open: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return NewIndexPersistence(engine)
}

func TestMapDocumentsMapsNewDocumentsAndAdvancesEtag(t *testing.T) {
	env := openTestEnv(t)
	persistence := openTestPersistence(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)

	store.Put("users", "u1", map[string]string{"name": "alice"})
	store.Put("users", "u2", map[string]string{"name": "bob"})

	worker := MapDocuments{Definition: IndexDefinition{Collections: []CollectionName{"users"}}, Budget: BatchBudget{}}
	docCtx := pool.Begin(context.Background())

	writer, err := persistence.OpenWriter()
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	var stats BatchStats
	var more bool
	err = env.Update(func(tx *storage.Tx) error {
		var werr error
		more, werr = worker.Execute(docCtx, tx, writer, &stats, func() bool { return false })
		return werr
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if more {
		t.Fatalf("expected no more work left with an unbounded budget")
	}
	if stats.MapCount != 2 {
		t.Fatalf("expected 2 mapped documents, got %d", stats.MapCount)
	}
	writer.Commit()

	var lastMapped Etag
	env.View(func(tx *storage.Tx) error {
		lastMapped = indexStorage.ReadLastMappedEtag(tx, "users")
		return nil
	})
	if lastMapped != 2 {
		t.Fatalf("expected last_mapped_etag 2, got %d", lastMapped)
	}
}

func TestMapDocumentsRespectsMaxDocsBudget(t *testing.T) {
	env := openTestEnv(t)
	persistence := openTestPersistence(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)

	for i := 0; i < 5; i++ {
		store.Put("users", string(rune('a'+i)), map[string]string{"n": "x"})
	}

	worker := MapDocuments{Definition: IndexDefinition{Collections: []CollectionName{"users"}}, Budget: BatchBudget{MaxDocs: 2}}
	docCtx := pool.Begin(context.Background())
	writer, err := persistence.OpenWriter()
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	var stats BatchStats
	var more bool
	env.Update(func(tx *storage.Tx) error {
		var werr error
		more, werr = worker.Execute(docCtx, tx, writer, &stats, func() bool { return false })
		return werr
	})
	writer.Commit()

	if !more {
		t.Fatalf("expected moreAvailable=true once the budget is hit")
	}
	if stats.MapCount != 2 {
		t.Fatalf("expected exactly 2 documents mapped under the budget, got %d", stats.MapCount)
	}
}

func TestCleanupDeletedDocumentsConsumesFromLastProcessed(t *testing.T) {
	env := openTestEnv(t)
	persistence := openTestPersistence(t)
	store := docstore.NewStore()
	pool := docstore.NewPool(store)

	store.Put("users", "u1", map[string]string{"n": "a"})
	store.Put("users", "u2", map[string]string{"n": "b"})
	first, _ := store.Delete("users", "u1")
	store.Delete("users", "u2")

	env.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLastProcessedTombstoneEtag(tx, "users", Etag(first))
	})

	worker := CleanupDeletedDocuments{Definition: IndexDefinition{Collections: []CollectionName{"users"}}, Budget: BatchBudget{}}
	docCtx := pool.Begin(context.Background())
	writer, err := persistence.OpenWriter()
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	var stats BatchStats
	env.Update(func(tx *storage.Tx) error {
		_, werr := worker.Execute(docCtx, tx, writer, &stats, func() bool { return false })
		return werr
	})
	writer.Commit()

	if stats.DeleteCount != 1 {
		t.Fatalf("expected only the second tombstone to be consumed, got %d", stats.DeleteCount)
	}

	var processed Etag
	env.View(func(tx *storage.Tx) error {
		processed = indexStorage.ReadLastProcessedTombstoneEtag(tx, "users")
		return nil
	})
	if processed <= Etag(first) {
		t.Fatalf("expected last_processed_tombstone_etag to advance past %d, got %d", first, processed)
	}
}
