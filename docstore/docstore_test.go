package docstore

import (
	"context"
	"testing"
)

func TestPutAssignsIncreasingEtags(t *testing.T) {
	s := NewStore()
	e1 := s.Put("Users", "u1", map[string]string{"name": "alice"})
	e2 := s.Put("Users", "u2", map[string]string{"name": "bob"})
	if e2 <= e1 {
		t.Fatalf("expected e2 > e1, got e1=%d e2=%d", e1, e2)
	}
}

func TestDeleteRecordsTombstoneWithDocEtag(t *testing.T) {
	s := NewStore()
	e1 := s.Put("Users", "u1", map[string]string{"name": "alice"})
	tombEtag, ok := s.Delete("Users", "u1")
	if !ok {
		t.Fatalf("expected delete to succeed")
	}
	if tombEtag <= e1 {
		t.Fatalf("expected tombstone etag > doc etag")
	}

	pool := NewPool(s)
	c := pool.Begin(context.Background())
	tombs := c.GetTombstonesWithDocEtagLowerThan("Users", e1)
	if len(tombs) != 1 || tombs[0].DocEtag != e1 {
		t.Fatalf("expected one tombstone with DocEtag=%d, got %+v", e1, tombs)
	}
}

func TestGetTombstonesWithEtagGreaterThanOrdersByOwnEtag(t *testing.T) {
	s := NewStore()
	s.Put("Users", "u1", map[string]string{"n": "x"})
	s.Put("Users", "u2", map[string]string{"n": "y"})
	first, _ := s.Delete("Users", "u1")
	s.Delete("Users", "u2")

	pool := NewPool(s)
	c := pool.Begin(context.Background())
	tombs := c.GetTombstonesWithEtagGreaterThan("Users", first)
	if len(tombs) != 1 || tombs[0].Key != "u2" {
		t.Fatalf("expected only the second tombstone, got %+v", tombs)
	}
}

func TestGetDocumentsWithEtagGreaterThanIsOrdered(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Put("Users", string(rune('a'+i)), map[string]string{"n": "x"})
	}
	pool := NewPool(s)
	c := pool.Begin(context.Background())
	docs := c.GetDocumentsWithEtagGreaterThan("Users", 2)
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs with etag > 2, got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].Etag <= docs[i-1].Etag {
			t.Fatalf("expected ascending etag order, got %v", docs)
		}
	}
}

func TestCollectionNamesAreCaseInsensitive(t *testing.T) {
	s := NewStore()
	s.Put("Users", "u1", map[string]string{"n": "x"})
	if got := s.lastDocumentEtag("users"); got != 1 {
		t.Fatalf("expected case-insensitive lookup to find etag 1, got %d", got)
	}
}
