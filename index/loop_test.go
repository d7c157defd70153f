package index

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpl-au/indexcore/bus"
	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/fulltext"
	"github.com/jpl-au/indexcore/indexlog"
	"github.com/jpl-au/indexcore/storage"
)

// testHost is a minimal loopHost stub, independent of the full Index
// façade, so IndexingLoop can be exercised in isolation.
type testHost struct {
	definition   IndexDefinition
	env          *storage.Env
	persistence  *IndexPersistence
	docPool      *docstore.Pool
	notifyBus    *bus.Bus
	budget       BatchBudget
	writeLimit   int32
	poll         time.Duration
	runtime      runtimeState
	writeErrors  int32
	batchSuccess int32
}

func (h *testHost) Definition() IndexDefinition    { return h.definition }
func (h *testHost) StorageEnv() *storage.Env       { return h.env }
func (h *testHost) Persistence() *IndexPersistence { return h.persistence }
func (h *testHost) DocPool() *docstore.Pool        { return h.docPool }
func (h *testHost) Bus() *bus.Bus                  { return h.notifyBus }
func (h *testHost) Budget() BatchBudget            { return h.budget }
func (h *testHost) WriteErrorLimit() int32         { return h.writeLimit }
func (h *testHost) PollInterval() time.Duration    { return h.poll }
func (h *testHost) Runtime() *runtimeState         { return &h.runtime }
func (h *testHost) Logger() zerolog.Logger         { return indexlog.ForIndex(h.definition.Name) }
func (h *testHost) onWriteError(we *WriteError)    { atomic.AddInt32(&h.writeErrors, 1) }
func (h *testHost) onBatchSuccess()                { atomic.AddInt32(&h.batchSuccess, 1) }

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	env := openTestEnv(t)
	persistence := openTestPersistence(t)
	store := docstore.NewStore()
	return &testHost{
		definition:  IndexDefinition{Name: "byName", Collections: []CollectionName{"users"}},
		env:         env,
		persistence: persistence,
		docPool:     docstore.NewPool(store),
		notifyBus:   bus.New(),
		poll:        20 * time.Millisecond,
	}
}

func TestIndexingLoopMapsDocumentsOnStart(t *testing.T) {
	host := newTestHost(t)
	store := docstore.NewStore()
	store.Put("users", "u1", map[string]string{"n": "a"})
	host.docPool = docstore.NewPool(store)

	workers := []Worker{MapDocuments{Definition: host.definition, Budget: host.budget}}
	loop := NewIndexingLoop(host, workers)

	var gotNotification sync.WaitGroup
	gotNotification.Add(1)
	sub := host.notifyBus.SubscribeIndexChanges(func(n bus.IndexChangeNotification) {
		if n.Type == bus.BatchCompleted {
			gotNotification.Done()
		}
	})
	defer sub.Unsubscribe()

	loop.Start()
	defer loop.Stop()

	waitOrTimeout(t, &gotNotification, time.Second)

	var lastMapped Etag
	host.env.View(func(tx *storage.Tx) error {
		lastMapped = indexStorage.ReadLastMappedEtag(tx, "users")
		return nil
	})
	if lastMapped != 1 {
		t.Fatalf("expected last_mapped_etag 1 after first batch, got %d", lastMapped)
	}
}

func TestIndexingLoopWakesOnDocumentChange(t *testing.T) {
	host := newTestHost(t)
	host.poll = time.Hour // force relying on the wake-event, not the poll fallback
	store := docstore.NewStore()
	host.docPool = docstore.NewPool(store)

	workers := []Worker{MapDocuments{Definition: host.definition, Budget: host.budget}}
	loop := NewIndexingLoop(host, workers)

	loop.Start()
	defer loop.Stop()

	time.Sleep(30 * time.Millisecond) // let the first (empty) batch settle

	store.Put("users", "u1", map[string]string{"n": "a"})

	var gotNotification sync.WaitGroup
	gotNotification.Add(1)
	sub := host.notifyBus.SubscribeIndexChanges(func(n bus.IndexChangeNotification) {
		if n.Type == bus.BatchCompleted {
			gotNotification.Done()
		}
	})
	defer sub.Unsubscribe()

	host.notifyBus.PublishDocumentChange(bus.DocumentChangeNotification{Collection: "users"})
	waitOrTimeout(t, &gotNotification, time.Second)
}

func TestIndexingLoopWaitForBatchReturnsAfterBatchCompleted(t *testing.T) {
	host := newTestHost(t)
	loop := NewIndexingLoop(host, nil)

	done := make(chan struct{})
	go func() {
		loop.WaitForBatch(context.Background(), time.Now().Add(time.Second))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	loop.announceBatchCompleted()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitForBatch did not return after announceBatchCompleted")
	}
}

func TestIndexingLoopWaitForBatchRespectsDeadline(t *testing.T) {
	host := newTestHost(t)
	loop := NewIndexingLoop(host, nil)

	start := time.Now()
	loop.WaitForBatch(context.Background(), start.Add(30*time.Millisecond))
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected WaitForBatch to honor the deadline, returned too early")
	}
}

func TestLazyWriterDefersOpenUntilFirstWrite(t *testing.T) {
	persistence := openTestPersistence(t)

	var opens int32
	lw := &lazyWriter{open: func() (*fulltext.Writer, error) {
		atomic.AddInt32(&opens, 1)
		return persistence.OpenWriter()
	}}

	if atomic.LoadInt32(&opens) != 0 {
		t.Fatalf("expected no writer opened before any write")
	}

	in := fulltext.MapInput{Collection: "users", DocKey: "u1", Fields: map[string]string{"n": "a"}}
	if err := lw.HandleMap(in); err != nil {
		t.Fatalf("HandleMap: %v", err)
	}
	if atomic.LoadInt32(&opens) != 1 {
		t.Fatalf("expected exactly one writer open after the first write, got %d", opens)
	}

	if err := lw.HandleDelete("users", "u2"); err != nil {
		t.Fatalf("HandleDelete: %v", err)
	}
	if atomic.LoadInt32(&opens) != 1 {
		t.Fatalf("expected the writer to be reused for subsequent writes, got %d opens", opens)
	}

	lw.w.Commit()
}

func TestIndexingLoopEmptyBatchNeverOpensWriter(t *testing.T) {
	host := newTestHost(t)
	workers := []Worker{MapDocuments{Definition: host.definition, Budget: host.budget}}
	loop := NewIndexingLoop(host, workers)

	loop.runBatch(context.Background())

	w, err := host.persistence.OpenWriter()
	if err != nil {
		t.Fatalf("expected the engine writer to still be free after an empty batch: %v", err)
	}
	w.Discard()
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for expected notification")
	}
}
