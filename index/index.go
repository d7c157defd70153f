package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpl-au/indexcore/bus"
	"github.com/jpl-au/indexcore/config"
	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/fulltext"
	"github.com/jpl-au/indexcore/indexlog"
	"github.com/jpl-au/indexcore/storage"
)

type lifecycleState int

const (
	stateUninitialized lifecycleState = iota
	stateInitialized
	stateRunning
	stateStopped
	stateDisposed
)

// Deps bundles the collaborators a host process hands to Initialize:
// where this index's storage lives, the document store pool and
// notification bus shared across every index in the host, and the
// tuning knobs from config.Config.
type Deps struct {
	StorageDir string
	MemOnly    bool
	DocPool    *docstore.Pool
	Bus        *bus.Bus
	Config     config.Config
}

// Index is the façade tying lifecycle, priority, lock mode, and
// collaborators together at Initialize time. Every state transition and
// every priority/lock change happens under a single mutex per index.
type Index struct {
	mu    sync.Mutex
	state lifecycleState

	definition IndexDefinition
	cfg        config.Config

	storageEnv  *storage.Env
	persistence *IndexPersistence
	docPool     *docstore.Pool
	notifyBus   *bus.Bus
	loop        *IndexingLoop
	queryPath   *QueryPath
	runtime     runtimeState
	logger      zerolog.Logger

	priority Priority
	lockMode LockMode

	indexSub *bus.Subscription
}

// NewIndex constructs an Index in the Uninitialized state, bound to an
// immutable definition.
func NewIndex(definition IndexDefinition) *Index {
	return &Index{
		definition: definition,
		state:      stateUninitialized,
		priority:   PriorityNormal,
		logger:     indexlog.ForIndex(definition.Name),
	}
}

// Initialize opens the storage and full-text environments and binds
// deps. Only AutoMap is implemented; any other IndexType fails with
// ErrNotImplementedIndexType
func (ix *Index) Initialize(deps Deps) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state == stateDisposed {
		return ErrDisposed
	}
	if ix.state != stateUninitialized {
		return fmt.Errorf("index: initialize: %w", ErrInvalidState)
	}
	if ix.definition.Type != IndexTypeAutoMap {
		return ErrNotImplementedIndexType
	}

	env, err := storage.Open(deps.StorageDir, ix.definition.Name+".indexcore", deps.MemOnly)
	if err != nil {
		return err
	}

	engine, err := fulltext.Open(deps.StorageDir, ix.definition.Name+".fulltext", deps.MemOnly, fulltext.Config{
		Algorithm: fulltextAlgorithm(ix.definition.HashAlgorithm),
	})
	if err != nil {
		env.Close()
		return err
	}

	ix.cfg = deps.Config
	ix.storageEnv = env
	ix.persistence = NewIndexPersistence(engine)
	ix.docPool = deps.DocPool
	ix.notifyBus = deps.Bus

	if err := env.View(func(tx *storage.Tx) error {
		ix.priority = indexStorage.ReadPriority(tx)
		ix.lockMode = indexStorage.ReadLock(tx)
		return nil
	}); err != nil {
		ix.persistence.Close()
		env.Close()
		return err
	}

	workers := []Worker{
		CleanupDeletedDocuments{Definition: ix.definition, Budget: ix.batchBudget()},
		MapDocuments{Definition: ix.definition, Budget: ix.batchBudget()},
	}
	ix.loop = NewIndexingLoop(ix, workers)
	ix.queryPath = NewQueryPath(ix.definition, ix.storageEnv, ix.persistence, ix.docPool, ix.loop, &ix.runtime)

	ix.state = stateInitialized
	return nil
}

func fulltextAlgorithm(h HashAlgorithm) int {
	switch h {
	case HashFNV1a:
		return fulltext.AlgFNV1a
	case HashBlake2b:
		return fulltext.AlgBlake2b
	default:
		return fulltext.AlgXXHash3
	}
}

func (ix *Index) batchBudget() BatchBudget {
	return BatchBudget{MaxDocs: ix.cfg.BatchMaxDocs, MaxBytes: ix.cfg.BatchMaxBytes}
}

// Start launches the indexing loop and subscribes to index-change
// notifications so the façade can self-stop on an externally observed
// error. Fails with ErrInvalidState if not Initialized or already
// Running.
func (ix *Index) Start() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state == stateDisposed {
		return ErrDisposed
	}
	if ix.state == stateRunning {
		return fmt.Errorf("index: start: %w", ErrInvalidState)
	}
	if ix.state != stateInitialized && ix.state != stateStopped {
		return fmt.Errorf("index: start: %w", ErrInvalidState)
	}

	ix.indexSub = ix.notifyBus.SubscribeIndexChanges(func(n bus.IndexChangeNotification) {
		if n.Name == ix.definition.Name && n.Type == bus.IndexMarkedAsErrored {
			// The bus dispatches inline, and this notification can
			// originate from the indexing loop's own goroutine (a
			// persistent write error marks the index errored from
			// inside a batch). Stop joins that goroutine, so calling
			// it synchronously here would be a self-join deadlock.
			go ix.Stop()
		}
	})

	ix.loop.Start()
	ix.state = stateRunning
	return nil
}

// Stop halts the indexing loop and unsubscribes from index-change
// notifications. Idempotent: calling Stop when not Running is a no-op.
//
// The state transition happens under mu, but the blocking wait for the
// loop's goroutine to exit happens after releasing it: that goroutine
// can be mid-batch calling back into onWriteError/SetPriority, both of
// which take mu, and mu is not reentrant.
func (ix *Index) Stop() error {
	ix.mu.Lock()
	if ix.state == stateDisposed {
		ix.mu.Unlock()
		return ErrDisposed
	}
	if ix.state != stateRunning {
		ix.mu.Unlock()
		return nil
	}
	sub := ix.indexSub
	ix.indexSub = nil
	ix.state = stateStopped
	ix.mu.Unlock()

	ix.loop.Stop()
	if sub != nil {
		sub.Unsubscribe()
	}
	return nil
}

// Dispose releases every owned resource: the indexing loop, the
// full-text persistence, and the storage environment. Errors from each
// stage are collected rather than short-circuited so a failure to close
// one resource does not leak another. State flips to Disposed
// immediately under mu so concurrent callers see ErrDisposed right
// away; the loop's goroutine join, like Stop's, happens unlocked.
func (ix *Index) Dispose() error {
	ix.mu.Lock()
	if ix.state == stateDisposed {
		ix.mu.Unlock()
		return ErrDisposed
	}
	wasRunning := ix.state == stateRunning
	sub := ix.indexSub
	ix.indexSub = nil
	ix.state = stateDisposed
	ix.mu.Unlock()

	var errs []error
	if wasRunning {
		ix.loop.Stop()
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	if ix.persistence != nil {
		if err := ix.persistence.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if ix.storageEnv != nil {
		if err := ix.storageEnv.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("index: dispose: %v", errs)
	}
	return nil
}

// SetPriority is a no-op if equal, otherwise persists and raises
// exactly one notification chosen by rule order (Disabled, Error, Idle,
// Normal-from-Idle, else none).
func (ix *Index) SetPriority(p Priority) error {
	ix.mu.Lock()

	if ix.state == stateDisposed {
		ix.mu.Unlock()
		return ErrDisposed
	}
	if p == ix.priority {
		ix.mu.Unlock()
		return nil
	}

	previous := ix.priority
	if err := ix.storageEnv.Update(func(tx *storage.Tx) error {
		return indexStorage.WritePriority(tx, p)
	}); err != nil {
		ix.mu.Unlock()
		return err
	}
	ix.priority = p

	var kind bus.IndexChangeKind
	var notify bool
	switch {
	case p.Base() == PriorityDisabled:
		kind, notify = bus.IndexDemotedToDisabled, true
	case p.Base() == PriorityError:
		kind, notify = bus.IndexMarkedAsErrored, true
	case p.Base() == PriorityIdle:
		kind, notify = bus.IndexDemotedToIdle, true
	case p.Base() == PriorityNormal && previous.Base() == PriorityIdle:
		kind, notify = bus.IndexPromotedFromIdle, true
	}

	// Publish outside the lock: handle_index_change's self-stop path
	// re-enters this index (Stop, which takes mu) when the notification
	// names this same index, and mu is not reentrant.
	ix.mu.Unlock()
	if notify {
		ix.notifyBus.PublishIndexChange(bus.IndexChangeNotification{Name: ix.definition.Name, Type: kind})
	}
	return nil
}

// SetLock is a no-op if equal, otherwise persists.
func (ix *Index) SetLock(mode LockMode) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state == stateDisposed {
		return ErrDisposed
	}
	if mode == ix.lockMode {
		return nil
	}
	if err := ix.storageEnv.Update(func(tx *storage.Tx) error {
		return indexStorage.WriteLock(tx, mode)
	}); err != nil {
		return err
	}
	ix.lockMode = mode
	return nil
}

// Query runs QueryPath.Query, first promoting an Idle (non-Forced)
// index back to Normal — a query is itself a signal the index is
// wanted.
func (ix *Index) Query(ctx context.Context, q Query, cancel func() bool) (Result, error) {
	ix.mu.Lock()
	if ix.state == stateDisposed {
		ix.mu.Unlock()
		return Result{}, ErrDisposed
	}
	promote := ix.priority.Base() == PriorityIdle && !ix.priority.Forced()
	ix.mu.Unlock()

	if promote {
		// Routed through SetPriority, not written inline, so the
		// Idle-to-Normal transition raises IndexPromotedFromIdle the
		// same way any other priority change does.
		if err := ix.SetPriority(PriorityNormal); err != nil && !errors.Is(err, ErrDisposed) {
			return Result{}, err
		}
	}

	return ix.queryPath.Query(ctx, q, cancel)
}

// GetStats returns the persisted rolling counters
func (ix *Index) GetStats() (Stats, error) {
	if ix.state == stateDisposed {
		return Stats{}, ErrDisposed
	}
	var s Stats
	err := ix.storageEnv.View(func(tx *storage.Tx) error {
		s = indexStorage.ReadStats(tx)
		return nil
	})
	return s, err
}

// Compact reorganises the full-text engine's backing file down to its
// minimal live form. Safe to call while the index is running — it
// competes for the same writer exclusion a batch uses, so it simply
// waits its turn. Not invoked automatically by the indexing loop; an
// operator or host process decides its own cadence.
func (ix *Index) Compact() error {
	ix.mu.Lock()
	if ix.state == stateDisposed {
		ix.mu.Unlock()
		return ErrDisposed
	}
	persistence := ix.persistence
	ix.mu.Unlock()
	return persistence.Compact()
}

// GetErrors returns up to the last ErrorsRingSize recorded errors.
func (ix *Index) GetErrors() ([]RecordedError, error) {
	if ix.state == stateDisposed {
		return nil, ErrDisposed
	}
	var errs []RecordedError
	err := ix.storageEnv.View(func(tx *storage.Tx) error {
		errs = indexStorage.ReadErrors(tx)
		return nil
	})
	return errs, err
}

// GetIndexDefinition returns the immutable definition this index was
// constructed with.
func (ix *Index) GetIndexDefinition() IndexDefinition {
	return ix.definition
}

// GetIndexEtag computes the current cache validator without running a
// query, using no cutoff — a standalone accessor alongside Query.
func (ix *Index) GetIndexEtag(ctx context.Context) (uint64, error) {
	if ix.state == stateDisposed {
		return 0, ErrDisposed
	}

	docCtx := ix.docPool.Begin(ctx)
	defer docCtx.Commit()

	var etag uint64
	err := ix.storageEnv.View(func(tx *storage.Tx) error {
		oracle := NewStalenessOracle(ix.definition)
		isStale := oracle.IsStale(docCtx, tx, nil)

		perCollection := make([]CollectionProgress, len(ix.definition.Collections))
		for i, c := range ix.definition.Collections {
			perCollection[i] = CollectionProgress{
				Collection:     c,
				LastDocEtag:    Etag(docCtx.GetLastDocumentEtag(c.Normalize())),
				LastMappedEtag: indexStorage.ReadLastMappedEtag(tx, c),
			}
		}
		etag = ComputeEtag(ix.definition.StableHash(), isStale, perCollection)
		return nil
	})
	return etag, err
}

// GetLastMappedEtagFor returns the highest document etag mapped for one
// collection.
func (ix *Index) GetLastMappedEtagFor(collection CollectionName) (Etag, error) {
	if ix.state == stateDisposed {
		return 0, ErrDisposed
	}
	var etag Etag
	err := ix.storageEnv.View(func(tx *storage.Tx) error {
		etag = indexStorage.ReadLastMappedEtag(tx, collection)
		return nil
	})
	return etag, err
}

// GetLastProcessedDocumentTombstonesPerCollection returns this index's
// per-collection last_processed_tombstone_etag map — what the
// tombstone-cleaner consumes to decide when a tombstone may be purged
// from the document store. The map is keyed by the collection names
// exactly as IndexDefinition.Collections spells them.
func (ix *Index) GetLastProcessedDocumentTombstonesPerCollection() (map[CollectionName]Etag, error) {
	if ix.state == stateDisposed {
		return nil, ErrDisposed
	}
	out := make(map[CollectionName]Etag)
	err := ix.storageEnv.View(func(tx *storage.Tx) error {
		for _, c := range ix.definition.Collections {
			out[c] = indexStorage.ReadLastProcessedTombstoneEtag(tx, c)
		}
		return nil
	})
	return out, err
}

// loopHost implementation — the collaborators and hooks IndexingLoop
// needs, kept separate from the exported façade API above.

func (ix *Index) Definition() IndexDefinition    { return ix.definition }
func (ix *Index) StorageEnv() *storage.Env       { return ix.storageEnv }
func (ix *Index) Persistence() *IndexPersistence { return ix.persistence }
func (ix *Index) DocPool() *docstore.Pool        { return ix.docPool }
func (ix *Index) Bus() *bus.Bus                  { return ix.notifyBus }
func (ix *Index) Budget() BatchBudget            { return ix.batchBudget() }
func (ix *Index) WriteErrorLimit() int32         { return int32(ix.cfg.WriteErrorLimit) }
func (ix *Index) PollInterval() time.Duration    { return ix.cfg.PollInterval }
func (ix *Index) Runtime() *runtimeState         { return &ix.runtime }
func (ix *Index) Logger() zerolog.Logger         { return ix.logger }

// onWriteError accounts a write error: a non-transient write error
// bumps the counter; reaching the limit trips priority to Error unless
// it is already there.
func (ix *Index) onWriteError(we *WriteError) {
	if we.Transient() {
		return
	}
	n := ix.runtime.IncrementWriteErrors()

	ix.mu.Lock()
	if ix.storageEnv != nil {
		_ = ix.storageEnv.Update(func(tx *storage.Tx) error {
			return indexStorage.RecordError(tx, RecordedError{
				Timestamp: time.Now().UnixMilli(),
				Action:    "map",
				Message:   we.Error(),
			})
		})
	}
	current := ix.priority
	ix.mu.Unlock()

	if n >= ix.WriteErrorLimit() && current.Base() != PriorityError {
		next := PriorityError
		if current.Forced() {
			next |= PriorityForced
		}
		_ = ix.SetPriority(next)
	}
}

// onBatchSuccess clears the write-error counter: a successful batch
// resets the streak.
func (ix *Index) onBatchSuccess() {
	ix.runtime.ResetWriteErrors()
}
