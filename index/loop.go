package index

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpl-au/indexcore/bus"
	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/fulltext"
	"github.com/jpl-au/indexcore/storage"
)

// loopHost is everything the IndexingLoop needs from its owning Index:
// configuration, its collaborators, and the two write-error/priority
// hooks the loop must call into under the index's own mutex
type loopHost interface {
	Definition() IndexDefinition
	StorageEnv() *storage.Env
	Persistence() *IndexPersistence
	DocPool() *docstore.Pool
	Bus() *bus.Bus
	Budget() BatchBudget
	WriteErrorLimit() int32
	PollInterval() time.Duration
	Runtime() *runtimeState
	Logger() zerolog.Logger
	onWriteError(we *WriteError)
	onBatchSuccess()
}

// IndexingLoop is the long-running worker that runs the WorkerPipeline
// inside one write transaction per batch, commits atomically, recreates
// the searcher, updates stats, accounts errors, then suspends on a
// wake-event
type IndexingLoop struct {
	host    loopHost
	workers []Worker

	wakeMu sync.Mutex
	wake   bool // manual-reset, edge-triggered wake-event

	batchMu   sync.Mutex
	batchCond *sync.Cond
	batchGen  uint64 // bumped each time the batch-completed event fires

	docSub   *bus.Subscription
	cancelFn context.CancelFunc
	done     chan struct{}
}

// NewIndexingLoop builds a loop over workers in the canonical order for
// the index's type. Only AutoMap is implemented (NotImplementedIndexType
// otherwise — checked by the caller before construction).
func NewIndexingLoop(host loopHost, workers []Worker) *IndexingLoop {
	l := &IndexingLoop{host: host, workers: workers}
	l.batchCond = sync.NewCond(&l.batchMu)
	return l
}

// Start subscribes to document-change notifications for the index's
// collections and launches the background goroutine. Called once by
// Index.Start().
func (l *IndexingLoop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelFn = cancel
	l.done = make(chan struct{})

	collections := make(map[string]struct{}, len(l.host.Definition().Collections))
	for _, c := range l.host.Definition().Collections {
		collections[c.Normalize()] = struct{}{}
	}
	l.docSub = l.host.Bus().SubscribeDocumentChanges(func(n bus.DocumentChangeNotification) {
		if _, ok := collections[CollectionName(n.Collection).Normalize()]; ok {
			l.raiseWake()
		}
	})

	go l.run(ctx)
}

// Stop cancels the loop and blocks until its goroutine has exited
// cleanly — no partial commit, the open write transaction (if any) is
// dropped rather than committed
func (l *IndexingLoop) Stop() {
	if l.docSub != nil {
		l.docSub.Unsubscribe()
	}
	if l.cancelFn != nil {
		l.cancelFn()
	}
	l.raiseWake()
	if l.done != nil {
		<-l.done
	}
}

// raiseWake sets the manual-reset wake-event; multiple sets before the
// next reset coalesce into one wake
func (l *IndexingLoop) raiseWake() {
	l.wakeMu.Lock()
	l.wake = true
	l.wakeMu.Unlock()
}

func (l *IndexingLoop) resetWake() {
	l.wakeMu.Lock()
	l.wake = false
	l.wakeMu.Unlock()
}

func (l *IndexingLoop) wakeIsSet() bool {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()
	return l.wake
}

// WaitForBatch blocks until a batch-completed broadcast fires after the
// call, ctx is cancelled, or deadline elapses — the primitive
// QueryPath's wait-state uses
func (l *IndexingLoop) WaitForBatch(ctx context.Context, deadline time.Time) {
	l.batchMu.Lock()
	startGen := l.batchGen
	l.batchMu.Unlock()

	done := make(chan struct{})
	go func() {
		l.batchMu.Lock()
		for l.batchGen == startGen {
			l.batchCond.Wait()
		}
		l.batchMu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (l *IndexingLoop) announceBatchCompleted() {
	l.batchMu.Lock()
	l.batchGen++
	l.batchCond.Broadcast()
	l.batchMu.Unlock()
}

// run is the state machine body: repeat batches until cancellation.
func (l *IndexingLoop) run(ctx context.Context) {
	defer close(l.done)

	poll := l.host.PollInterval()
	if poll <= 0 {
		poll = time.Second
	}

	for ctx.Err() == nil {
		l.runBatch(ctx)
		if ctx.Err() != nil {
			return
		}
		l.waitForWakeOrPoll(ctx, poll)
	}
}

// waitForWakeOrPoll waits on the wake-event until either it fires or
// cancellation is requested, with a poll fallback as a safety net
// against a missed or coalesced signal. The wake-event is a flag rather
// than a channel, so it is re-checked every few milliseconds.
func (l *IndexingLoop) waitForWakeOrPoll(ctx context.Context, poll time.Duration) {
	deadline := time.Now().Add(poll)
	for !l.wakeIsSet() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		step := 5 * time.Millisecond
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(step):
		}
	}
}

// lazyWriter defers opening the engine's real writer — and with it the
// exclusive flock acquisition in blockWrite — until a worker actually
// has a document or tombstone to record. A batch that finds nothing new
// never opens a writer at all.
type lazyWriter struct {
	open func() (*fulltext.Writer, error)
	w    *fulltext.Writer
	err  error
}

func (l *lazyWriter) ensure() (*fulltext.Writer, error) {
	if l.w == nil && l.err == nil {
		l.w, l.err = l.open()
	}
	return l.w, l.err
}

func (l *lazyWriter) HandleMap(in fulltext.MapInput) error {
	w, err := l.ensure()
	if err != nil {
		return err
	}
	return w.HandleMap(in)
}

func (l *lazyWriter) HandleDelete(collection, docKey string) error {
	w, err := l.ensure()
	if err != nil {
		return err
	}
	return w.HandleDelete(collection, docKey)
}

// runBatch opens a transaction, runs every worker over its budget,
// commits, recreates the searcher, and accounts the result into stats.
func (l *IndexingLoop) runBatch(ctx context.Context) {
	runtime := l.host.Runtime()
	log := l.host.Logger()

	runtime.SetIndexingInProgress(true)
	l.resetWake()
	defer runtime.SetIndexingInProgress(false)

	batchStart := time.Now()
	cancel := func() bool { return ctx.Err() != nil }

	docCtx := l.host.DocPool().Begin(ctx)
	defer docCtx.Commit()

	env := l.host.StorageEnv()
	persistence := l.host.Persistence()

	var stats BatchStats
	var more bool
	lw := &lazyWriter{open: persistence.OpenWriter}

	commitErr := env.Update(func(tx *storage.Tx) error {
		for _, w := range l.workers {
			moreFromWorker, err := w.Execute(docCtx, tx, lw, &stats, cancel)
			if err != nil {
				return err // a failed worker rolls back the whole batch, not just its own progress
			}
			if moreFromWorker {
				more = true
			}
		}
		return nil
	})

	if lw.w != nil {
		if commitErr == nil {
			_ = lw.w.Commit()
		} else {
			_ = lw.w.Discard()
		}
	}

	if commitErr != nil {
		l.handleBatchError(commitErr, log)
		return
	}

	if lw.w != nil && lw.w.Wrote() {
		if err := persistence.RecreateSearcher(); err != nil {
			log.Error().Err(err).Msg("recreate searcher failed")
		}
	}

	l.announceBatchCompleted()
	l.host.Bus().PublishIndexChange(bus.IndexChangeNotification{
		Name: l.host.Definition().Name,
		Type: bus.BatchCompleted,
	})
	log.Info().Str("index", l.host.Definition().Name).Int("mapped", stats.MapCount).Int("deleted", stats.DeleteCount).Msg("batch completed")

	duration := time.Since(batchStart).Milliseconds()
	if err := env.Update(func(tx *storage.Tx) error {
		return indexStorage.UpdateStats(tx, batchStart.UnixMilli(), duration, stats)
	}); err != nil {
		log.Error().Err(err).Msg("update stats failed")
	}

	l.host.onBatchSuccess()
	if more {
		l.raiseWake()
	}
}

func (l *IndexingLoop) handleBatchError(err error, log zerolog.Logger) {
	switch e := err.(type) {
	case *WriteError:
		log.Warn().Err(e.Cause).Bool("transient", e.Transient()).Msg("index write error")
		l.host.onWriteError(e)
	case *AnalyzerError:
		log.Warn().Str("collection", e.Collection).Str("doc", e.DocKey).Err(e.Cause).Msg("analyzer error")
	default:
		switch err {
		case ErrOutOfMemory:
			log.Warn().Msg("batch discarded: out of memory")
		case ErrCancelled:
			log.Info().Msg("batch cancelled")
		default:
			log.Warn().Err(err).Msg("batch discarded")
		}
	}
}
