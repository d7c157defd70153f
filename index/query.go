package index

import (
	"context"
	"time"

	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/fulltext"
	"github.com/jpl-au/indexcore/storage"
)

// Query is one request into QueryPath.Query: the terms to intersect, an
// optional staleness cutoff, the wait-for-non-stale mode, and an
// optional timeout bounding how long the caller accepts waiting for a
// batch to catch up
type Query struct {
	Terms                  []fulltext.Term
	CutoffEtag             *Etag
	WaitForNonStaleAsOfNow bool
	Timeout                time.Duration
	MaxResults             int
}

// Result is what QueryPath.Query returns: the cache validator, the
// staleness verdict it was computed against, and the matching document
// keys
type Result struct {
	IndexName      string
	IndexTimestamp int64
	LastQueryTime  int64
	IsStale        bool
	Etag           uint64
	Results        []string
	TotalResults   int
}

// QueryPath opens index-then-doc transactions, judges staleness, waits
// for a fresher batch if the caller demands it, computes the cache
// validator, and collects results from a reader bound to the index
// transaction that staleness was judged against.
type QueryPath struct {
	definition  IndexDefinition
	storageEnv  *storage.Env
	persistence *IndexPersistence
	docPool     *docstore.Pool
	oracle      StalenessOracle
	loop        *IndexingLoop
	runtime     *runtimeState
}

// NewQueryPath binds a query path to the collaborators one Index façade
// owns.
func NewQueryPath(definition IndexDefinition, env *storage.Env, persistence *IndexPersistence, docPool *docstore.Pool, loop *IndexingLoop, runtime *runtimeState) *QueryPath {
	return &QueryPath{
		definition:  definition,
		storageEnv:  env,
		persistence: persistence,
		docPool:     docPool,
		oracle:      NewStalenessOracle(definition),
		loop:        loop,
		runtime:     runtime,
	}
}

// waitState tracks the retry loop's own start time across iterations of
// step 4's suspend-and-retry, so a caller's timeout is measured from the
// first wait, not from each individual wait
type waitState struct {
	startedAt time.Time
	active    bool
}

// Query runs the full query path end to end. cancel is checked by the
// reader's result iteration; ctx bounds the wait for a fresher batch.
func (q *QueryPath) Query(ctx context.Context, query Query, cancel func() bool) (Result, error) {
	q.runtime.RecordQueryTime(time.Now().UnixMilli())

	if query.WaitForNonStaleAsOfNow && query.CutoffEtag == nil {
		var max Etag
		docCtx := q.docPool.Begin(ctx)
		for _, c := range q.definition.Collections {
			if d := Etag(docCtx.GetLastDocumentEtag(c.Normalize())); d > max {
				max = d
			}
		}
		docCtx.Commit()
		query.CutoffEtag = &max
	}

	var ws waitState

	for {
		var isStale bool
		var perCollection []CollectionProgress
		var reader *fulltext.Reader
		var docCtx *docstore.Context

		// The index read transaction opens first and the document read
		// transaction second, so a staleness check against a snapshotting
		// document store sees a document snapshot no older than the index
		// snapshot it is compared against.
		err := q.storageEnv.View(func(tx *storage.Tx) error {
			docCtx = q.docPool.Begin(ctx)
			isStale = q.oracle.IsStale(docCtx, tx, query.CutoffEtag)

			if !willBeAcceptable(isStale, query, ws) {
				return errRetryQuery
			}

			perCollection = make([]CollectionProgress, len(q.definition.Collections))
			for i, c := range q.definition.Collections {
				perCollection[i] = CollectionProgress{
					Collection:     c,
					LastDocEtag:    Etag(docCtx.GetLastDocumentEtag(c.Normalize())),
					LastMappedEtag: indexStorage.ReadLastMappedEtag(tx, c),
				}
			}

			r, openErr := q.persistence.OpenReader()
			if openErr != nil {
				return openErr
			}
			reader = r
			return nil
		})

		if err == errRetryQuery {
			docCtx.Commit()
			if !ws.active {
				ws = waitState{startedAt: time.Now(), active: true}
			}
			deadline := ws.startedAt.Add(query.Timeout)
			q.loop.WaitForBatch(ctx, deadline)
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			docCtx.Commit()
			return Result{}, err
		}

		defer reader.Close()
		defer docCtx.Commit()

		etag := ComputeEtag(q.definition.StableHash(), isStale, perCollection)

		var results []string
		total, qerr := reader.Query(query.Terms, query.MaxResults, cancel, func(docKey string) error {
			results = append(results, docKey)
			return nil
		})
		if qerr != nil {
			return Result{}, qerr
		}

		return Result{
			IndexName:      q.definition.Name,
			IndexTimestamp: time.Now().UnixMilli(),
			LastQueryTime:  q.runtime.LastQueryingTime(),
			IsStale:        isStale,
			Etag:           etag,
			Results:        results,
			TotalResults:   total,
		}, nil
	}
}

// errRetryQuery signals step 4's "reset both contexts ... loop to step
// 2" without leaving the storage.View closure's transaction half-used.
var errRetryQuery = &retrySentinel{}

type retrySentinel struct{}

func (*retrySentinel) Error() string { return "index: query not yet acceptable, retrying" }

// willBeAcceptable decides whether a result can be returned now: accept
// if not stale, or if the caller configured no timeout (stale is fine),
// or if the wait-state's timeout has already elapsed.
func willBeAcceptable(isStale bool, q Query, ws waitState) bool {
	if !isStale {
		return true
	}
	if q.Timeout <= 0 {
		return true
	}
	if ws.active && time.Since(ws.startedAt) >= q.Timeout {
		return true
	}
	return false
}
