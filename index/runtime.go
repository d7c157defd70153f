package index

import "sync/atomic"

// runtimeState holds in-memory, non-persisted scalars: write_errors,
// indexing_in_progress, and last_querying_time. None of these survive a
// restart — they exist purely for the current process's scheduling and
// observability.
type runtimeState struct {
	writeErrors        atomic.Int32
	indexingInProgress atomic.Bool
	lastQueryingTimeMs atomic.Int64
}

// IncrementWriteErrors atomically bumps the non-transient write-error
// counter and returns the new value.
func (r *runtimeState) IncrementWriteErrors() int32 {
	return r.writeErrors.Add(1)
}

// ResetWriteErrors resets the counter to zero atomically.
func (r *runtimeState) ResetWriteErrors() {
	r.writeErrors.Store(0)
}

// WriteErrors returns the current non-transient write-error count.
func (r *runtimeState) WriteErrors() int32 {
	return r.writeErrors.Load()
}

// SetIndexingInProgress records whether a batch is currently executing,
// a transient flag for observability only.
func (r *runtimeState) SetIndexingInProgress(v bool) {
	r.indexingInProgress.Store(v)
}

// IndexingInProgress reports whether a batch is currently executing.
func (r *runtimeState) IndexingInProgress() bool {
	return r.indexingInProgress.Load()
}

// RecordQueryTime advances last_querying_time monotonically — it only
// ever increases, never regresses to an earlier timestamp from a
// query that happened to finish out of order.
func (r *runtimeState) RecordQueryTime(millis int64) {
	for {
		cur := r.lastQueryingTimeMs.Load()
		if millis <= cur {
			return
		}
		if r.lastQueryingTimeMs.CompareAndSwap(cur, millis) {
			return
		}
	}
}

// LastQueryingTime returns the last recorded query timestamp, unix
// millis.
func (r *runtimeState) LastQueryingTime() int64 {
	return r.lastQueryingTimeMs.Load()
}
