package index

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lifecycle and validation failure kinds
// (not type names): InvalidArgument, InvalidState,
// NotImplementedIndexType, OutOfMemoryError, Cancelled, Disposed.
var (
	// ErrInvalidArgument is returned for index_id <= 0 or a nil id on load.
	ErrInvalidArgument = errors.New("index: invalid argument")

	// ErrInvalidState is returned for initialize-twice,
	// start-without-initialize, start-while-running.
	ErrInvalidState = errors.New("index: invalid state transition")

	// ErrNotImplementedIndexType is returned for an unknown type tag at
	// open time.
	ErrNotImplementedIndexType = errors.New("index: index type not implemented")

	// ErrOutOfMemory marks a batch discarded for memory pressure; the
	// loop continues
	ErrOutOfMemory = errors.New("index: out of memory")

	// ErrCancelled is a clean termination signal, never reported to
	// callers as a failure.
	ErrCancelled = errors.New("index: cancelled")

	// ErrDisposed is returned for any operation after dispose().
	ErrDisposed = errors.New("index: disposed")
)

// WriteErrorKind distinguishes a transient IndexWriteError (caused by a
// system I/O exception, not counted against write_errors) from a
// persistent one (counted; reaching the write-error limit trips
// priority=Error).
type WriteErrorKind int

const (
	WriteErrorPersistent WriteErrorKind = iota
	WriteErrorTransient
)

// WriteError wraps a failure from the full-text writer with the
// transient/persistent sub-classification the loop needs to decide
// whether it counts against write_errors.
type WriteError struct {
	Kind  WriteErrorKind
	Cause error
}

func (e *WriteError) Error() string {
	if e.Kind == WriteErrorTransient {
		return fmt.Sprintf("index: transient write error: %v", e.Cause)
	}
	return fmt.Sprintf("index: write error: %v", e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

// Transient reports whether this error's inner cause is a transient
// system I/O exception — transient errors are never counted toward the
// write-error limit.
func (e *WriteError) Transient() bool {
	return e.Kind == WriteErrorTransient
}

// AnalyzerError records a per-document analyzer failure. Never fatal to
// the batch; accumulated in stats.analyzer_errors
type AnalyzerError struct {
	Collection string
	DocKey     string
	Cause      error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("index: analyzer error on %s/%s: %v", e.Collection, e.DocKey, e.Cause)
}

func (e *AnalyzerError) Unwrap() error {
	return e.Cause
}
