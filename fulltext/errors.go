// Package fulltext is a minimal full-text search engine: an append-only,
// file-backed inverted index of field values keyed by document key. It
// plays the role of the full-text search library the index package
// treats as an external collaborator.
//
// The on-disk format uses a fixed-size header, newline-delimited JSON
// records, OS-level flock for cross-process coordination, and zstd for
// compressed stored values.
package fulltext

import "errors"

// Sentinel errors returned by engine operations.
var (
	// ErrClosed is returned when operating on a closed engine.
	ErrClosed = errors.New("fulltext: engine is closed")

	// ErrCorruptHeader is returned when the header cannot be parsed.
	ErrCorruptHeader = errors.New("fulltext: corrupt header")

	// ErrCorruptRecord is returned when a record cannot be parsed.
	ErrCorruptRecord = errors.New("fulltext: corrupt record")

	// ErrDecompress is returned when a stored value fails to decompress.
	ErrDecompress = errors.New("fulltext: decompress failed")

	// ErrNoWriter is returned when HandleMap/HandleDelete is called after
	// the writer has already been committed or disposed.
	ErrNoWriter = errors.New("fulltext: writer already closed")
)
