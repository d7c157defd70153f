package index

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/zeebo/xxh3"
)

// Etag mirrors docstore.Etag at the index package's boundary, so
// IndexStorage and the document-store contract agree on etag
// arithmetic without index importing docstore's package name into its
// exported surface.
type Etag uint64

// CollectionName is a case-insensitive collection identifier.
type CollectionName string

// Normalize returns the canonical, lower-cased form used as a map key
// and storage bucket key throughout the index package.
func (c CollectionName) Normalize() string {
	return strings.ToLower(string(c))
}

// HashAlgorithm selects the digest IndexDefinition.StableHash uses,
// the same multi-algorithm pattern the fulltext package's hashKey
// follows.
type HashAlgorithm int

const (
	HashXXH3 HashAlgorithm = iota
	HashFNV1a
	HashBlake2b
)

// IndexType tags which index variant a definition describes. Only
// AutoMap is implemented; AutoMapReduce and user-defined Map/MapReduce
// are admitted as future variants, not built here.
type IndexType int

const (
	IndexTypeAutoMap IndexType = iota
	IndexTypeAutoMapReduce
	IndexTypeMap
	IndexTypeMapReduce
)

// IndexDefinition is immutable once created: name, the non-empty set
// of collections it maps, its lock mode, and type-specific fields.
type IndexDefinition struct {
	ID            int
	Name          string
	Type          IndexType
	Collections   []CollectionName
	LockMode      LockMode
	MappedFields  []string // folded into StableHash; MapDocuments maps every field regardless
	HashAlgorithm HashAlgorithm
}

// StableHash is a content hash of the definition's identity — its
// name, type, collection set (order-independent) and mapped fields —
// used as an input to the index etag cache validator
func (d IndexDefinition) StableHash() uint64 {
	collections := make([]string, len(d.Collections))
	for i, c := range d.Collections {
		collections[i] = c.Normalize()
	}
	sort.Strings(collections)
	fields := append([]string(nil), d.MappedFields...)
	sort.Strings(fields)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%s|%s", d.Name, d.Type, strings.Join(collections, ","), strings.Join(fields, ","))
	s := b.String()

	switch d.HashAlgorithm {
	case HashBlake2b:
		h := blake2b.Sum512([]byte(s))
		return uint64(h[0]) | uint64(h[1])<<8 | uint64(h[2])<<16 | uint64(h[3])<<24 |
			uint64(h[4])<<32 | uint64(h[5])<<40 | uint64(h[6])<<48 | uint64(h[7])<<56
	case HashFNV1a:
		h := fnv.New64a()
		h.Write([]byte(s))
		return h.Sum64()
	default:
		return xxh3.HashString(s)
	}
}

// Priority is a bit-set over the scheduling states an index can hold.
// Exactly one of {Normal, Idle, Disabled, Error} is meaningful at a
// time; Forced is an orthogonal flag suppressing automatic transitions.
type Priority uint8

const (
	PriorityNormal Priority = 1 << iota
	PriorityIdle
	PriorityDisabled
	PriorityError
	PriorityForced
)

// Base returns p with the Forced bit cleared, isolating the one
// meaningful scheduling state.
func (p Priority) Base() Priority {
	return p &^ PriorityForced
}

// Forced reports whether the Forced bit is set.
func (p Priority) Forced() bool {
	return p&PriorityForced != 0
}

func (p Priority) String() string {
	switch p.Base() {
	case PriorityNormal:
		return "Normal"
	case PriorityIdle:
		return "Idle"
	case PriorityDisabled:
		return "Disabled"
	case PriorityError:
		return "Error"
	default:
		return "Unknown"
	}
}

// LockMode controls whether and how an index accepts concurrent
// administrative changes
type LockMode int

const (
	LockUnlock LockMode = iota
	LockedIgnore
	LockedError
	SideBySide
)

// BatchStats are the rolling counters IndexStorage.update_stats
// appends on every committed batch
type BatchStats struct {
	MapCount       int
	DeleteCount    int
	AnalyzerErrors int
	WriteErrors    int
}

// Stats is the persisted, accumulated snapshot IndexStorage.read_stats
// returns.
type Stats struct {
	BatchCount       int
	MapCount         int
	DeleteCount      int
	AnalyzerErrors   int
	WriteErrorCount  int
	LastIndexingTime int64 // unix millis
	LastQueryingTime int64 // unix millis
}

// RecordedError is one entry in the bounded error ring
type RecordedError struct {
	Timestamp int64 // unix millis
	Action    string
	Message   string
}
