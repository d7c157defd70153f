package index

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ComputeEtag is the index's cache validator: xxhash64 over the
// concatenated little-endian 64-bit components
// [definition.stable_hash, is_stale?0:1, last_doc_etag per C in
// definition order, last_mapped_etag per C in definition order].
// Deliberately scoped to exactly these components — map-reduce
// reduce-etags and index "touch" bumps are out of scope for the
// AutoMap-only variant this repository implements.
func ComputeEtag(stableHash uint64, isStale bool, perCollection []CollectionProgress) uint64 {
	buf := make([]byte, 0, 8*(2+2*len(perCollection)))
	buf = appendLE64(buf, stableHash)

	staleBit := uint64(1)
	if isStale {
		staleBit = 0
	}
	buf = appendLE64(buf, staleBit)

	for _, cp := range perCollection {
		buf = appendLE64(buf, uint64(cp.LastDocEtag))
	}
	for _, cp := range perCollection {
		buf = appendLE64(buf, uint64(cp.LastMappedEtag))
	}

	return xxhash.Sum64(buf)
}

// CollectionProgress is one collection's etag pair as observed at
// query time, in definition order — the unit ComputeEtag folds into
// the hash.
type CollectionProgress struct {
	Collection     CollectionName
	LastDocEtag    Etag
	LastMappedEtag Etag
}

func appendLE64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
