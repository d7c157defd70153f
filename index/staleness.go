package index

import (
	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/storage"
)

// StalenessOracle compares persisted per-collection etags against live
// document-store etags to decide staleness, with or without a caller
// cutoff
type StalenessOracle struct {
	definition IndexDefinition
}

// NewStalenessOracle binds an oracle to the collections definition
// names.
func NewStalenessOracle(definition IndexDefinition) StalenessOracle {
	return StalenessOracle{definition: definition}
}

// IsStale decides staleness: without a cutoff, an index is stale if any
// mapped collection has unmapped documents or unprocessed tombstones;
// with a cutoff, staleness is judged only up to min(cutoff,
// last_doc_etag) and only tombstones at or below the cutoff count.
func (o StalenessOracle) IsStale(docCtx *docstore.Context, indexTx *storage.Tx, cutoff *Etag) bool {
	for _, c := range o.definition.Collections {
		collection := c.Normalize()
		d := Etag(docCtx.GetLastDocumentEtag(collection))
		m := indexStorage.ReadLastMappedEtag(indexTx, c)

		if cutoff == nil {
			if d > m {
				return true
			}
			t := Etag(docCtx.GetLastTombstoneEtag(collection))
			pt := indexStorage.ReadLastProcessedTombstoneEtag(indexTx, c)
			if t > pt {
				return true
			}
			continue
		}

		target := d
		if *cutoff < target {
			target = *cutoff
		}
		if target > m {
			return true
		}

		pt := indexStorage.ReadLastProcessedTombstoneEtag(indexTx, c)
		for _, t := range docCtx.GetTombstonesWithDocEtagLowerThan(collection, docstore.Etag(*cutoff)) {
			if Etag(t.Etag) > pt {
				return true
			}
		}
	}
	return false
}

var indexStorage = IndexStorage{}
