package fulltext

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Record type markers, the first value in every stored JSON line
// ({"idx":N,...}).
const (
	TypeDoc       = 2 // current field values for a document
	TypeTombstone = 3 // marks a document removed from the index
)

// MinRecordSize bounds the scanner buffer and filters obviously-truncated
// lines during a scan.
const MinRecordSize = len(`{"idx":2}`)

// docRecord is a line in the engine's append-only file: either the current
// field values for a document (TypeDoc) or a tombstone (TypeTombstone).
type docRecord struct {
	Type      int               `json:"idx"`
	Doc       string            `json:"_doc"`
	Coll      string            `json:"_coll"`
	Timestamp int64             `json:"_ts"`
	Fields    map[string]string `json:"_f,omitempty"` // field -> compressed value
}

func decodeRecord(data []byte) (*docRecord, error) {
	var r docRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, ErrCorruptRecord
	}
	if r.Type != TypeDoc && r.Type != TypeTombstone {
		return nil, ErrCorruptRecord
	}
	return &r, nil
}

func (r *docRecord) encode() ([]byte, error) {
	return json.Marshal(r)
}

// valid performs a cheap structural check before the full JSON
// unmarshal, a "looks like a record" gate that skips torn writes.
func valid(line []byte) bool {
	return len(line) >= MinRecordSize && strings.HasPrefix(string(line), `{"idx":`)
}
