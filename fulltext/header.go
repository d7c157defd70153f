package fulltext

import (
	"bytes"
	"os"

	json "github.com/goccy/go-json"
)

// HeaderSize is the fixed size of the header in bytes.
const HeaderSize = 128

// Header contains engine metadata stored at the start of the file.
type Header struct {
	Version   int   `json:"_v"`   // file format version, currently 1
	Dirty     int   `json:"_e"`   // 0=clean, 1=dirty (crash indicator)
	Algorithm int   `json:"_alg"` // term/key hash algorithm
	Timestamp int64 `json:"_ts"`  // unix milliseconds when last written
	Committed int64 `json:"_c"`   // byte offset of the last committed record
}

// readHeader reads and parses the header from a file.
func readHeader(f *os.File) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}

	var hdr Header
	if err := json.Unmarshal(bytes.TrimSpace(buf), &hdr); err != nil {
		return nil, ErrCorruptHeader
	}
	return &hdr, nil
}

// setDirty sets or clears the dirty flag at its fixed header offset.
// The _e field sits at byte offset 13: {"_v":N,"_e":X
func setDirty(w *os.File, v bool) error {
	b := byte('0')
	if v {
		b = '1'
	}
	_, err := w.WriteAt([]byte{b}, 13)
	return err
}

// encode serialises the header to exactly HeaderSize bytes with padding.
func (h *Header) encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}

	padLen := HeaderSize - len(data) - 1
	if padLen < 0 {
		return nil, ErrCorruptHeader
	}

	buf := make([]byte, HeaderSize)
	copy(buf, data)
	for i := len(data); i < HeaderSize-1; i++ {
		buf[i] = ' '
	}
	buf[HeaderSize-1] = '\n'
	return buf, nil
}
