package fulltext

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder — both are documented as safe for concurrent use.
// Constructing them is expensive (dictionaries, internal tables), so this
// pays that cost once rather than per stored field value.
//
// SpeedFastest: HandleMap compresses every mapped field value on the
// indexing hot path. Decompression runs in buildSearcher, once per stored
// value of every live document on each searcher rebuild.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compressValue compresses and ascii85-encodes a stored field value so it
// can be embedded directly in a JSON string without escaping concerns.
func compressValue(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	compressed := zstdEncoder.EncodeAll(data, nil)

	var encoded bytes.Buffer
	enc := ascii85.NewEncoder(&encoded)
	_, _ = enc.Write(compressed)
	_ = enc.Close()
	return encoded.String()
}

func decompressValue(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	dec := ascii85.NewDecoder(bytes.NewReader([]byte(encoded)))
	compressed, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: ascii85: %w", ErrDecompress, err)
	}

	out, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrDecompress, err)
	}
	return out, nil
}
