package fulltext

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Key hash algorithm constants, selectable via Engine's configured Algorithm.
const (
	AlgXXHash3 = 1 // default, fastest
	AlgFNV1a   = 2 // no external dependency
	AlgBlake2b = 3 // best distribution
)

// hashKey generates a 16 hex character token from a document key or term
// using the selected algorithm. Nothing in the package calls it: posting
// keys and document keys are used as raw strings.
func hashKey(s string, alg int) string {
	switch alg {
	case AlgXXHash3:
		h := xxh3.HashString(s)
		return fmt.Sprintf("%016x", h)
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write([]byte(s))
		return fmt.Sprintf("%016x", h.Sum64())
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil)
		h.Write([]byte(s))
		return fmt.Sprintf("%016x", h.Sum(nil))
	default:
		return ""
	}
}
