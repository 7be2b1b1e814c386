package indexkey

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// StableHash returns a 64-bit hash of b that is stable across runs and
// processes, as §4.2 requires for Hash-mode indexes. Go's built-in
// maphash/map iteration order are explicitly randomized per-process and
// cannot be used here; xxhash is a pure-Go, seedless, deterministic
// non-cryptographic hash well suited to hot index-key paths.
func StableHash(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// HashString hashes the normalised (case-folded, if applicable) content of
// a string for Hash-mode string indexes.
func HashString(s string, caseSensitive bool) uint64 {
	return StableHash([]byte(NormalizeString(s, caseSensitive)))
}

// HashElements hashes a whole list's content for a list property indexed
// with plain Hash mode (as opposed to HashElements/multi-entry mode): the
// element count followed by each element's bytes, length-delimited so that
// e.g. [1,23] and [12,3] never collide.
func HashElements(elements [][]byte) uint64 {
	var buf []byte
	var lenbuf [8]byte
	binary.BigEndian.PutUint64(lenbuf[:], uint64(len(elements)))
	buf = append(buf, lenbuf[:]...)
	for _, e := range elements {
		binary.BigEndian.PutUint64(lenbuf[:], uint64(len(e)))
		buf = append(buf, lenbuf[:]...)
		buf = append(buf, e...)
	}
	return StableHash(buf)
}
