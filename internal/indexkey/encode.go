// Package indexkey encodes typed scalar values into byte strings whose
// lexicographic order matches the value's natural order, so that a
// memory-mapped B+tree's native byte-string ordering can serve as a
// secondary index without any custom comparator.
package indexkey

import (
	"encoding/binary"
	"math"
	"strings"
)

// MaxStringIndexSize is the maximum number of bytes of a string's UTF-8
// encoding carried into a Value-mode index key; longer strings are
// truncated before the terminator is appended.
const MaxStringIndexSize = 1024

// EncodeByte encodes a Byte value. The raw byte already sorts correctly.
func EncodeByte(v byte) []byte {
	return []byte{v}
}

// EncodeInt encodes an Int (i32) value as big-endian with the sign bit
// flipped, so i32::MIN maps to all-zero bytes and i32::MAX to all-ones.
func EncodeInt(v int32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(v)^0x8000_0000)
	return out
}

// EncodeLong encodes a Long (i64) value the same way as EncodeInt.
func EncodeLong(v int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(v)^0x8000_0000_0000_0000)
	return out
}

// EncodeFloat encodes a Float (f32) value as big-endian IEEE 754 with the
// order-preserving transform: flip the sign bit if clear, flip every bit
// if set. NaN (the null sentinel) maps to the minimum key of all floats.
func EncodeFloat(v float32) []byte {
	bits := math.Float32bits(v)
	out := make([]byte, 4)
	switch {
	case v != v: // NaN
		binary.BigEndian.PutUint32(out, 0)
	case bits&0x8000_0000 == 0:
		binary.BigEndian.PutUint32(out, bits^0x8000_0000)
	default:
		binary.BigEndian.PutUint32(out, ^bits)
	}
	return out
}

// EncodeDouble encodes a Double (f64) value the same way as EncodeFloat.
func EncodeDouble(v float64) []byte {
	bits := math.Float64bits(v)
	out := make([]byte, 8)
	switch {
	case v != v: // NaN
		binary.BigEndian.PutUint64(out, 0)
	case bits&0x8000_0000_0000_0000 == 0:
		binary.BigEndian.PutUint64(out, bits^0x8000_0000_0000_0000)
	default:
		binary.BigEndian.PutUint64(out, ^bits)
	}
	return out
}

// NormalizeString applies the case folding a Value-mode or Hash-mode
// string index performs before encoding: lower-cased unless the index was
// declared case-sensitive.
func NormalizeString(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// EncodeStringValue encodes a String property in Value mode: the
// (optionally case-folded) UTF-8 bytes, truncated to MaxStringIndexSize,
// followed by a 0x00 terminator. A null string encodes as an empty key
// with no terminator, which sorts before every non-null string.
func EncodeStringValue(s string, isNull, caseSensitive bool) []byte {
	if isNull {
		return []byte{}
	}
	norm := NormalizeString(s, caseSensitive)
	b := []byte(norm)
	if len(b) > MaxStringIndexSize {
		b = b[:MaxStringIndexSize]
	}
	out := make([]byte, len(b)+1)
	copy(out, b)
	out[len(b)] = 0x00
	return out
}

// EncodeHash encodes a stable 64-bit hash as a big-endian key.
func EncodeHash(h uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, h)
	return out
}
