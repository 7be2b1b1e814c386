// Package object implements the packed binary object format described by
// the engine's schema: a fixed header of byte/int/long-sized properties
// followed by a dynamic tail holding list and string payloads.
//
// Scalar accessors read directly out of the backing slice; list and string
// accessors return a fresh copy of the payload, so the result does not
// alias the object's bytes.
package object

import "math"

// DataType enumerates the property types a schema can declare.
type DataType uint8

const (
	Byte DataType = iota
	Int
	Long
	Float
	Double
	String
	ByteList
	IntList
	LongList
	FloatList
	DoubleList
	StringList
)

func (t DataType) String() string {
	switch t {
	case Byte:
		return "Byte"
	case Int:
		return "Int"
	case Long:
		return "Long"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case String:
		return "String"
	case ByteList:
		return "ByteList"
	case IntList:
		return "IntList"
	case LongList:
		return "LongList"
	case FloatList:
		return "FloatList"
	case DoubleList:
		return "DoubleList"
	case StringList:
		return "StringList"
	default:
		return "Unknown"
	}
}

// IsDynamic reports whether the type lives in the dynamic tail (behind an
// 8-byte offset+length descriptor) rather than the static header.
func (t DataType) IsDynamic() bool {
	return t == String || t.IsList()
}

// IsList reports whether the type is any list variant.
func (t DataType) IsList() bool {
	switch t {
	case ByteList, IntList, LongList, FloatList, DoubleList, StringList:
		return true
	default:
		return false
	}
}

// ElementSize returns the natural size, in bytes, of one element of a list
// type. Panics for non-list types; callers must check IsList first.
func (t DataType) ElementSize() int {
	switch t {
	case ByteList:
		return 1
	case IntList, FloatList:
		return 4
	case LongList, DoubleList:
		return 8
	case StringList:
		return 8 // (offset, length) descriptor pair per element
	default:
		panic("object: ElementSize of non-list type " + t.String())
	}
}

// StaticSize returns the fixed width, in bytes, a single static (non-list,
// non-string) value of the type occupies in the header.
func (t DataType) StaticSize() int {
	switch t {
	case Byte:
		return 1
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		panic("object: StaticSize of dynamic type " + t.String())
	}
}

// Property is a compiled schema field: a name, a data type, and the byte
// offset assigned to it by Compile. Offsets are immutable for the life of
// the database file once a collection has been created with them.
type Property struct {
	Name   string
	Type   DataType
	Offset uint32
}

// Null sentinels, per the engine-wide invariant that every fixed-width
// scalar has a reserved bit pattern meaning "no value", used both when
// decoding objects and as the minimum of every index key's natural order.
const (
	NullByte = 0
)

// NullInt is the sentinel null value for Int properties (i32::MIN).
const NullInt int32 = math.MinInt32

// NullLong is the sentinel null value for Long properties (i64::MIN).
const NullLong int64 = math.MinInt64

// NullFloat32 is the canonical quiet-NaN written for a null Float property.
// Reading treats ANY NaN bit pattern as null (see IsNullFloat32): a quiet-NaN
// is not a single bit pattern, and the encoder must not assume it wrote the
// one it later reads back.
var NullFloat32 = float32(math.NaN())

// NullFloat64 is the canonical quiet-NaN written for a null Double property.
var NullFloat64 = math.NaN()

// IsNullFloat32 reports whether v is the null sentinel for a Float
// property. Uses math.IsNaN semantics (bit-pattern-agnostic) per the
// engine-wide rule that every NaN bit pattern is treated uniformly.
func IsNullFloat32(v float32) bool {
	return v != v
}

// IsNullFloat64 reports whether v is the null sentinel for a Double
// property.
func IsNullFloat64(v float64) bool {
	return v != v
}
