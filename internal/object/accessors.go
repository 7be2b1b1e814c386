package object

import "math"

// GetByte returns the Byte property's value. Byte has no separate null
// state distinct from its sentinel: 0 serves both as "unset" and as a
// legitimate value, matching the engine-wide null sentinel table.
func GetByte(buf []byte, p Property) byte {
	return buf[p.Offset]
}

// GetInt returns the Int property's value and whether it is null.
func GetInt(buf []byte, p Property) (int32, bool) {
	v := int32(readU32(buf, p.Offset))
	return v, v == NullInt
}

// GetLong returns the Long property's value and whether it is null.
func GetLong(buf []byte, p Property) (int64, bool) {
	v := int64(readU64(buf, p.Offset))
	return v, v == NullLong
}

// GetFloat returns the Float property's value and whether it is null.
func GetFloat(buf []byte, p Property) (float32, bool) {
	v := math.Float32frombits(readU32(buf, p.Offset))
	return v, IsNullFloat32(v)
}

// GetDouble returns the Double property's value and whether it is null.
func GetDouble(buf []byte, p Property) (float64, bool) {
	v := math.Float64frombits(readU64(buf, p.Offset))
	return v, IsNullFloat64(v)
}

// GetString returns the String property's value and whether it is null.
// A null string is represented by a zero descriptor offset.
func GetString(buf []byte, p Property) (string, bool) {
	dataOff, length := descriptor(buf, p.Offset)
	if dataOff == 0 {
		return "", true
	}
	return string(buf[dataOff : dataOff+length]), false
}

// GetByteList returns the ByteList property's elements and whether the
// list itself is null.
func GetByteList(buf []byte, p Property) ([]byte, bool) {
	dataOff, length := descriptor(buf, p.Offset)
	if dataOff == 0 {
		return nil, true
	}
	out := make([]byte, length)
	copy(out, buf[dataOff:dataOff+length])
	return out, false
}

// GetIntList returns the IntList property's elements and whether the list
// itself is null. Elements equal to NullInt are the list's own null
// elements, per the object format's "element-type null encoding" rule.
func GetIntList(buf []byte, p Property) ([]int32, bool) {
	dataOff, length := descriptor(buf, p.Offset)
	if dataOff == 0 {
		return nil, true
	}
	out := make([]int32, length)
	for i := range out {
		out[i] = int32(readU32(buf, dataOff+uint32(i)*4))
	}
	return out, false
}

// GetLongList returns the LongList property's elements and whether the
// list itself is null.
func GetLongList(buf []byte, p Property) ([]int64, bool) {
	dataOff, length := descriptor(buf, p.Offset)
	if dataOff == 0 {
		return nil, true
	}
	out := make([]int64, length)
	for i := range out {
		out[i] = int64(readU64(buf, dataOff+uint32(i)*8))
	}
	return out, false
}

// GetFloatList returns the FloatList property's elements and whether the
// list itself is null.
func GetFloatList(buf []byte, p Property) ([]float32, bool) {
	dataOff, length := descriptor(buf, p.Offset)
	if dataOff == 0 {
		return nil, true
	}
	out := make([]float32, length)
	for i := range out {
		out[i] = math.Float32frombits(readU32(buf, dataOff+uint32(i)*4))
	}
	return out, false
}

// GetDoubleList returns the DoubleList property's elements and whether
// the list itself is null.
func GetDoubleList(buf []byte, p Property) ([]float64, bool) {
	dataOff, length := descriptor(buf, p.Offset)
	if dataOff == 0 {
		return nil, true
	}
	out := make([]float64, length)
	for i := range out {
		out[i] = math.Float64frombits(readU64(buf, dataOff+uint32(i)*8))
	}
	return out, false
}

// StringElement is one slot of a decoded StringList: either a value or a
// per-element null, distinct from the list itself being null.
type StringElement struct {
	Value  string
	IsNull bool
}

// GetStringList returns the StringList property's elements and whether the
// list itself is null. Each element carries its own descriptor, so
// individual elements may be null even when the list is not.
func GetStringList(buf []byte, p Property) ([]StringElement, bool) {
	dataOff, length := descriptor(buf, p.Offset)
	if dataOff == 0 {
		return nil, true
	}
	out := make([]StringElement, length)
	for i := range out {
		elemDescOff := dataOff + uint32(i)*8
		elemOff, elemLen := descriptor(buf, elemDescOff)
		if elemOff == 0 {
			out[i] = StringElement{IsNull: true}
			continue
		}
		out[i] = StringElement{Value: string(buf[elemOff : elemOff+elemLen])}
	}
	return out, false
}
