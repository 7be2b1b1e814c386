package object

import (
	"encoding/binary"
	"math"
)

func floatBits(v float32) uint32  { return math.Float32bits(v) }
func doubleBits(v float64) uint64 { return math.Float64bits(v) }

func readU32(b []byte, off uint32) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

func readU64(b []byte, off uint32) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

func putU32(b []byte, off uint32, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

func putU64(b []byte, off uint32, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// descriptor reads the (offset, length) pair for a dynamic property.
func descriptor(buf []byte, off uint32) (dataOff, length uint32) {
	return readU32(buf, off), readU32(buf, off+4)
}

func putDescriptor(buf []byte, off, dataOff, length uint32) {
	putU32(buf, off, dataOff)
	putU32(buf, off+4, length)
}
