package object

// alignUp rounds n up to the next multiple of align (align must be a power
// of two).
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Compile assigns byte offsets to a property list per the object format:
//
//  1. all Byte properties, one byte each
//  2. padding to align to 4
//  3. all Int and Float properties, 4 bytes each, in declaration order
//  4. padding to align to 8
//  5. all Long and Double properties, 8 bytes each, in declaration order
//  6. an 8-byte (offset, length) descriptor for each dynamic property
//     (String and every list type), in declaration order
//
// It returns a copy of props with Offset populated and the total static
// header size (the minimum valid object length before any dynamic payload).
// Offsets, once computed for a collection's registered schema, must never
// be recomputed: doing so would invalidate every object already on disk.
func Compile(props []Property) ([]Property, int) {
	out := make([]Property, len(props))
	copy(out, props)

	off := 0
	for i := range out {
		if out[i].Type == Byte {
			out[i].Offset = uint32(off)
			off++
		}
	}

	off = alignUp(off, 4)
	for i := range out {
		if out[i].Type == Int || out[i].Type == Float {
			out[i].Offset = uint32(off)
			off += 4
		}
	}

	off = alignUp(off, 8)
	for i := range out {
		if out[i].Type == Long || out[i].Type == Double {
			out[i].Offset = uint32(off)
			off += 8
		}
	}

	for i := range out {
		if out[i].Type.IsDynamic() {
			out[i].Offset = uint32(off)
			off += 8 // (offset: u32, length: u32) descriptor
		}
	}

	return out, off
}
