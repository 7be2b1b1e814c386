package object

// Builder assembles a packed binary object from typed values for a
// compiled property list. It exists to give this package's own tests (and
// the collection/index/query/txn suites built on top of it) valid fixture
// objects to exercise without a second, independent implementation to
// diff against; it is not the caller-facing object builder, which is an
// external collaborator out of scope for this module.
type Builder struct {
	props      []Property
	staticSize int
	statics    []byte
	dynamic    []dynValue
}

type dynValue struct {
	prop Property
	// one of:
	bytes   []byte          // String, ByteList payload
	ints    []int32         // IntList
	longs   []int64         // LongList
	floats  []float32       // FloatList
	doubles []float64       // DoubleList
	strs    []StringElement // StringList
	isNull  bool
}

// NewBuilder creates a Builder for an already-Compile'd property list.
func NewBuilder(props []Property, staticSize int) *Builder {
	return &Builder{
		props:      props,
		staticSize: staticSize,
		statics:    make([]byte, staticSize),
	}
}

func (b *Builder) find(name string) Property {
	for _, p := range b.props {
		if p.Name == name {
			return p
		}
	}
	panic("object: unknown property " + name)
}

func (b *Builder) PutByte(name string, v byte) {
	p := b.find(name)
	b.statics[p.Offset] = v
}

func (b *Builder) PutInt(name string, v int32) {
	p := b.find(name)
	putU32(b.statics, p.Offset, uint32(v))
}

func (b *Builder) PutIntNull(name string) { b.PutInt(name, NullInt) }

func (b *Builder) PutLong(name string, v int64) {
	p := b.find(name)
	putU64(b.statics, p.Offset, uint64(v))
}

func (b *Builder) PutLongNull(name string) { b.PutLong(name, NullLong) }

func (b *Builder) PutFloat(name string, v float32) {
	p := b.find(name)
	putU32(b.statics, p.Offset, floatBits(v))
}

func (b *Builder) PutFloatNull(name string) { b.PutFloat(name, NullFloat32) }

func (b *Builder) PutDouble(name string, v float64) {
	p := b.find(name)
	putU64(b.statics, p.Offset, doubleBits(v))
}

func (b *Builder) PutDoubleNull(name string) { b.PutDouble(name, NullFloat64) }

func (b *Builder) PutString(name string, v string, isNull bool) {
	p := b.find(name)
	b.dynamic = append(b.dynamic, dynValue{prop: p, bytes: []byte(v), isNull: isNull})
}

func (b *Builder) PutByteList(name string, v []byte, isNull bool) {
	p := b.find(name)
	b.dynamic = append(b.dynamic, dynValue{prop: p, bytes: v, isNull: isNull})
}

func (b *Builder) PutIntList(name string, v []int32, isNull bool) {
	p := b.find(name)
	b.dynamic = append(b.dynamic, dynValue{prop: p, ints: v, isNull: isNull})
}

func (b *Builder) PutLongList(name string, v []int64, isNull bool) {
	p := b.find(name)
	b.dynamic = append(b.dynamic, dynValue{prop: p, longs: v, isNull: isNull})
}

func (b *Builder) PutFloatList(name string, v []float32, isNull bool) {
	p := b.find(name)
	b.dynamic = append(b.dynamic, dynValue{prop: p, floats: v, isNull: isNull})
}

func (b *Builder) PutDoubleList(name string, v []float64, isNull bool) {
	p := b.find(name)
	b.dynamic = append(b.dynamic, dynValue{prop: p, doubles: v, isNull: isNull})
}

func (b *Builder) PutStringList(name string, v []StringElement, isNull bool) {
	p := b.find(name)
	b.dynamic = append(b.dynamic, dynValue{prop: p, strs: v, isNull: isNull})
}

// Build lays out the dynamic tail after the static header and returns the
// finished object bytes.
func (b *Builder) Build() []byte {
	buf := make([]byte, b.staticSize)
	copy(buf, b.statics)

	off := b.staticSize
	for _, dv := range b.dynamic {
		if dv.isNull {
			putDescriptor(buf, dv.prop.Offset, 0, 0)
			continue
		}
		switch dv.prop.Type {
		case String, ByteList:
			length := len(dv.bytes)
			putDescriptor(buf, dv.prop.Offset, uint32(off), uint32(length))
			buf = append(buf, dv.bytes...)
			off += length
		case IntList, FloatList:
			buf, off = alignTail(buf, off, 4)
			putDescriptor(buf, dv.prop.Offset, uint32(off), uint32(len(dv.ints)+len(dv.floats)))
			if dv.prop.Type == IntList {
				for _, v := range dv.ints {
					buf = appendU32(buf, uint32(v))
				}
				off += 4 * len(dv.ints)
			} else {
				for _, v := range dv.floats {
					buf = appendU32(buf, floatBits(v))
				}
				off += 4 * len(dv.floats)
			}
		case LongList, DoubleList:
			buf, off = alignTail(buf, off, 8)
			n := len(dv.longs) + len(dv.doubles)
			putDescriptor(buf, dv.prop.Offset, uint32(off), uint32(n))
			if dv.prop.Type == LongList {
				for _, v := range dv.longs {
					buf = appendU64(buf, uint64(v))
				}
				off += 8 * len(dv.longs)
			} else {
				for _, v := range dv.doubles {
					buf = appendU64(buf, doubleBits(v))
				}
				off += 8 * len(dv.doubles)
			}
		case StringList:
			n := len(dv.strs)
			putDescriptor(buf, dv.prop.Offset, uint32(off), uint32(n))
			descStart := off
			buf = append(buf, make([]byte, n*8)...)
			off += n * 8
			for i, el := range dv.strs {
				descOff := uint32(descStart + i*8)
				if el.IsNull {
					putDescriptor(buf, descOff, 0, 0)
					continue
				}
				putDescriptor(buf, descOff, uint32(off), uint32(len(el.Value)))
				buf = append(buf, []byte(el.Value)...)
				off += len(el.Value)
			}
		}
	}
	return buf
}

// alignTail pads buf with zero bytes (no descriptor of their own) until off
// is a multiple of align, matching layout.go's static-header alignUp so a
// list payload's dataOff always satisfies verify.go's verifyListBounds
// alignment check.
func alignTail(buf []byte, off, align int) ([]byte, int) {
	padded := alignUp(off, align)
	if padded > off {
		buf = append(buf, make([]byte, padded-off)...)
	}
	return buf, padded
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	putU32(tmp[:], 0, v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	putU64(tmp[:], 0, v)
	return append(buf, tmp[:]...)
}
