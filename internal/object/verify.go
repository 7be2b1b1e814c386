package object

import (
	"unicode/utf8"

	"github.com/kvdoc/isardb/isarerr"
)

// Verify checks that buf is a well-formed object for the given compiled
// property list and static header size, rejecting anything Collection.Put
// must not be allowed to write. It checks: minimum length, every dynamic
// descriptor's offset lies inside the buffer, descriptor ranges do not run
// past the end of the buffer, list element alignment holds, and every
// String payload decodes as UTF-8.
func Verify(props []Property, staticSize int, buf []byte) error {
	if len(buf) < staticSize {
		return isarerr.New(isarerr.IllegalArgument,
			"object: buffer of %d bytes shorter than static header of %d bytes", len(buf), staticSize)
	}

	for _, p := range props {
		if !p.Type.IsDynamic() {
			continue
		}
		dataOff, length := descriptor(buf, p.Offset)
		if dataOff == 0 {
			if length != 0 {
				return isarerr.New(isarerr.IllegalArgument,
					"object: property %q has null offset but non-zero length", p.Name)
			}
			continue
		}
		if int(dataOff) > len(buf) {
			return isarerr.New(isarerr.IllegalArgument,
				"object: property %q descriptor offset %d past end of buffer (%d bytes)", p.Name, dataOff, len(buf))
		}

		switch p.Type {
		case String, ByteList:
			end := uint64(dataOff) + uint64(length)
			if end > uint64(len(buf)) {
				return isarerr.New(isarerr.IllegalArgument,
					"object: property %q payload [%d:%d] overruns buffer of %d bytes", p.Name, dataOff, end, len(buf))
			}
			if p.Type == String {
				if !utf8.Valid(buf[dataOff:end]) {
					return isarerr.New(isarerr.IllegalArgument, "object: property %q is not valid UTF-8", p.Name)
				}
			}
		case IntList, FloatList:
			if err := verifyListBounds(p, buf, dataOff, length, 4); err != nil {
				return err
			}
		case LongList, DoubleList:
			if err := verifyListBounds(p, buf, dataOff, length, 8); err != nil {
				return err
			}
		case StringList:
			descEnd := uint64(dataOff) + uint64(length)*8
			if descEnd > uint64(len(buf)) {
				return isarerr.New(isarerr.IllegalArgument,
					"object: property %q string-list descriptors overrun buffer", p.Name)
			}
			for i := uint32(0); i < length; i++ {
				elemOff, elemLen := descriptor(buf, dataOff+i*8)
				if elemOff == 0 {
					continue
				}
				if int(elemOff) > len(buf) {
					return isarerr.New(isarerr.IllegalArgument,
						"object: property %q element %d offset past end of buffer", p.Name, i)
				}
				end := uint64(elemOff) + uint64(elemLen)
				if end > uint64(len(buf)) {
					return isarerr.New(isarerr.IllegalArgument,
						"object: property %q element %d payload overruns buffer", p.Name, i)
				}
				if !utf8.Valid(buf[elemOff:end]) {
					return isarerr.New(isarerr.IllegalArgument, "object: property %q element %d is not valid UTF-8", p.Name, i)
				}
			}
		}
	}
	return nil
}

func verifyListBounds(p Property, buf []byte, dataOff, length uint32, elemSize int) error {
	if dataOff%uint32(elemSize) != 0 {
		return isarerr.New(isarerr.IllegalArgument,
			"object: property %q payload offset %d is not aligned to its element size %d", p.Name, dataOff, elemSize)
	}
	end := uint64(dataOff) + uint64(length)*uint64(elemSize)
	if end > uint64(len(buf)) {
		return isarerr.New(isarerr.IllegalArgument,
			"object: property %q list payload overruns buffer of %d bytes", p.Name, len(buf))
	}
	return nil
}
