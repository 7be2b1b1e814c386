// Package index implements one secondary index: building its key(s) from a
// stored object, inserting/removing entries under a write transaction, and
// scanning a key range. An Index owns no state of its own beyond its
// definition; all storage lives in the sub-database its DBI names.
package index

import (
	"encoding/binary"

	"github.com/kvdoc/isardb/internal/indexkey"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/schema"
)

// Index binds a compiled index definition to the sub-database that stores
// its entries. Non-unique indexes use a DupSort database keyed by the
// encoded component bytes, with an 8-byte big-endian id trailer as the
// value — duplicate values sort by id, giving ascending-id iteration order
// for ties (scenario S1). Unique indexes use a plain database where the
// encoded key maps directly to a single id value.
type Index struct {
	Def   schema.IndexDef
	DBI   kv.DBI
	Props []object.Property
}

// New binds def to dbi. props is the owning collection's full compiled
// property list, used to resolve each component's offset and type.
func New(def schema.IndexDef, dbi kv.DBI, props []object.Property) *Index {
	return &Index{Def: def, DBI: dbi, Props: props}
}

func idBytes(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func idFromBytes(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func (ix *Index) property(name string) (object.Property, error) {
	for _, p := range ix.Props {
		if p.Name == name {
			return p, nil
		}
	}
	return object.Property{}, isarerr.New(isarerr.IllegalArgument, "index %q: unknown property %q", ix.Def.Name, name)
}

// Keys returns every key buf produces under this index, exported for
// diagnostic audits (isarctl verify's index-coherence check) that need to
// recompute the expected key set independent of what is actually stored.
func (ix *Index) Keys(buf []byte) ([][]byte, error) {
	return ix.buildKeys(buf)
}

// buildKeys returns every key the given object produces under this index.
// Multi-entry indexes (first component a list in non-Hash mode) produce one
// key per element, each followed by the remaining components' encodings;
// every other index produces exactly one key.
func (ix *Index) buildKeys(buf []byte) ([][]byte, error) {
	if len(ix.Def.Components) == 0 {
		return nil, isarerr.New(isarerr.IllegalArgument, "index %q: no components", ix.Def.Name)
	}
	first := ix.Def.Components[0]
	firstProp, err := ix.property(first.Property)
	if err != nil {
		return nil, err
	}

	if ix.Def.IsMultiEntry(ix.Props) {
		return ix.buildMultiEntryKeys(buf, firstProp, first)
	}

	var key []byte
	k, err := encodeComponent(buf, firstProp, first)
	if err != nil {
		return nil, err
	}
	key = append(key, k...)

	for _, comp := range ix.Def.Components[1:] {
		p, err := ix.property(comp.Property)
		if err != nil {
			return nil, err
		}
		k, err := encodeComponent(buf, p, comp)
		if err != nil {
			return nil, err
		}
		key = append(key, k...)
	}
	return [][]byte{key}, nil
}

// buildMultiEntryKeys expands the first (list) component into one key per
// element, each with the trailing, non-list components appended unchanged.
func (ix *Index) buildMultiEntryKeys(buf []byte, firstProp object.Property, first schema.IndexComponent) ([][]byte, error) {
	elementKeys, err := encodeListElements(buf, firstProp, first)
	if err != nil {
		return nil, err
	}

	var tail []byte
	for _, comp := range ix.Def.Components[1:] {
		p, err := ix.property(comp.Property)
		if err != nil {
			return nil, err
		}
		k, err := encodeComponent(buf, p, comp)
		if err != nil {
			return nil, err
		}
		tail = append(tail, k...)
	}

	out := make([][]byte, len(elementKeys))
	for i, ek := range elementKeys {
		out[i] = append(append([]byte(nil), ek...), tail...)
	}
	return out, nil
}

// encodeComponent encodes a single, non-list component (Value or Hash mode).
func encodeComponent(buf []byte, p object.Property, comp schema.IndexComponent) ([]byte, error) {
	switch p.Type {
	case object.Byte:
		v := object.GetByte(buf, p)
		if comp.Mode == schema.ModeHash {
			return indexkey.EncodeHash(indexkey.StableHash([]byte{v})), nil
		}
		return indexkey.EncodeByte(v), nil
	case object.Int:
		v, _ := object.GetInt(buf, p)
		if comp.Mode == schema.ModeHash {
			return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeInt(v))), nil
		}
		return indexkey.EncodeInt(v), nil
	case object.Long:
		v, _ := object.GetLong(buf, p)
		if comp.Mode == schema.ModeHash {
			return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeLong(v))), nil
		}
		return indexkey.EncodeLong(v), nil
	case object.Float:
		v, _ := object.GetFloat(buf, p)
		if comp.Mode == schema.ModeHash {
			return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeFloat(v))), nil
		}
		return indexkey.EncodeFloat(v), nil
	case object.Double:
		v, _ := object.GetDouble(buf, p)
		if comp.Mode == schema.ModeHash {
			return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeDouble(v))), nil
		}
		return indexkey.EncodeDouble(v), nil
	case object.String:
		s, isNull := object.GetString(buf, p)
		if comp.Mode == schema.ModeHash {
			if isNull {
				return indexkey.EncodeHash(0), nil
			}
			return indexkey.EncodeHash(indexkey.HashString(s, comp.CaseSensitive)), nil
		}
		return indexkey.EncodeStringValue(s, isNull, comp.CaseSensitive), nil
	default:
		if p.Type.IsList() && comp.Mode == schema.ModeHash {
			return encodeListHash(buf, p, comp)
		}
		return nil, isarerr.New(isarerr.IllegalArgument, "index: unsupported component type %s in non-first position", p.Type)
	}
}

func encodeListHash(buf []byte, p object.Property, comp schema.IndexComponent) ([]byte, error) {
	elements, err := rawListElements(buf, p, comp)
	if err != nil {
		return nil, err
	}
	return indexkey.EncodeHash(indexkey.HashElements(elements)), nil
}

// rawListElements returns each element's raw bytes (pre-hash), in list
// order, for Hash mode over a whole list.
func rawListElements(buf []byte, p object.Property, comp schema.IndexComponent) ([][]byte, error) {
	switch p.Type {
	case object.ByteList:
		vs, isNull := object.GetByteList(buf, p)
		if isNull {
			return nil, nil
		}
		out := make([][]byte, len(vs))
		for i, v := range vs {
			out[i] = []byte{v}
		}
		return out, nil
	case object.IntList:
		vs, isNull := object.GetIntList(buf, p)
		if isNull {
			return nil, nil
		}
		out := make([][]byte, len(vs))
		for i, v := range vs {
			out[i] = indexkey.EncodeInt(v)
		}
		return out, nil
	case object.LongList:
		vs, isNull := object.GetLongList(buf, p)
		if isNull {
			return nil, nil
		}
		out := make([][]byte, len(vs))
		for i, v := range vs {
			out[i] = indexkey.EncodeLong(v)
		}
		return out, nil
	case object.FloatList:
		vs, isNull := object.GetFloatList(buf, p)
		if isNull {
			return nil, nil
		}
		out := make([][]byte, len(vs))
		for i, v := range vs {
			out[i] = indexkey.EncodeFloat(v)
		}
		return out, nil
	case object.DoubleList:
		vs, isNull := object.GetDoubleList(buf, p)
		if isNull {
			return nil, nil
		}
		out := make([][]byte, len(vs))
		for i, v := range vs {
			out[i] = indexkey.EncodeDouble(v)
		}
		return out, nil
	case object.StringList:
		vs, isNull := object.GetStringList(buf, p)
		if isNull {
			return nil, nil
		}
		out := make([][]byte, len(vs))
		for i, v := range vs {
			out[i] = []byte(indexkey.NormalizeString(v.Value, comp.CaseSensitive))
		}
		return out, nil
	default:
		return nil, isarerr.New(isarerr.IllegalArgument, "index: %s is not a list type", p.Type)
	}
}

// encodeListElements produces one key per list element for a multi-entry
// (HashElements or implicit-expansion) first component. A null list
// contributes zero keys; an empty, non-null list contributes exactly one
// key distinguishable from every element key.
func encodeListElements(buf []byte, p object.Property, comp schema.IndexComponent) ([][]byte, error) {
	raw, err := rawListElementsIncludingEmpty(buf, p, comp)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// emptyListMarker is the key used for a non-null, zero-length list under a
// multi-entry index: one 0xFF byte. It differs from every hash key (8
// bytes) and from every Int, Long, Float, Double and String element key,
// but it equals the Value-mode key of a ByteList element 255, and Int,
// Long, Float and Double element keys whose first byte is 0xFF sort
// after it.
var emptyListMarker = []byte{0xFF}

func rawListElementsIncludingEmpty(buf []byte, p object.Property, comp schema.IndexComponent) ([][]byte, error) {
	switch p.Type {
	case object.ByteList:
		vs, isNull := object.GetByteList(buf, p)
		return listToKeys(isNull, len(vs), func(i int) []byte {
			if comp.Mode == schema.ModeHashElements {
				return indexkey.EncodeHash(indexkey.StableHash([]byte{vs[i]}))
			}
			return indexkey.EncodeByte(vs[i])
		})
	case object.IntList:
		vs, isNull := object.GetIntList(buf, p)
		return listToKeys(isNull, len(vs), func(i int) []byte {
			if comp.Mode == schema.ModeHashElements {
				return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeInt(vs[i])))
			}
			return indexkey.EncodeInt(vs[i])
		})
	case object.LongList:
		vs, isNull := object.GetLongList(buf, p)
		return listToKeys(isNull, len(vs), func(i int) []byte {
			if comp.Mode == schema.ModeHashElements {
				return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeLong(vs[i])))
			}
			return indexkey.EncodeLong(vs[i])
		})
	case object.FloatList:
		vs, isNull := object.GetFloatList(buf, p)
		return listToKeys(isNull, len(vs), func(i int) []byte {
			if comp.Mode == schema.ModeHashElements {
				return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeFloat(vs[i])))
			}
			return indexkey.EncodeFloat(vs[i])
		})
	case object.DoubleList:
		vs, isNull := object.GetDoubleList(buf, p)
		return listToKeys(isNull, len(vs), func(i int) []byte {
			if comp.Mode == schema.ModeHashElements {
				return indexkey.EncodeHash(indexkey.StableHash(indexkey.EncodeDouble(vs[i])))
			}
			return indexkey.EncodeDouble(vs[i])
		})
	case object.StringList:
		vs, isNull := object.GetStringList(buf, p)
		return listToKeys(isNull, len(vs), func(i int) []byte {
			if comp.Mode == schema.ModeHashElements {
				if vs[i].IsNull {
					return indexkey.EncodeHash(0)
				}
				return indexkey.EncodeHash(indexkey.HashString(vs[i].Value, comp.CaseSensitive))
			}
			return indexkey.EncodeStringValue(vs[i].Value, vs[i].IsNull, comp.CaseSensitive)
		})
	default:
		return nil, isarerr.New(isarerr.IllegalArgument, "index: %s is not a list type", p.Type)
	}
}

func listToKeys(isNull bool, n int, at func(int) []byte) ([][]byte, error) {
	if isNull {
		return nil, nil
	}
	if n == 0 {
		return [][]byte{emptyListMarker}, nil
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = at(i)
	}
	return out, nil
}

// CreateForObject inserts every key this object produces, pointing at id.
// For each key of a unique index that already holds a different id,
// onConflict(existingID) is invoked; if it returns false the insertion is
// aborted (the collection layer uses this to implement UniqueViolation vs.
// replace-on-conflict).
func (ix *Index) CreateForObject(wtx kv.RwTx, id int64, buf []byte, onConflict func(existingID int64) (bool, error)) error {
	keys, err := ix.buildKeys(buf)
	if err != nil {
		return err
	}
	val := idBytes(id)

	for _, key := range keys {
		if ix.Def.Unique {
			existing, ok, err := wtx.Get(ix.DBI, key)
			if err != nil {
				return err
			}
			if ok {
				existingID := idFromBytes(existing)
				if existingID == id {
					continue
				}
				if onConflict != nil {
					proceed, err := onConflict(existingID)
					if err != nil {
						return err
					}
					if !proceed {
						return isarerr.Unique(ix.Def.Name)
					}
				} else {
					return isarerr.Unique(ix.Def.Name)
				}
			}
			if err := wtx.Put(ix.DBI, key, val); err != nil {
				return err
			}
			continue
		}

		if err := wtx.Put(ix.DBI, key, val); err != nil {
			return err
		}
	}
	return nil
}

// DeleteForObject removes every key this object produces for id. The
// caller always passes the object's OLD bytes (before a replace), so that a
// multi-entry index's full original key set is removed even where a
// replacement's list overlaps it.
func (ix *Index) DeleteForObject(wtx kv.RwTx, id int64, buf []byte) error {
	keys, err := ix.buildKeys(buf)
	if err != nil {
		return err
	}
	val := idBytes(id)
	for _, key := range keys {
		if ix.Def.Unique {
			if err := wtx.Delete(ix.DBI, key, nil); err != nil {
				return err
			}
			continue
		}
		if err := wtx.Delete(ix.DBI, key, val); err != nil {
			return err
		}
	}
	return nil
}

// GetID returns the first id stored under key, in ascending order.
func (ix *Index) GetID(rtx kv.RoTx, key []byte) (int64, bool, error) {
	if ix.Def.Unique {
		v, ok, err := rtx.Get(ix.DBI, key)
		if err != nil || !ok {
			return 0, false, err
		}
		return idFromBytes(v), true, nil
	}

	cur, err := rtx.Cursor(ix.DBI)
	if err != nil {
		return 0, false, err
	}
	defer cur.Close()

	var (
		id    int64
		found bool
	)
	err = cur.IterDups(key, func(v []byte) (bool, error) {
		id = idFromBytes(v)
		found = true
		return false, nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, found, nil
}

// IterBetween streams ids for keys in [lower, upper), in key order
// (descending if ascending is false). skipDuplicates collapses runs of
// equal keys in a non-unique index down to their first id.
func (ix *Index) IterBetween(rtx kv.RoTx, lower, upper []byte, skipDuplicates, ascending bool, fn func(id int64) (bool, error)) error {
	cur, err := rtx.Cursor(ix.DBI)
	if err != nil {
		return err
	}
	defer cur.Close()

	return cur.IterBetween(lower, upper, skipDuplicates, ascending, func(k, v []byte) (bool, error) {
		return fn(idFromBytes(v))
	})
}

// Clear empties the index's sub-database.
func (ix *Index) Clear(wtx kv.RwTx) error {
	return wtx.Drop(ix.DBI)
}
