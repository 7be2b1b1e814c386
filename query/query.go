// Package query implements the where-clause planner and residual filter
// evaluator: composing one or more range scans (primary id range or
// secondary index range), deduplicating overlapping results, and applying
// a boolean filter tree to each candidate object.
package query

import (
	"github.com/kvdoc/isardb/collection"
	"github.com/kvdoc/isardb/index"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
)

// Resolver looks up a sibling collection by name, used only by the Link
// filter node to recurse into a target collection's own query engine.
type Resolver interface {
	Collection(name string) (*collection.Collection, error)
}

// Context carries the per-evaluation collaborators a Filter tree needs
// beyond the candidate object's own bytes.
type Context struct {
	RTx      kv.RoTx
	Resolver Resolver
}

// WhereClause is either an Id range over the primary store or an Index
// range over one secondary index.
type WhereClause struct {
	IsIndex bool

	// Id variant.
	LowerID, UpperID             int64
	IncludeLowerID, IncludeUpperID bool

	// Index variant.
	IndexName                         string
	LowerKey, UpperKey                []byte
	IncludeLowerKey, IncludeUpperKey bool
	SkipDuplicates                    bool
	Ascending                         bool
}

// hasDuplicates reports whether this clause alone can yield the same id
// more than once: a non-unique, multi-entry index scanned without
// SkipDuplicates.
func (w WhereClause) hasDuplicates(c *collection.Collection) bool {
	if !w.IsIndex {
		return false
	}
	if w.SkipDuplicates {
		return false
	}
	for _, ix := range c.Indexes {
		if ix.Def.Name == w.IndexName {
			return ix.Def.IsMultiEntry(c.Schema.Properties)
		}
	}
	return false
}

// overlaps reports whether two where-clauses can ever produce the same id:
// two Id clauses overlap iff their ranges intersect; two Index clauses
// overlap iff they name the same index and their key ranges intersect; an
// Id clause and an Index clause never overlap.
func overlaps(a, b WhereClause) bool {
	if a.IsIndex != b.IsIndex {
		return false
	}
	if !a.IsIndex {
		return a.LowerID <= b.UpperID && b.LowerID <= a.UpperID
	}
	if a.IndexName != b.IndexName {
		return false
	}
	// a nil upper key is unbounded
	return (b.UpperKey == nil || compareKeys(a.LowerKey, b.UpperKey) <= 0) &&
		(a.UpperKey == nil || compareKeys(b.LowerKey, a.UpperKey) <= 0)
}

func compareKeys(a, b []byte) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Query is a compiled, ready-to-execute query against one collection.
type Query struct {
	Collection *collection.Collection
	Resolver   Resolver
	Wheres     []WhereClause
	Filter     Filter
	Distinct   bool
	Offset     int
	Limit      int // 0 means unlimited
}

// needsDedup reports whether the executor must track already-seen ids:
// true if any pair of where-clauses overlaps, or any single clause can
// itself produce duplicate ids.
func (q *Query) needsDedup() bool {
	if q.Distinct {
		return true
	}
	for i := range q.Wheres {
		if q.Wheres[i].hasDuplicates(q.Collection) {
			return true
		}
		for j := i + 1; j < len(q.Wheres); j++ {
			if overlaps(q.Wheres[i], q.Wheres[j]) {
				return true
			}
		}
	}
	return false
}

// candidate is one id surfaced by a where-clause, resolved to its bytes.
type candidate struct {
	id  int64
	buf []byte
}

func (q *Query) scan(rtx kv.RoTx, w WhereClause, fn func(candidate) (bool, error)) error {
	if !w.IsIndex {
		cur, err := rtx.Cursor(q.Collection.PrimaryDBI)
		if err != nil {
			return err
		}
		defer cur.Close()
		lower, upper := idRangeBytes(w)
		return cur.IterBetween(lower, upper, false, true, func(k, v []byte) (bool, error) {
			return fn(candidate{id: idFromKey(k), buf: v})
		})
	}

	var ix *index.Index
	for _, cix := range q.Collection.Indexes {
		if cix.Def.Name == w.IndexName {
			ix = cix
			break
		}
	}
	if ix == nil {
		return isarerr.New(isarerr.IllegalArgument, "query: unknown index %q", w.IndexName)
	}

	// IterBetween scans [lower, upper); a key with 0x00 appended is the
	// smallest key greater than it
	lowerKey, upperKey := w.LowerKey, w.UpperKey
	if lowerKey != nil && !w.IncludeLowerKey {
		lowerKey = append(append([]byte(nil), lowerKey...), 0)
	}
	if upperKey != nil && w.IncludeUpperKey {
		upperKey = append(append([]byte(nil), upperKey...), 0)
	}
	return ix.IterBetween(rtx, lowerKey, upperKey, w.SkipDuplicates, w.Ascending, func(id int64) (bool, error) {
		buf, ok, err := q.Collection.Get(rtx, id)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil // record removed since the index entry was written this txn's view; skip
		}
		return fn(candidate{id: id, buf: buf})
	})
}

func idRangeBytes(w WhereClause) ([]byte, []byte) {
	// a bound at the very end of the id space leaves that side open, so the
	// Builder's default clause scans the whole primary store
	var lower, upper []byte
	if w.LowerID > collection.NoID+1 {
		lower = idKeyOrNil(w.LowerID, w.IncludeLowerID, false)
	}
	if w.UpperID < 1<<63-1 || !w.IncludeUpperID {
		upper = idKeyOrNil(w.UpperID, w.IncludeUpperID, true)
	}
	return lower, upper
}

// idKeyOrNil turns one id bound into a key for IterBetween, whose lower
// bound is inclusive and whose upper bound is exclusive.
func idKeyOrNil(id int64, include, isUpper bool) []byte {
	adj := id
	if isUpper && include {
		adj++
	}
	if !isUpper && !include {
		adj++
	}
	return idKey(adj)
}

func idKey(id int64) []byte {
	b := make([]byte, 8)
	putBE64(b, uint64(id))
	return b
}

func idFromKey(b []byte) int64 {
	return int64(getBE64(b))
}

func putBE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}

func getBE64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// FindAll streams every matching object's (id, bytes) to fn in where-clause
// order (id-range ascending within a clause, clauses in declaration order),
// applying the residual filter and, when needed, id-dedup.
func (q *Query) FindAll(rtx kv.RoTx, fn func(id int64, buf []byte) (bool, error)) error {
	seen := map[int64]bool{}
	dedup := q.needsDedup()
	skipped, emitted := 0, 0

	for _, w := range q.Wheres {
		err := q.scan(rtx, w, func(c candidate) (bool, error) {
			if dedup {
				if seen[c.id] {
					return true, nil
				}
				seen[c.id] = true
			}
			if q.Filter != nil {
				ok, err := q.Filter.Eval(q.Collection, c.id, c.buf, &Context{RTx: rtx, Resolver: q.Resolver})
				if err != nil {
					return false, err
				}
				if !ok {
					return true, nil
				}
			}
			if skipped < q.Offset {
				skipped++
				return true, nil
			}
			emitted++
			keepGoing, err := fn(c.id, c.buf)
			if err != nil {
				return false, err
			}
			if q.Limit > 0 && emitted >= q.Limit {
				return false, nil
			}
			return keepGoing, nil
		})
		if err != nil {
			return err
		}
		if q.Limit > 0 && emitted >= q.Limit {
			break
		}
	}
	return nil
}

// Count returns the number of matching records.
func (q *Query) Count(rtx kv.RoTx) (int, error) {
	n := 0
	err := q.FindAll(rtx, func(id int64, buf []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// DeleteAll deletes every matching record through Collection.Delete, inside
// the same write transaction, and returns how many were removed. Ids are
// collected before deleting any of them, since Collection.Delete mutates
// the very primary cursor FindAll streams from.
func (q *Query) DeleteAll(wtx kv.RwTx) (int, error) {
	var ids []int64
	if err := q.FindAll(wtx, func(id int64, buf []byte) (bool, error) {
		ids = append(ids, id)
		return true, nil
	}); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		existed, err := q.Collection.Delete(wtx, id)
		if err != nil {
			return n, err
		}
		if existed {
			n++
		}
	}
	return n, nil
}

// AggregateOp selects the reduction Aggregate performs over one property.
type AggregateOp int

const (
	AggMin AggregateOp = iota
	AggMax
	AggSum
	AggAvg
	AggCount
)

// Aggregate reduces the named numeric property across every matching
// record. Null values are excluded from Min/Max/Sum/Avg; Count counts
// matching records regardless of nullness.
func (q *Query) Aggregate(rtx kv.RoTx, op AggregateOp, propertyName string) (float64, error) {
	prop, ok := q.Collection.Schema.Property(propertyName)
	if !ok {
		return 0, isarerr.New(isarerr.IllegalArgument, "query: unknown property %q", propertyName)
	}

	if op == AggCount {
		n, err := q.Count(rtx)
		return float64(n), err
	}

	var (
		sum   float64
		count int
		min   = float64(0)
		max   = float64(0)
		first = true
	)
	err := q.FindAll(rtx, func(id int64, buf []byte) (bool, error) {
		v, isNull, err := numericValue(buf, prop)
		if err != nil {
			return false, err
		}
		if isNull {
			return true, nil
		}
		sum += v
		count++
		if first || v < min {
			min = v
		}
		if first || v > max {
			max = v
		}
		first = false
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	switch op {
	case AggMin:
		return min, nil
	case AggMax:
		return max, nil
	case AggSum:
		return sum, nil
	case AggAvg:
		if count == 0 {
			return 0, nil
		}
		return sum / float64(count), nil
	default:
		return 0, isarerr.New(isarerr.IllegalArgument, "query: unsupported aggregate op")
	}
}

func numericValue(buf []byte, p object.Property) (float64, bool, error) {
	switch p.Type {
	case object.Byte:
		return float64(object.GetByte(buf, p)), false, nil
	case object.Int:
		v, isNull := object.GetInt(buf, p)
		return float64(v), isNull, nil
	case object.Long:
		v, isNull := object.GetLong(buf, p)
		return float64(v), isNull, nil
	case object.Float:
		v, isNull := object.GetFloat(buf, p)
		return float64(v), isNull, nil
	case object.Double:
		v, isNull := object.GetDouble(buf, p)
		return v, isNull, nil
	default:
		return 0, false, isarerr.New(isarerr.IllegalArgument, "query: property %q is not numeric", p.Name)
	}
}
