// Package memkv is a pure-Go, in-process stand-in for the mdbx-backed
// kv.Env, used by every higher package's test suite so that collection,
// index, link, query, and txn behavior can be exercised without a cgo
// dependency. It honours the same snapshot-isolation contract as the real
// store: every committed write produces a new immutable table version, so
// a read transaction begun before a later commit never observes it.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/isarerr"
)

type entry struct {
	key, val []byte
}

type table struct {
	name    string
	flags   kv.DBFlags
	entries []entry // sorted by key, then by val when flags&DBDupSort != 0
}

func (t *table) clone() *table {
	cp := &table{name: t.name, flags: t.flags, entries: make([]entry, len(t.entries))}
	copy(cp.entries, t.entries)
	return cp
}

func less(a, b entry, dupSort bool) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	if dupSort {
		return bytes.Compare(a.val, b.val) < 0
	}
	return false
}

// snapshot is an immutable view of every table at some point in time.
type snapshot map[string]*table

type Env struct {
	mu      sync.Mutex
	writeMu sync.Mutex // only one write transaction at a time, per §5
	current snapshot
}

// New returns an empty environment.
func New() *Env {
	return &Env{current: snapshot{}}
}

func (e *Env) snapshotView() snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(snapshot, len(e.current))
	for k, v := range e.current {
		cp[k] = v
	}
	return cp
}

func (e *Env) BeginRead(ctx context.Context) (kv.RoTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{env: e, tables: e.snapshotView(), writable: false}, nil
}

func (e *Env) BeginWrite(ctx context.Context) (kv.RwTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.writeMu.Lock()
	return &tx{env: e, tables: e.snapshotView(), writable: true}, nil
}

func (e *Env) Close() error { return nil }

type tx struct {
	env      *Env
	tables   snapshot
	writable bool
	done     bool
}

func (t *tx) OpenDB(name string, flags kv.DBFlags) (kv.DBI, error) {
	if tbl, ok := t.tables[name]; ok {
		return dbiOf(name), checkFlags(tbl, flags)
	}
	if flags&kv.DBCreate == 0 {
		return 0, isarerr.New(isarerr.DbError, "memkv: database %q does not exist", name)
	}
	t.tables[name] = &table{name: name, flags: flags}
	return dbiOf(name), nil
}

func checkFlags(tbl *table, flags kv.DBFlags) error { return nil }

// dbiOf derives a stable handle from the name's own bytes. memkv looks
// tables up by name directly; the handle only needs to round-trip through
// the kv.DBI type so callers above this package stay abstraction-faithful.
var (
	dbiMu     sync.Mutex
	dbiNames  []string
	dbiLookup = map[string]kv.DBI{}
)

func dbiOf(name string) kv.DBI {
	dbiMu.Lock()
	defer dbiMu.Unlock()
	if id, ok := dbiLookup[name]; ok {
		return id
	}
	dbiNames = append(dbiNames, name)
	id := kv.DBI(len(dbiNames))
	dbiLookup[name] = id
	return id
}

func nameOf(dbi kv.DBI) string {
	dbiMu.Lock()
	defer dbiMu.Unlock()
	if int(dbi) <= 0 || int(dbi) > len(dbiNames) {
		return ""
	}
	return dbiNames[dbi-1]
}

func (t *tx) table(dbi kv.DBI) *table {
	return t.tables[nameOf(dbi)]
}

func (t *tx) Get(dbi kv.DBI, key []byte) ([]byte, bool, error) {
	tbl := t.table(dbi)
	if tbl == nil {
		return nil, false, nil
	}
	i := sort.Search(len(tbl.entries), func(i int) bool { return bytes.Compare(tbl.entries[i].key, key) >= 0 })
	if i < len(tbl.entries) && bytes.Equal(tbl.entries[i].key, key) {
		return tbl.entries[i].val, true, nil
	}
	return nil, false, nil
}

func (t *tx) Cursor(dbi kv.DBI) (kv.Cursor, error) {
	tbl := t.table(dbi)
	if tbl == nil {
		tbl = &table{}
	}
	return &cursor{tbl: tbl}, nil
}

func (t *tx) Abort() {
	if t.done {
		return
	}
	t.done = true
	if t.writable {
		t.env.writeMu.Unlock()
	}
}

func (t *tx) mustWritable(dbi kv.DBI) *table {
	tbl := t.table(dbi)
	if tbl == nil {
		tbl = &table{name: nameOf(dbi)}
		t.tables[tbl.name] = tbl
	} else {
		tbl = tbl.clone()
		t.tables[tbl.name] = tbl
	}
	return tbl
}

func (t *tx) Put(dbi kv.DBI, key, val []byte) error {
	tbl := t.mustWritable(dbi)
	dupSort := tbl.flags&kv.DBDupSort != 0
	ne := entry{key: append([]byte(nil), key...), val: append([]byte(nil), val...)}

	i := sort.Search(len(tbl.entries), func(i int) bool { return !less(tbl.entries[i], ne, dupSort) })
	if !dupSort && i < len(tbl.entries) && bytes.Equal(tbl.entries[i].key, key) {
		tbl.entries[i] = ne
		return nil
	}
	if dupSort && i < len(tbl.entries) && bytes.Equal(tbl.entries[i].key, key) && bytes.Equal(tbl.entries[i].val, val) {
		return nil // exact duplicate, idempotent
	}
	tbl.entries = append(tbl.entries, entry{})
	copy(tbl.entries[i+1:], tbl.entries[i:])
	tbl.entries[i] = ne
	return nil
}

func (t *tx) Delete(dbi kv.DBI, key, val []byte) error {
	tbl := t.mustWritable(dbi)
	dupSort := tbl.flags&kv.DBDupSort != 0
	out := tbl.entries[:0:0]
	for _, e := range tbl.entries {
		if bytes.Equal(e.key, key) && (val == nil || !dupSort || bytes.Equal(e.val, val)) {
			continue
		}
		out = append(out, e)
	}
	tbl.entries = out
	return nil
}

func (t *tx) Drop(dbi kv.DBI) error {
	tbl := t.mustWritable(dbi)
	tbl.entries = nil
	return nil
}

func (t *tx) DeleteRange(dbi kv.DBI, lower, upper []byte) error {
	tbl := t.mustWritable(dbi)
	out := tbl.entries[:0:0]
	for _, e := range tbl.entries {
		if bytes.Compare(e.key, lower) >= 0 && (upper == nil || bytes.Compare(e.key, upper) < 0) {
			continue
		}
		out = append(out, e)
	}
	tbl.entries = out
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.env.writeMu.Unlock()

	t.env.mu.Lock()
	t.env.current = t.tables
	t.env.mu.Unlock()
	return nil
}

type cursor struct {
	tbl *table
	pos int
}

func (c *cursor) MoveTo(key []byte) ([]byte, bool, error) {
	i := sort.Search(len(c.tbl.entries), func(i int) bool { return bytes.Compare(c.tbl.entries[i].key, key) >= 0 })
	c.pos = i
	if i < len(c.tbl.entries) {
		return c.tbl.entries[i].val, true, nil
	}
	return nil, false, nil
}

func (c *cursor) MoveToKeyVal(key, val []byte) (bool, error) {
	for i, e := range c.tbl.entries {
		if bytes.Equal(e.key, key) && bytes.Equal(e.val, val) {
			c.pos = i
			return true, nil
		}
	}
	return false, nil
}

func (c *cursor) IterBetween(lower, upper []byte, skipDupValues, ascending bool, fn func(k, v []byte) (bool, error)) error {
	entries := c.tbl.entries
	start, end := 0, len(entries)
	if lower != nil {
		start = sort.Search(len(entries), func(i int) bool { return bytes.Compare(entries[i].key, lower) >= 0 })
	}
	if upper != nil {
		end = sort.Search(len(entries), func(i int) bool { return bytes.Compare(entries[i].key, upper) >= 0 })
	}
	window := entries[start:end]

	if skipDupValues {
		deduped := window[:0:0]
		var lastKey []byte
		for _, e := range window {
			if lastKey != nil && bytes.Equal(e.key, lastKey) {
				continue
			}
			deduped = append(deduped, e)
			lastKey = e.key
		}
		window = deduped
	}

	if ascending {
		for _, e := range window {
			cont, err := fn(e.key, e.val)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	}
	for i := len(window) - 1; i >= 0; i-- {
		cont, err := fn(window[i].key, window[i].val)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (c *cursor) IterDups(key []byte, fn func(v []byte) (bool, error)) error {
	for _, e := range c.tbl.entries {
		if !bytes.Equal(e.key, key) {
			continue
		}
		cont, err := fn(e.val)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (c *cursor) Put(key, val []byte) error {
	dupSort := c.tbl.flags&kv.DBDupSort != 0
	ne := entry{key: append([]byte(nil), key...), val: append([]byte(nil), val...)}
	i := sort.Search(len(c.tbl.entries), func(i int) bool { return !less(c.tbl.entries[i], ne, dupSort) })
	c.tbl.entries = append(c.tbl.entries, entry{})
	copy(c.tbl.entries[i+1:], c.tbl.entries[i:])
	c.tbl.entries[i] = ne
	return nil
}

func (c *cursor) DeleteCurrent() error {
	if c.pos < 0 || c.pos >= len(c.tbl.entries) {
		return nil
	}
	c.tbl.entries = append(c.tbl.entries[:c.pos], c.tbl.entries[c.pos+1:]...)
	return nil
}

func (c *cursor) Close() {}
