// Package kv is the narrow interface this engine consumes from its
// embedded, memory-mapped B+tree key/value store. Per the engine's scope,
// the KV store itself is an external collaborator: everything here is a
// thin adapter over a real binding, never a from-scratch page/allocator
// implementation.
package kv

import "context"

// DBFlags configures a named sub-database at open time.
type DBFlags uint

const (
	// DBCreate creates the sub-database if it does not already exist.
	DBCreate DBFlags = 1 << iota
	// DBDupSort allows multiple values per key, sorted amongst
	// themselves; used for non-unique index entries (key -> id trailer)
	// and for the link engine's forward/backlink databases.
	DBDupSort
	// DBIntegerKey tells the store that keys are fixed-width big-endian
	// integers, enabling its native integer comparator instead of a
	// generic byte-string comparator.
	DBIntegerKey
)

// DBI is a handle to a named sub-database, valid for the lifetime of the
// Env that opened it.
type DBI uint32

// Env is an opened instance directory: one data file and one lock file,
// shared by every read and write transaction against it.
type Env interface {
	BeginRead(ctx context.Context) (RoTx, error)
	BeginWrite(ctx context.Context) (RwTx, error)
	Close() error
}

// RoTx is a read-only transaction. It observes a consistent MVCC snapshot
// taken at the instant it was opened.
type RoTx interface {
	// OpenDB resolves (creating if DBCreate is set and it is missing) a
	// named sub-database.
	OpenDB(name string, flags DBFlags) (DBI, error)
	// Get is a point lookup; ok is false if the key is absent.
	Get(dbi DBI, key []byte) (val []byte, ok bool, err error)
	// Cursor opens a cursor over dbi. Cursors are exclusive to the
	// transaction that opened them and must not escape it.
	Cursor(dbi DBI) (Cursor, error)
	// Abort releases the transaction's snapshot without side effects.
	Abort()
}

// RwTx is a write transaction. Only one may be open against an Env at a
// time; the store serialises writers.
type RwTx interface {
	RoTx
	Put(dbi DBI, key, val []byte) error
	// Delete removes one key. If val is non-nil and the database is
	// DupSort, only the matching (key, val) duplicate is removed;
	// otherwise every value for key is removed.
	Delete(dbi DBI, key, val []byte) error
	// Drop empties dbi entirely (Collection.clear's "drop every index
	// database... then the primary database").
	Drop(dbi DBI) error
	// DeleteRange removes every key in [lower, upper) — used by
	// Link.Clear to prefix-delete one link's span out of the shared links
	// sub-database.
	DeleteRange(dbi DBI, lower, upper []byte) error
	Commit() error
}

// Cursor iterates or positions within one sub-database, inside the
// transaction that opened it.
type Cursor interface {
	// MoveTo positions the cursor at the first entry >= key.
	MoveTo(key []byte) (val []byte, found bool, err error)
	// MoveToKeyVal positions the cursor at the exact (key, val) pair in a
	// DupSort database, for precise duplicate removal/lookup.
	MoveToKeyVal(key, val []byte) (found bool, err error)
	// IterBetween streams every entry with lower <= key < upper (or the
	// reverse range when ascending is false) to fn, stopping early if fn
	// returns false. When skipDupValues is true and the database is
	// DupSort, only the first value of each run of duplicate keys is
	// visited.
	IterBetween(lower, upper []byte, skipDupValues, ascending bool, fn func(k, v []byte) (bool, error)) error
	// IterDups streams every value stored under key (DupSort only).
	IterDups(key []byte, fn func(v []byte) (bool, error)) error
	Put(key, val []byte) error
	// DeleteCurrent removes the entry the cursor is positioned on.
	DeleteCurrent() error
	Close()
}
