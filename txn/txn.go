// Package txn implements the read/write transaction lifecycle: a lazily
// populated, per-transaction cursor cache, and the write transaction's
// take/put protocol for operations that must mutate more than one
// sub-database as a unit.
package txn

import (
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/isarerr"
)

// cursorKey identifies one cached cursor by the sub-database it was
// opened against and the caller's purpose for it, so e.g. a primary-data
// scan and an index scan against different databases never collide while
// two calls with the same database and purpose within one transaction
// share a handle.
type cursorKey struct {
	dbi     kv.DBI
	purpose string
}

// Read is a read-only transaction. It observes exactly the KV store's
// state at the instant it was opened.
type Read struct {
	kvTx    kv.RoTx
	cursors map[cursorKey]kv.Cursor
}

// NewRead wraps an already-begun kv.RoTx.
func NewRead(kvTx kv.RoTx) *Read {
	return &Read{kvTx: kvTx, cursors: make(map[cursorKey]kv.Cursor)}
}

// Get is a direct point lookup, bypassing the cursor cache.
func (r *Read) Get(dbi kv.DBI, key []byte) ([]byte, bool, error) {
	return r.kvTx.Get(dbi, key)
}

// OpenDB resolves a named sub-database for this transaction's snapshot.
func (r *Read) OpenDB(name string, flags kv.DBFlags) (kv.DBI, error) {
	return r.kvTx.OpenDB(name, flags)
}

// Cursor returns the cached cursor for (dbi, purpose), opening it on first
// use. Reopening a cursor already in the cache is never done: cursors
// alias the same underlying transaction, so a repeat call with the same
// (dbi, purpose) returns the cached handle; a different purpose over the
// same database gets a cursor of its own.
func (r *Read) Cursor(dbi kv.DBI, purpose string) (kv.Cursor, error) {
	key := cursorKey{dbi, purpose}
	if c, ok := r.cursors[key]; ok {
		return c, nil
	}
	c, err := r.kvTx.Cursor(dbi)
	if err != nil {
		return nil, err
	}
	r.cursors[key] = c
	return c, nil
}

// Abort releases every cached cursor and the underlying snapshot.
func (r *Read) Abort() {
	for _, c := range r.cursors {
		c.Close()
	}
	r.kvTx.Abort()
}

// Write is a write transaction. Only one may be open per Env at a time;
// the KV store serialises writers (§5).
type Write struct {
	Read
	inner     kv.RwTx
	poisoned  *isarerr.Error
	taken     bool
	committed bool
}

// NewWrite wraps an already-begun kv.RwTx.
func NewWrite(kvTx kv.RwTx) *Write {
	return &Write{Read: Read{kvTx: kvTx, cursors: make(map[cursorKey]kv.Cursor)}, inner: kvTx}
}

func (w *Write) checkUsable() error {
	if w.poisoned != nil {
		return w.poisoned
	}
	if w.taken {
		return isarerr.New(isarerr.IllegalArgument, "txn: inner write transaction is currently taken by another operation")
	}
	return nil
}

// Put writes one key/value pair.
func (w *Write) Put(dbi kv.DBI, key, val []byte) error {
	if err := w.checkUsable(); err != nil {
		return err
	}
	if err := w.inner.Put(dbi, key, val); err != nil {
		w.poison(err)
		return err
	}
	return nil
}

// Delete removes one key (or one (key, val) duplicate).
func (w *Write) Delete(dbi kv.DBI, key, val []byte) error {
	if err := w.checkUsable(); err != nil {
		return err
	}
	if err := w.inner.Delete(dbi, key, val); err != nil {
		w.poison(err)
		return err
	}
	return nil
}

// Drop empties a whole sub-database.
func (w *Write) Drop(dbi kv.DBI) error {
	if err := w.checkUsable(); err != nil {
		return err
	}
	if err := w.inner.Drop(dbi); err != nil {
		w.poison(err)
		return err
	}
	return nil
}

// DeleteRange removes every key in [lower, upper).
func (w *Write) DeleteRange(dbi kv.DBI, lower, upper []byte) error {
	if err := w.checkUsable(); err != nil {
		return err
	}
	if err := w.inner.DeleteRange(dbi, lower, upper); err != nil {
		w.poison(err)
		return err
	}
	return nil
}

// TakeWriteTxn temporarily surrenders the underlying KV write transaction
// to an operation that needs to mutate multiple sub-databases as one
// unit (e.g. Collection.put juggling the primary store, several indexes,
// and links). The caller MUST return it via PutWriteTxn on every path,
// including failure — typically via defer immediately after a successful
// take.
func (w *Write) TakeWriteTxn() (kv.RwTx, error) {
	if err := w.checkUsable(); err != nil {
		return nil, err
	}
	w.taken = true
	return w.inner, nil
}

// PutWriteTxn returns the inner transaction taken by TakeWriteTxn. If
// opErr is non-nil, the outer transaction is poisoned: the operation left
// the KV write transaction in an indeterminate state, and every
// subsequent call (other than Abort) must fail until the transaction is
// discarded.
func (w *Write) PutWriteTxn(opErr error) {
	w.taken = false
	if opErr != nil {
		w.poison(opErr)
	}
}

func (w *Write) poison(cause error) {
	if w.poisoned == nil {
		w.poisoned = isarerr.Wrap(isarerr.TransactionPoisoned, cause, "txn: write transaction poisoned")
	}
}

// Commit finalises the transaction. A poisoned transaction can never be
// committed — Abort is the only legal action left.
func (w *Write) Commit() error {
	if w.poisoned != nil {
		return w.poisoned
	}
	if w.taken {
		return isarerr.New(isarerr.IllegalArgument, "txn: cannot commit while inner write transaction is taken")
	}
	for _, c := range w.cursors {
		c.Close()
	}
	if err := w.inner.Commit(); err != nil {
		return err
	}
	w.committed = true
	return nil
}

// Abort discards every pending mutation, including from a poisoned
// transaction. A Write that is neither committed nor aborted keeps its
// underlying KV write transaction open.
func (w *Write) Abort() {
	if w.committed {
		return
	}
	for _, c := range w.cursors {
		c.Close()
	}
	w.inner.Abort()
}
