// Package collection implements primary storage plus index and link
// maintenance for one schema collection under a write transaction:
// get/put/delete and their index-qualified and bulk variants.
package collection

import (
	"encoding/binary"
	"math"

	"github.com/kvdoc/isardb/index"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/link"
	"github.com/kvdoc/isardb/schema"
)

// NoID means "no id / please generate", per the data model's reserved
// i64::MIN sentinel.
const NoID int64 = math.MinInt64

// Collection binds a compiled schema.Collection to its opened primary
// database, its index engines (one per schema.IndexDef, in schema order),
// its outgoing link engines, and the link engines of any OTHER collection's
// link definitions that target this one (needed so Delete can sever
// incoming edges even when this collection never issued them).
type Collection struct {
	Schema        *schema.Collection
	PrimaryDBI    kv.DBI
	Indexes       []*index.Index
	OutgoingLinks []*link.Link
	IncomingLinks []*link.Link // foreign LinkDefs whose TargetCollection is this one
}

func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func idFromKey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// Get returns the stored bytes for id, or ok=false if absent.
func (c *Collection) Get(rtx kv.RoTx, id int64) ([]byte, bool, error) {
	return rtx.Get(c.PrimaryDBI, idKey(id))
}

// GetByIndex returns the first (ascending) id matching key under the named
// index, plus its stored bytes.
func (c *Collection) GetByIndex(rtx kv.RoTx, indexName string, key []byte) (int64, []byte, bool, error) {
	ix, err := c.index(indexName)
	if err != nil {
		return 0, nil, false, err
	}
	id, ok, err := ix.GetID(rtx, key)
	if err != nil || !ok {
		return 0, nil, false, err
	}
	buf, ok, err := c.Get(rtx, id)
	return id, buf, ok, err
}

func (c *Collection) index(name string) (*index.Index, error) {
	for _, ix := range c.Indexes {
		if ix.Def.Name == name {
			return ix, nil
		}
	}
	return nil, isarerr.New(isarerr.IllegalArgument, "collection %q: unknown index %q", c.Schema.Name, name)
}

// nextID scans the primary database's maximum existing id and returns one
// greater, seeding the per-collection auto-id generator from on-disk state
// rather than in-memory counters (so it is correct immediately after
// reopening an instance).
func (c *Collection) nextID(wtx kv.RwTx) (int64, error) {
	cur, err := wtx.Cursor(c.PrimaryDBI)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	var maxID int64 = NoID
	err = cur.IterBetween(nil, nil, false, false, func(k, v []byte) (bool, error) {
		maxID = idFromKey(k)
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	if maxID == NoID {
		return 0, nil
	}
	return maxID + 1, nil
}

// Put is the full upsert: validates buf against the schema, assigns or
// reuses an id, removes the previous record's index entries (preserving its
// links — replacement only invalidates index entries, not edges), attempts
// to insert every new index entry, cascading a one-level delete for a
// replace-on-conflict unique clash or failing with UniqueViolation
// otherwise, and finally writes the primary entry.
func (c *Collection) Put(wtx kv.RwTx, maybeID int64, buf []byte, replaceOnConflict bool) (int64, error) {
	if err := object.Verify(c.Schema.Properties, c.Schema.StaticSize, buf); err != nil {
		return 0, err
	}

	id := maybeID
	var oldBuf []byte
	if id != NoID {
		existing, ok, err := c.Get(wtx, id)
		if err != nil {
			return 0, err
		}
		if ok {
			oldBuf = existing
		}
	} else {
		var err error
		id, err = c.nextID(wtx)
		if err != nil {
			return 0, err
		}
	}

	if oldBuf != nil {
		for _, ix := range c.Indexes {
			if err := ix.DeleteForObject(wtx, id, oldBuf); err != nil {
				return 0, err
			}
		}
	}

	for _, ix := range c.Indexes {
		onConflict := func(existingID int64) (bool, error) {
			if !replaceOnConflict {
				return false, nil
			}
			if err := c.cascadeDelete(wtx, existingID); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := ix.CreateForObject(wtx, id, buf, onConflict); err != nil {
			// Roll back index entries already inserted for this put by the
			// caller's Abort; this function itself does not partially
			// un-insert, matching the engine-wide "poison on failure, only
			// abort is legal" contract (the background writer poisons its
			// txn.Write when the write callback returns this error).
			return 0, err
		}
	}

	if err := wtx.Put(c.PrimaryDBI, idKey(id), buf); err != nil {
		return 0, err
	}
	return id, nil
}

// cascadeDelete removes the single conflicting record at existingID,
// including its links, but does not recheck that deletion for further
// unique conflicts — the cascade bound is exactly one level, per the
// original engine's semantics.
func (c *Collection) cascadeDelete(wtx kv.RwTx, existingID int64) error {
	_, err := c.Delete(wtx, existingID)
	return err
}

// Delete removes id's index entries, severs every incident link (forward
// and back, including edges where id is only ever a target), and removes
// the primary entry. Returns whether the record existed.
func (c *Collection) Delete(wtx kv.RwTx, id int64) (bool, error) {
	buf, ok, err := c.Get(wtx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	for _, ix := range c.Indexes {
		if err := ix.DeleteForObject(wtx, id, buf); err != nil {
			return false, err
		}
	}

	for _, l := range c.OutgoingLinks {
		if err := l.DeleteAllForObject(wtx, id); err != nil {
			return false, err
		}
	}
	for _, l := range c.IncomingLinks {
		if err := l.DeleteBacklinksForObject(wtx, id); err != nil {
			return false, err
		}
	}

	if err := wtx.Delete(c.PrimaryDBI, idKey(id), nil); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByIndex deletes the first id matching key under the named index.
func (c *Collection) DeleteByIndex(wtx kv.RwTx, indexName string, key []byte) (bool, error) {
	ix, err := c.index(indexName)
	if err != nil {
		return false, err
	}
	id, ok, err := ix.GetID(wtx, key)
	if err != nil || !ok {
		return false, err
	}
	return c.Delete(wtx, id)
}

// Clear drops every index database, every link this collection owns either
// end of, and finally the primary database, all within wtx.
func (c *Collection) Clear(wtx kv.RwTx) error {
	for _, ix := range c.Indexes {
		if err := ix.Clear(wtx); err != nil {
			return err
		}
	}
	for _, l := range c.OutgoingLinks {
		if err := l.Clear(wtx); err != nil {
			return err
		}
	}
	for _, l := range c.IncomingLinks {
		if err := l.Clear(wtx); err != nil {
			return err
		}
	}
	return wtx.Drop(c.PrimaryDBI)
}
