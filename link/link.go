// Package link implements directed edges between collection records, each
// materialised as a forward entry and its mirrored backlink entry in one
// shared, instance-wide, DupSort sub-database.
package link

import (
	"encoding/binary"

	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/schema"
)

// Link binds one compiled link definition to the shared links sub-database.
// Forward entries key on (LinkID, sourceID) -> (targetCollectionID, targetID);
// backlink entries key on (BacklinkID, targetID) -> (sourceCollectionID,
// sourceID). Both live in the same DupSort database: distinct link ids keep
// unrelated edges from colliding, and DupSort lets one source fan out to
// many targets.
type Link struct {
	Def              schema.LinkDef
	DBI              kv.DBI
	SourceCollection uint16
	TargetCollection uint16
}

func New(def schema.LinkDef, dbi kv.DBI, sourceCollection, targetCollection uint16) *Link {
	return &Link{Def: def, DBI: dbi, SourceCollection: sourceCollection, TargetCollection: targetCollection}
}

func edgeKey(linkID uint64, id int64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], linkID)
	binary.BigEndian.PutUint64(b[8:16], uint64(id))
	return b
}

func edgeVal(collectionID uint16, id int64) []byte {
	b := make([]byte, 10)
	binary.BigEndian.PutUint16(b[0:2], collectionID)
	binary.BigEndian.PutUint64(b[2:10], uint64(id))
	return b
}

func parseEdgeVal(v []byte) (collectionID uint16, id int64) {
	return binary.BigEndian.Uint16(v[0:2]), int64(binary.BigEndian.Uint64(v[2:10]))
}

// Create records the edge src -> tgt, writing both the forward and backlink
// entries. Exact duplicates are idempotent (the underlying DupSort database
// rejects a repeat of the identical (key, val) pair as a no-op).
func (l *Link) Create(wtx kv.RwTx, srcID, tgtID int64) error {
	fwdKey := edgeKey(l.Def.LinkID, srcID)
	fwdVal := edgeVal(l.TargetCollection, tgtID)
	if err := wtx.Put(l.DBI, fwdKey, fwdVal); err != nil {
		return err
	}

	backKey := edgeKey(l.Def.BacklinkID, tgtID)
	backVal := edgeVal(l.SourceCollection, srcID)
	return wtx.Put(l.DBI, backKey, backVal)
}

// Delete removes the edge src -> tgt. If the forward entry existed but its
// backlink counterpart did not, the store is corrupted: invariant 3
// requires every forward entry to have a mirrored backlink.
func (l *Link) Delete(wtx kv.RwTx, srcID, tgtID int64) error {
	fwdKey := edgeKey(l.Def.LinkID, srcID)
	fwdVal := edgeVal(l.TargetCollection, tgtID)
	fwdExisted, err := cursorHasExact(wtx, l.DBI, fwdKey, fwdVal)
	if err != nil {
		return err
	}
	if err := wtx.Delete(l.DBI, fwdKey, fwdVal); err != nil {
		return err
	}

	backKey := edgeKey(l.Def.BacklinkID, tgtID)
	backVal := edgeVal(l.SourceCollection, srcID)
	backExisted, err := cursorHasExact(wtx, l.DBI, backKey, backVal)
	if err != nil {
		return err
	}
	if err := wtx.Delete(l.DBI, backKey, backVal); err != nil {
		return err
	}

	if fwdExisted && !backExisted {
		return isarerr.New(isarerr.DbCorrupted, "link %q: forward entry for (%d -> %d) had no matching backlink", l.Def.Name, srcID, tgtID)
	}
	return nil
}

func cursorHasExact(rtx kv.RoTx, dbi kv.DBI, key, val []byte) (bool, error) {
	cur, err := rtx.Cursor(dbi)
	if err != nil {
		return false, err
	}
	defer cur.Close()
	return cur.MoveToKeyVal(key, val)
}

// DeleteAllForObject removes every edge touching id as a source under this
// link definition, and every edge touching it as a target (via the
// backlink). Used by collection.Delete to sever every link a record
// participates in, forward and back, before the primary entry is removed.
func (l *Link) DeleteAllForObject(wtx kv.RwTx, id int64) error {
	fwdKey := edgeKey(l.Def.LinkID, id)
	var targetIDs []int64
	cur, err := wtx.Cursor(l.DBI)
	if err != nil {
		return err
	}
	err = cur.IterDups(fwdKey, func(v []byte) (bool, error) {
		_, tgtID := parseEdgeVal(v)
		targetIDs = append(targetIDs, tgtID)
		return true, nil
	})
	cur.Close()
	if err != nil {
		return err
	}

	for _, tgtID := range targetIDs {
		backKey := edgeKey(l.Def.BacklinkID, tgtID)
		backVal := edgeVal(l.SourceCollection, id)
		if err := wtx.Delete(l.DBI, backKey, backVal); err != nil {
			return err
		}
	}
	if err := wtx.Delete(l.DBI, fwdKey, nil); err != nil {
		return err
	}

	// This object may also be the TARGET of other records' forward edges
	// under this same link definition; those are recorded as backlink
	// entries keyed on this object's id.
	return l.DeleteBacklinksForObject(wtx, id)
}

// DeleteBacklinksForObject removes every backlink entry recorded against id
// as a target under this link definition, along with the matching forward
// entry on the source side. Used both by DeleteAllForObject (the
// self-referential case, where the deleted object owns this link as an
// outgoing edge too) and directly by a collection that is only this link's
// TARGET, deleting a record that never issued the forward edge itself.
func (l *Link) DeleteBacklinksForObject(wtx kv.RwTx, id int64) error {
	backKey := edgeKey(l.Def.BacklinkID, id)
	var sourceIDs []int64
	cur, err := wtx.Cursor(l.DBI)
	if err != nil {
		return err
	}
	err = cur.IterDups(backKey, func(v []byte) (bool, error) {
		_, srcID := parseEdgeVal(v)
		sourceIDs = append(sourceIDs, srcID)
		return true, nil
	})
	cur.Close()
	if err != nil {
		return err
	}

	for _, srcID := range sourceIDs {
		otherFwdKey := edgeKey(l.Def.LinkID, srcID)
		otherFwdVal := edgeVal(l.TargetCollection, id)
		if err := wtx.Delete(l.DBI, otherFwdKey, otherFwdVal); err != nil {
			return err
		}
	}
	return wtx.Delete(l.DBI, backKey, nil)
}

// Target is a linked record: its id and its owning collection id.
type Target struct {
	CollectionID uint16
	ID           int64
}

// Iter streams every target of srcID's forward edges under this link.
func (l *Link) Iter(rtx kv.RoTx, srcID int64, fn func(Target) (bool, error)) error {
	fwdKey := edgeKey(l.Def.LinkID, srcID)
	cur, err := rtx.Cursor(l.DBI)
	if err != nil {
		return err
	}
	defer cur.Close()

	return cur.IterDups(fwdKey, func(v []byte) (bool, error) {
		collectionID, tgtID := parseEdgeVal(v)
		return fn(Target{CollectionID: collectionID, ID: tgtID})
	})
}

// IterBacklinks streams every source of tgtID's incoming edges under this
// link, i.e. walks the relationship in reverse without requiring the caller
// to hold the owning (source) collection's link engine.
func (l *Link) IterBacklinks(rtx kv.RoTx, tgtID int64, fn func(Target) (bool, error)) error {
	backKey := edgeKey(l.Def.BacklinkID, tgtID)
	cur, err := rtx.Cursor(l.DBI)
	if err != nil {
		return err
	}
	defer cur.Close()

	return cur.IterDups(backKey, func(v []byte) (bool, error) {
		collectionID, srcID := parseEdgeVal(v)
		return fn(Target{CollectionID: collectionID, ID: srcID})
	})
}

// Clear range-deletes both the forward and backlink id spans this link
// definition owns.
func (l *Link) Clear(wtx kv.RwTx) error {
	fwdLower := make([]byte, 8)
	binary.BigEndian.PutUint64(fwdLower, l.Def.LinkID)
	fwdUpper := make([]byte, 8)
	binary.BigEndian.PutUint64(fwdUpper, l.Def.LinkID+1)
	if err := wtx.DeleteRange(l.DBI, fwdLower, fwdUpper); err != nil {
		return err
	}

	backLower := make([]byte, 8)
	binary.BigEndian.PutUint64(backLower, l.Def.BacklinkID)
	backUpper := make([]byte, 8)
	binary.BigEndian.PutUint64(backUpper, l.Def.BacklinkID+1)
	return wtx.DeleteRange(l.DBI, backLower, backUpper)
}
