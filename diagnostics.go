package isardb

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kvdoc/isardb/index"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/link"
	"github.com/kvdoc/isardb/schema"
)

// CollectionInfo summarizes one registered collection for Inspect, without
// requiring the caller to already know its schema.
type CollectionInfo struct {
	Name          string
	ID            uint16
	Version       uint32
	PropertyCount int
	Indexes       []string
	Links         []string
	RecordCount   int
}

// InstanceInfo is the read-only summary Inspect produces for an instance
// directory: its identity plus every collection it has registered.
type InstanceInfo struct {
	Dir         string
	InstanceID  uuid.UUID
	Collections []CollectionInfo
}

// Inspect opens dir read-only (Shared, so it never excludes a process that
// already has the instance open) and reports its identity and registered
// collections, without requiring the caller to supply Config.Schemas — the
// basis for isarctl's info and stats subcommands, the way the teacher's
// hive package exposes a HiveStats entry point for hivectl's info command
// rather than making the CLI parse hive structures itself.
func Inspect(ctx context.Context, dir string) (*InstanceInfo, error) {
	env, err := kv.OpenMDBX(kv.Options{Dir: dir, Shared: true})
	if err != nil {
		return nil, err
	}
	defer env.Close()

	rtx, err := env.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer rtx.Abort()

	infoDBI, err := rtx.OpenDB(infoDBName, 0)
	if err != nil {
		return nil, isarerr.Wrap(isarerr.IllegalArgument, err, "isardb: %q does not look like an isardb instance directory", dir)
	}

	rawMeta, ok, err := rtx.Get(infoDBI, []byte(metaKey))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, isarerr.New(isarerr.DbCorrupted, "isardb: instance %q is missing its metadata record", dir)
	}
	meta, err := decodeMeta(rawMeta)
	if err != nil {
		return nil, err
	}

	cur, err := rtx.Cursor(infoDBI)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var cols []CollectionInfo
	lower := []byte(schemaKeyPfx)
	upper := prefixUpperBound(lower)
	err = cur.IterBetween(lower, upper, false, true, func(_, v []byte) (bool, error) {
		c, err := schema.Decode(v)
		if err != nil {
			return false, err
		}
		count, err := countRecords(rtx, c.Name)
		if err != nil {
			return false, err
		}
		cols = append(cols, CollectionInfo{
			Name:          c.Name,
			ID:            c.ID,
			Version:       c.Version,
			PropertyCount: len(c.Properties),
			Indexes:       indexNames(c.Indexes),
			Links:         linkNames(c.Links),
			RecordCount:   count,
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

	return &InstanceInfo{Dir: dir, InstanceID: meta.InstanceID, Collections: cols}, nil
}

func countRecords(rtx kv.RoTx, collectionName string) (int, error) {
	dbi, err := rtx.OpenDB(primaryDBIPfx+collectionName, 0)
	if err != nil {
		return 0, nil // collection registered but its primary db was never created
	}
	cur, err := rtx.Cursor(dbi)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	n := 0
	err = cur.IterBetween(nil, nil, false, true, func(_, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

func indexNames(defs []schema.IndexDef) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

func linkNames(defs []schema.LinkDef) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// prefixUpperBound returns the smallest key strictly greater than every key
// beginning with prefix, for use as an exclusive upper scan bound. Panics
// if prefix is all 0xff bytes (never true for the ASCII prefixes this
// package uses).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	panic("isardb: prefix is all 0xff bytes")
}

// DumpRecord is one decoded record's field values, keyed by property name,
// as produced by Dump.
type DumpRecord struct {
	ID     int64
	Fields map[string]any
}

// Dump reads every record of the named collection in dir and decodes each
// property to a plain Go value, for isarctl's dump subcommand. It opens
// its own short-lived read transaction directly against the KV layer,
// independent of any already-running Instance.
func Dump(ctx context.Context, dir, collectionName string) ([]DumpRecord, error) {
	env, err := kv.OpenMDBX(kv.Options{Dir: dir, Shared: true})
	if err != nil {
		return nil, err
	}
	defer env.Close()

	rtx, err := env.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer rtx.Abort()

	infoDBI, err := rtx.OpenDB(infoDBName, 0)
	if err != nil {
		return nil, isarerr.Wrap(isarerr.IllegalArgument, err, "isardb: %q does not look like an isardb instance directory", dir)
	}
	raw, ok, err := rtx.Get(infoDBI, []byte(schemaKeyPfx+collectionName))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, isarerr.New(isarerr.IllegalArgument, "isardb: no collection named %q in %q", collectionName, dir)
	}
	c, err := schema.Decode(raw)
	if err != nil {
		return nil, err
	}

	primaryDBI, err := rtx.OpenDB(primaryDBIPfx+collectionName, 0)
	if err != nil {
		return nil, nil
	}
	cur, err := rtx.Cursor(primaryDBI)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []DumpRecord
	err = cur.IterBetween(nil, nil, false, true, func(k, v []byte) (bool, error) {
		out = append(out, DumpRecord{ID: idFromPrimaryKey(k), Fields: decodeFields(c.Properties, v)})
		return true, nil
	})
	return out, err
}

// Issue is one audit finding from Verify: which collection (and, where
// applicable, index or link) the problem was found in, and a human-readable
// detail.
type Issue struct {
	Collection string
	Kind       string // "index", "unique", "link"
	Detail     string
}

// Verify runs a read-only live audit of invariants 2-4 (index coherence,
// unique coherence, link symmetry) against every collection registered in
// dir, for isarctl's verify subcommand. Invariant 1 (round-trip) and
// invariant 5 (key-order monotonicity) describe properties of the encoder
// itself rather than of stored data, so they are covered by unit tests
// instead of a live audit.
func Verify(ctx context.Context, dir string) ([]Issue, error) {
	env, err := kv.OpenMDBX(kv.Options{Dir: dir, Shared: true})
	if err != nil {
		return nil, err
	}
	defer env.Close()

	rtx, err := env.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer rtx.Abort()

	infoDBI, err := rtx.OpenDB(infoDBName, 0)
	if err != nil {
		return nil, isarerr.Wrap(isarerr.IllegalArgument, err, "isardb: %q does not look like an isardb instance directory", dir)
	}
	collections, err := loadAllSchemas(rtx, infoDBI)
	if err != nil {
		return nil, err
	}

	linksDBI, err := rtx.OpenDB(linksDBName, 0)
	hasLinks := err == nil

	var issues []Issue
	for _, c := range collections {
		primaryDBI, err := rtx.OpenDB(primaryDBIPfx+c.Name, 0)
		if err != nil {
			continue // collection registered but never written to
		}

		indexes := make([]*index.Index, 0, len(c.Indexes))
		for _, ixDef := range c.Indexes {
			ixDBI, err := rtx.OpenDB(indexDBIPfx+c.Name+":"+ixDef.Name, 0)
			if err != nil {
				issues = append(issues, Issue{Collection: c.Name, Kind: "index", Detail: fmt.Sprintf("index %q is registered but its database is missing", ixDef.Name)})
				continue
			}
			indexes = append(indexes, index.New(ixDef, ixDBI, c.Properties))
		}

		cur, err := rtx.Cursor(primaryDBI)
		if err != nil {
			return nil, err
		}
		err = cur.IterBetween(nil, nil, false, true, func(k, v []byte) (bool, error) {
			id := idFromPrimaryKey(k)
			issues = append(issues, verifyIndexes(rtx, c.Name, indexes, id, v)...)
			return true, nil
		})
		cur.Close()
		if err != nil {
			return nil, err
		}

		if hasLinks {
			for _, l := range c.Links {
				target, ok := collections[l.TargetCollection]
				if !ok {
					issues = append(issues, Issue{Collection: c.Name, Kind: "link", Detail: fmt.Sprintf("link %q targets unregistered collection %q", l.Name, l.TargetCollection)})
					continue
				}
				eng := link.New(l, linksDBI, c.ID, target.ID)
				issues = append(issues, verifyLinkSymmetry(rtx, c.Name, eng, primaryDBI)...)
			}
		}
	}
	return issues, nil
}

func verifyIndexes(rtx kv.RoTx, collectionName string, indexes []*index.Index, id int64, buf []byte) []Issue {
	var issues []Issue
	for _, ix := range indexes {
		keys, err := ix.Keys(buf)
		if err != nil {
			issues = append(issues, Issue{Collection: collectionName, Kind: "index", Detail: fmt.Sprintf("index %q: %v", ix.Def.Name, err)})
			continue
		}
		for _, key := range keys {
			found, err := cursorHasKeyVal(rtx, ix.DBI, key, idBytesBE(id))
			if err != nil {
				issues = append(issues, Issue{Collection: collectionName, Kind: "index", Detail: fmt.Sprintf("index %q: %v", ix.Def.Name, err)})
				continue
			}
			if !found {
				issues = append(issues, Issue{Collection: collectionName, Kind: "index", Detail: fmt.Sprintf("index %q: record %d missing its expected entry", ix.Def.Name, id)})
			}
			if ix.Def.Unique {
				stored, ok, err := rtx.Get(ix.DBI, key)
				if err == nil && ok && idFromBE(stored) != id && !found {
					issues = append(issues, Issue{Collection: collectionName, Kind: "unique", Detail: fmt.Sprintf("unique index %q: key collides between records %d and %d", ix.Def.Name, id, idFromBE(stored))})
				}
			}
		}
	}
	return issues
}

// verifyLinkSymmetry walks every outgoing edge of l from each record in the
// owning collection's primary store and confirms the mirrored backlink
// entry exists, per invariant 4.
func verifyLinkSymmetry(rtx kv.RoTx, collectionName string, l *link.Link, primaryDBI kv.DBI) []Issue {
	var issues []Issue
	cur, err := rtx.Cursor(primaryDBI)
	if err != nil {
		return []Issue{{Collection: collectionName, Kind: "link", Detail: err.Error()}}
	}
	defer cur.Close()

	_ = cur.IterBetween(nil, nil, false, true, func(k, _ []byte) (bool, error) {
		srcID := idFromPrimaryKey(k)
		err := l.Iter(rtx, srcID, func(t link.Target) (bool, error) {
			mirrored := false
			err := l.IterBacklinks(rtx, t.ID, func(back link.Target) (bool, error) {
				if back.ID == srcID {
					mirrored = true
					return false, nil
				}
				return true, nil
			})
			if err != nil {
				return false, err
			}
			if !mirrored {
				issues = append(issues, Issue{Collection: collectionName, Kind: "link", Detail: fmt.Sprintf("link %q: forward edge %d -> %d has no matching backlink", l.Def.Name, srcID, t.ID)})
			}
			return true, nil
		})
		return true, err
	})
	return issues
}

func cursorHasKeyVal(rtx kv.RoTx, dbi kv.DBI, key, val []byte) (bool, error) {
	cur, err := rtx.Cursor(dbi)
	if err != nil {
		return false, err
	}
	defer cur.Close()
	found, err := cur.MoveToKeyVal(key, val)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}
	// Unique indexes are not DupSort: MoveToKeyVal's exact-pair semantics
	// only apply to DupSort databases, so fall back to a plain point Get.
	stored, ok, err := rtx.Get(dbi, key)
	if err != nil || !ok {
		return false, err
	}
	return idFromBE(stored) == idFromBE(val), nil
}

func idBytesBE(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func idFromBE(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// loadAllSchemas reads every persisted collection schema document under
// the "info" database, keyed by name.
func loadAllSchemas(rtx kv.RoTx, infoDBI kv.DBI) (map[string]*schema.Collection, error) {
	cur, err := rtx.Cursor(infoDBI)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	out := make(map[string]*schema.Collection)
	lower := []byte(schemaKeyPfx)
	upper := prefixUpperBound(lower)
	err = cur.IterBetween(lower, upper, false, true, func(_, v []byte) (bool, error) {
		c, err := schema.Decode(v)
		if err != nil {
			return false, err
		}
		out[c.Name] = c
		return true, nil
	})
	return out, err
}

func idFromPrimaryKey(k []byte) int64 {
	var v uint64
	for i := 0; i < 8 && i < len(k); i++ {
		v = v<<8 | uint64(k[i])
	}
	return int64(v)
}

// decodeFields renders every property of buf as a plain Go value (nil for
// a null scalar), the generic, schema-driven counterpart of the typed
// object.Get* accessors collection/index/query use internally.
func decodeFields(props []object.Property, buf []byte) map[string]any {
	out := make(map[string]any, len(props))
	for _, p := range props {
		out[p.Name] = decodeField(buf, p)
	}
	return out
}

func decodeField(buf []byte, p object.Property) any {
	switch p.Type {
	case object.Byte:
		return object.GetByte(buf, p)
	case object.Int:
		v, isNull := object.GetInt(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.Long:
		v, isNull := object.GetLong(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.Float:
		v, isNull := object.GetFloat(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.Double:
		v, isNull := object.GetDouble(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.String:
		v, isNull := object.GetString(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.ByteList:
		v, isNull := object.GetByteList(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.IntList:
		v, isNull := object.GetIntList(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.LongList:
		v, isNull := object.GetLongList(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.FloatList:
		v, isNull := object.GetFloatList(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.DoubleList:
		v, isNull := object.GetDoubleList(buf, p)
		if isNull {
			return nil
		}
		return v
	case object.StringList:
		v, isNull := object.GetStringList(buf, p)
		if isNull {
			return nil
		}
		return v
	default:
		return fmt.Sprintf("<unsupported type %s>", p.Type)
	}
}
