// Package isardb is an embedded, transactional, document-style object
// store backed by a memory-mapped B+tree key/value engine: fixed schema
// collections with secondary indexes and directed links between records,
// opened once per process against one instance directory.
package isardb

import (
	"bytes"
	"context"
	"encoding/gob"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kvdoc/isardb/collection"
	"github.com/kvdoc/isardb/index"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/link"
	"github.com/kvdoc/isardb/query"
	"github.com/kvdoc/isardb/schema"
	"github.com/kvdoc/isardb/txn"
)

// Config is the caller-supplied description of an instance: where it
// lives on disk, what collections it holds, and how the underlying KV
// environment should be opened.
type Config struct {
	// Dir is the instance directory; created if absent.
	Dir string
	// Schemas describes every collection this instance should have open.
	// Collections already present on disk from a prior Open are matched
	// by name; collections named here but absent on disk are registered
	// now, with newly assigned ids.
	Schemas []schema.CollectionDef
	// MaxSizeBytes bounds the memory map; 0 defaults to 1 GiB (kv.OpenMDBX).
	MaxSizeBytes uint64
	// RelaxedDurability trades fsync-on-commit durability for throughput
	// (kv.Options.RelaxedDurability).
	RelaxedDurability bool
	// Shared allows more than one process to open Dir concurrently.
	Shared bool
	// Logger receives an Info message from Open and Debug/Warn diagnostics
	// from the background writer worker. Nil defaults to slog.Default(), matching the
	// teacher's convention of accepting a nil logger everywhere one is
	// threaded through.
	Logger *slog.Logger
}

// instanceMeta is the "info" sub-database's bookkeeping record: just the
// instance's stable identity. Collection/link id assignment is handled by
// schema.Registry, reseeded from every persisted schema document on each
// Open rather than carried in this record, so it stays correct even if a
// collection persisted in an earlier Open is omitted from a later one.
type instanceMeta struct {
	InstanceID uuid.UUID
}

const (
	infoDBName    = "info"
	metaKey       = "_meta"
	schemaKeyPfx  = "col:"
	linksDBName   = "links"
	primaryDBIPfx = "coll:"
	indexDBIPfx   = "idx:"
)

// Instance is one opened instance directory: its KV environment, its
// compiled, wired-up collections, and the single background goroutine
// that serialises every write transaction, per the concurrency model's
// single-writer discipline.
type Instance struct {
	env         kv.Env
	logger      *slog.Logger
	instanceID  uuid.UUID
	collections map[string]*collection.Collection

	writer *writer
}

// Open opens (creating if absent) the instance directory named by
// cfg.Dir, registers any collection in cfg.Schemas not already persisted,
// and starts the background writer goroutine. The returned Instance must
// be closed with Close.
func Open(ctx context.Context, cfg Config) (*Instance, error) {
	env, err := kv.OpenMDBX(kv.Options{
		Dir:               cfg.Dir,
		MaxSizeBytes:      cfg.MaxSizeBytes,
		RelaxedDurability: cfg.RelaxedDurability,
		Shared:            cfg.Shared,
	})
	if err != nil {
		return nil, err
	}
	return openWithEnv(ctx, cfg, env)
}

// openWithEnv is Open's engine-agnostic core, split out so tests can drive
// it against memkv's in-memory Env instead of a real mdbx-backed one.
func openWithEnv(ctx context.Context, cfg Config, env kv.Env) (*Instance, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inst := &Instance{env: env, logger: logger, collections: make(map[string]*collection.Collection)}
	if err := inst.bootstrap(ctx, cfg.Schemas); err != nil {
		env.Close()
		return nil, err
	}

	inst.writer = newWriter(env, logger)
	logger.Info("isardb: instance opened", "dir", cfg.Dir, "instance_id", inst.instanceID, "collections", len(inst.collections))
	return inst, nil
}

// bootstrap loads or creates the "info" database's bookkeeping record and
// every named collection's schema document, then opens each collection's
// primary, index, and link sub-databases, all inside one write
// transaction so a crash mid-registration never leaves a half-registered
// collection behind.
func (inst *Instance) bootstrap(ctx context.Context, defs []schema.CollectionDef) error {
	rw, err := inst.env.BeginWrite(ctx)
	if err != nil {
		return err
	}
	w := txn.NewWrite(rw)
	committed := false
	defer func() {
		if !committed {
			w.Abort()
		}
	}()

	infoDBI, err := w.OpenDB(infoDBName, kv.DBCreate)
	if err != nil {
		return err
	}

	meta, err := loadOrInitMeta(w, infoDBI)
	if err != nil {
		return err
	}

	existingByName, existingAll, err := loadPersistedSchemas(w, infoDBI)
	if err != nil {
		return err
	}
	reg := schema.NewRegistry(existingAll)

	compiled := make(map[string]*schema.Collection, len(defs))
	for _, def := range defs {
		prior := existingByName[def.Name]
		c, err := reg.Compile(prior, def)
		if err != nil {
			return err
		}
		// Re-persisting on every Open (not just when def actually grew) is
		// cheap at bootstrap time and keeps this branch-free: Registry.Compile
		// reproduces prior's exact properties/offsets when nothing changed,
		// so this is a no-op write in the common case.
		enc, err := schema.Encode(c)
		if err != nil {
			return err
		}
		if err := w.Put(infoDBI, []byte(schemaKeyPfx+def.Name), enc); err != nil {
			return err
		}
		compiled[def.Name] = c
	}

	if err := saveMeta(w, infoDBI, meta); err != nil {
		return err
	}
	inst.instanceID = meta.InstanceID

	linksDBI, err := w.OpenDB(linksDBName, kv.DBCreate|kv.DBDupSort)
	if err != nil {
		return err
	}

	runtime := make(map[string]*collection.Collection, len(compiled))
	for name, c := range compiled {
		primary, err := w.OpenDB(primaryDBIPfx+name, kv.DBCreate)
		if err != nil {
			return err
		}
		indexes := make([]*index.Index, 0, len(c.Indexes))
		for _, ixDef := range c.Indexes {
			flags := kv.DBFlags(kv.DBCreate)
			if !ixDef.Unique {
				flags |= kv.DBDupSort
			}
			ixDBI, err := w.OpenDB(indexDBIPfx+name+":"+ixDef.Name, flags)
			if err != nil {
				return err
			}
			indexes = append(indexes, index.New(ixDef, ixDBI, c.Properties))
		}
		runtime[name] = &collection.Collection{Schema: c, PrimaryDBI: primary, Indexes: indexes}
	}

	// Second pass: wire outgoing and incoming link engines now that every
	// collection's runtime id is known.
	for name, c := range compiled {
		rc := runtime[name]
		for _, l := range c.Links {
			target, ok := runtime[l.TargetCollection]
			if !ok {
				return isarerr.New(isarerr.IllegalArgument, "isardb: link %q on collection %q targets unknown collection %q", l.Name, name, l.TargetCollection)
			}
			eng := link.New(l, linksDBI, rc.Schema.ID, target.Schema.ID)
			rc.OutgoingLinks = append(rc.OutgoingLinks, eng)
			target.IncomingLinks = append(target.IncomingLinks, eng)
		}
	}

	if err := w.Commit(); err != nil {
		return err
	}
	committed = true
	inst.collections = runtime
	return nil
}

func loadOrInitMeta(w *txn.Write, infoDBI kv.DBI) (instanceMeta, error) {
	raw, ok, err := w.Get(infoDBI, []byte(metaKey))
	if err != nil {
		return instanceMeta{}, err
	}
	if !ok {
		return instanceMeta{InstanceID: uuid.New()}, nil
	}
	return decodeMeta(raw)
}

// loadPersistedSchemas reads every already-persisted collection document
// under the "info" database, both keyed by name (so a prior document for
// a given CollectionDef can be found) and as a flat slice (so
// schema.NewRegistry can seed its id counters from every collection ever
// registered, even one omitted from this particular Open's Schemas).
func loadPersistedSchemas(w *txn.Write, infoDBI kv.DBI) (map[string]*schema.Collection, []*schema.Collection, error) {
	cur, err := w.Cursor(infoDBI, "bootstrap-schema-scan")
	if err != nil {
		return nil, nil, err
	}
	byName := make(map[string]*schema.Collection)
	var all []*schema.Collection
	lower := []byte(schemaKeyPfx)
	upper := prefixUpperBound(lower)
	err = cur.IterBetween(lower, upper, false, true, func(_, v []byte) (bool, error) {
		c, err := schema.Decode(v)
		if err != nil {
			return false, err
		}
		byName[c.Name] = c
		all = append(all, c)
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return byName, all, nil
}

// Close stops the background writer and releases the KV environment. Any
// write still enqueued is run to completion first. Close must not be
// called concurrently with Write.
func (inst *Instance) Close() error {
	inst.writer.stop()
	return inst.env.Close()
}

// InstanceID is the stable identifier stamped into the instance directory
// the first time it was ever opened; it never changes across reopens and
// has no functional role beyond identification (isarctl info surfaces it).
func (inst *Instance) InstanceID() uuid.UUID {
	return inst.instanceID
}

// Collection returns the named collection's runtime handle, satisfying
// query.Resolver so Link filters can recurse into it.
func (inst *Instance) Collection(name string) (*collection.Collection, error) {
	c, ok := inst.collections[name]
	if !ok {
		return nil, isarerr.New(isarerr.IllegalArgument, "isardb: unknown collection %q", name)
	}
	return c, nil
}

// NewQuery starts a Builder against the named collection.
func (inst *Instance) NewQuery(collectionName string) (*query.Builder, error) {
	c, err := inst.Collection(collectionName)
	if err != nil {
		return nil, err
	}
	return query.NewBuilder(c, inst), nil
}

// BeginRead opens a snapshot read transaction, ready to pass directly to
// Collection.Get, Query.FindAll, and the other read operations that take a
// kv.RoTx. The caller must Abort it when done.
func (inst *Instance) BeginRead(ctx context.Context) (kv.RoTx, error) {
	return inst.env.BeginRead(ctx)
}

// Write enqueues fn to run against the single background write
// transaction and blocks until it has committed or aborted, per the
// concurrency model's one-writer-at-a-time guarantee. Enqueued writers
// run strictly in submission order (FIFO). fn receives the raw kv.RwTx,
// ready to pass directly to Collection.Put/Delete, Index/Link
// maintenance, and Query.DeleteAll.
func (inst *Instance) Write(ctx context.Context, fn func(tx kv.RwTx) error) error {
	return inst.writer.submit(ctx, fn)
}

func decodeMeta(b []byte) (instanceMeta, error) {
	var m instanceMeta
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&m); err != nil {
		return instanceMeta{}, isarerr.Wrap(isarerr.DbError, err, "isardb: decode instance metadata")
	}
	return m, nil
}

func saveMeta(w *txn.Write, infoDBI kv.DBI, m instanceMeta) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return isarerr.Wrap(isarerr.DbError, err, "isardb: encode instance metadata")
	}
	return w.Put(infoDBI, []byte(metaKey), buf.Bytes())
}
