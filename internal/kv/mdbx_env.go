package kv

import (
	"context"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/kvdoc/isardb/isarerr"
)

// Options configures OpenMDBX, mirroring the engine's public Config.
type Options struct {
	Dir               string
	MaxSizeBytes      uint64
	RelaxedDurability bool
	Shared            bool
}

type mdbxEnv struct {
	env *mdbx.Env
}

// OpenMDBX opens (creating if absent) an instance directory as a libmdbx
// environment and returns it behind the Env interface. libmdbx is the
// memory-mapped B+tree this engine treats as an opaque external
// collaborator: named sub-databases, a DupSort flag for duplicate values
// per key, and MVCC cursors, exactly the contract §6 describes.
func OpenMDBX(opts Options) (Env, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "kv: create mdbx env")
	}

	if err := env.SetOption(mdbx.OptMaxDB, 1024); err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "kv: set max sub-databases")
	}

	maxSize := opts.MaxSizeBytes
	if maxSize == 0 {
		maxSize = 1 << 30 // 1 GiB default, per §6
	}
	if err := env.SetGeometry(-1, -1, int(maxSize), -1, -1, -1); err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "kv: set map geometry")
	}

	var flags uint
	if opts.RelaxedDurability {
		flags |= mdbx.SafeNoSync
	}
	if !opts.Shared {
		flags |= mdbx.Exclusive
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "kv: create instance directory %q", opts.Dir)
	}

	if err := env.Open(opts.Dir, flags, 0o644); err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "kv: open mdbx environment at %q", opts.Dir)
	}

	return &mdbxEnv{env: env}, nil
}

func (e *mdbxEnv) BeginRead(ctx context.Context) (RoTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn, err := e.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, translateErr(err)
	}
	return &mdbxTx{txn: txn, writable: false}, nil
}

func (e *mdbxEnv) BeginWrite(ctx context.Context) (RwTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, translateErr(err)
	}
	return &mdbxTx{txn: txn, writable: true}, nil
}

func (e *mdbxEnv) Close() error {
	e.env.Close()
	return nil
}

// translateErr maps the store's map-exhaustion error onto isarerr.DbFull
// per §5/§7: "the KV layer may surface MapFull which is reported as
// DbFull and should be handled by the caller by growing the map size and
// retrying."
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if mdbx.IsMapFull(err) {
		return isarerr.Wrap(isarerr.DbFull, err, "kv: map full")
	}
	if mdbx.IsNotFound(err) {
		return nil // callers interpret the accompanying ok=false
	}
	return isarerr.Wrap(isarerr.DbError, err, "kv: operation failed")
}
