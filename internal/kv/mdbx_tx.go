package kv

import (
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/kvdoc/isardb/isarerr"
)

type mdbxTx struct {
	txn      *mdbx.Txn
	writable bool
}

func (t *mdbxTx) OpenDB(name string, flags DBFlags) (DBI, error) {
	var mflags uint
	if flags&DBCreate != 0 {
		mflags |= mdbx.Create
	}
	if flags&DBDupSort != 0 {
		mflags |= mdbx.DupSort
	}
	if flags&DBIntegerKey != 0 {
		mflags |= mdbx.IntegerKey
	}
	dbi, err := t.txn.OpenDBI(name, mflags, nil, nil)
	if err != nil {
		return 0, isarerr.Wrap(isarerr.DbError, err, "kv: open sub-database %q", name)
	}
	return DBI(dbi), nil
}

func (t *mdbxTx) Get(dbi DBI, key []byte) ([]byte, bool, error) {
	val, err := t.txn.Get(mdbx.DBI(dbi), key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, translateErr(err)
	}
	return val, true, nil
}

func (t *mdbxTx) Cursor(dbi DBI) (Cursor, error) {
	c, err := t.txn.OpenCursor(mdbx.DBI(dbi))
	if err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "kv: open cursor")
	}
	return &mdbxCursor{c: c}, nil
}

func (t *mdbxTx) Abort() {
	t.txn.Abort()
}

func (t *mdbxTx) Put(dbi DBI, key, val []byte) error {
	if err := t.txn.Put(mdbx.DBI(dbi), key, val, 0); err != nil {
		return translateErr(err)
	}
	return nil
}

func (t *mdbxTx) Delete(dbi DBI, key, val []byte) error {
	if err := t.txn.Del(mdbx.DBI(dbi), key, val); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return translateErr(err)
	}
	return nil
}

func (t *mdbxTx) Drop(dbi DBI) error {
	if err := t.txn.Drop(mdbx.DBI(dbi), false); err != nil {
		return translateErr(err)
	}
	return nil
}

func (t *mdbxTx) DeleteRange(dbi DBI, lower, upper []byte) error {
	cur, err := t.txn.OpenCursor(mdbx.DBI(dbi))
	if err != nil {
		return isarerr.Wrap(isarerr.DbError, err, "kv: open cursor for range delete")
	}
	defer cur.Close()

	for k, _, err := cur.Get(lower, nil, mdbx.SetRange); err == nil; k, _, err = cur.Get(nil, nil, mdbx.Next) {
		if upper != nil && compareBytes(k, upper) >= 0 {
			break
		}
		if derr := cur.Del(0); derr != nil {
			return translateErr(derr)
		}
	}
	return nil
}

func (t *mdbxTx) Commit() error {
	if _, err := t.txn.Commit(); err != nil {
		return translateErr(err)
	}
	return nil
}

func compareBytes(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
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
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}
