package kv

import (
	"github.com/erigontech/mdbx-go/mdbx"
)

type mdbxCursor struct {
	c *mdbx.Cursor
}

func (cu *mdbxCursor) MoveTo(key []byte) ([]byte, bool, error) {
	k, v, err := cu.c.Get(key, nil, mdbx.SetRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, translateErr(err)
	}
	_ = k
	return v, true, nil
}

func (cu *mdbxCursor) MoveToKeyVal(key, val []byte) (bool, error) {
	_, _, err := cu.c.Get(key, val, mdbx.GetBoth)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return false, nil
		}
		return false, translateErr(err)
	}
	return true, nil
}

func (cu *mdbxCursor) IterBetween(lower, upper []byte, skipDupValues, ascending bool, fn func(k, v []byte) (bool, error)) error {
	var (
		k, v []byte
		err  error
	)

	nextOp := mdbx.Next
	if skipDupValues {
		nextOp = mdbx.NextNoDup
	}

	if ascending {
		k, v, err = cu.c.Get(lower, nil, mdbx.SetRange)
	} else {
		if upper == nil {
			k, v, err = cu.c.Get(nil, nil, mdbx.Last)
		} else {
			k, v, err = cu.c.Get(upper, nil, mdbx.SetRange)
			if err != nil && mdbx.IsNotFound(err) {
				// every key is below upper: start from the last entry
				k, v, err = cu.c.Get(nil, nil, mdbx.Last)
			} else if err == nil && compareBytes(k, upper) >= 0 {
				k, v, err = cu.c.Get(nil, nil, mdbx.Prev)
			}
		}
	}

	for err == nil {
		if ascending && upper != nil && compareBytes(k, upper) >= 0 {
			break
		}
		if !ascending && lower != nil && compareBytes(k, lower) < 0 {
			break
		}

		cont, cbErr := fn(k, v)
		if cbErr != nil {
			return cbErr
		}
		if !cont {
			return nil
		}

		if ascending {
			k, v, err = cu.c.Get(nil, nil, nextOp)
		} else {
			k, v, err = cu.c.Get(nil, nil, mdbx.Prev)
		}
	}
	if err != nil && !mdbx.IsNotFound(err) {
		return translateErr(err)
	}
	return nil
}

func (cu *mdbxCursor) IterDups(key []byte, fn func(v []byte) (bool, error)) error {
	_, v, err := cu.c.Get(key, nil, mdbx.Set)
	for err == nil {
		cont, cbErr := fn(v)
		if cbErr != nil {
			return cbErr
		}
		if !cont {
			return nil
		}
		_, v, err = cu.c.Get(nil, nil, mdbx.NextDup)
	}
	if err != nil && !mdbx.IsNotFound(err) {
		return translateErr(err)
	}
	return nil
}

func (cu *mdbxCursor) Put(key, val []byte) error {
	if err := cu.c.Put(key, val, 0); err != nil {
		return translateErr(err)
	}
	return nil
}

func (cu *mdbxCursor) DeleteCurrent() error {
	if err := cu.c.Del(0); err != nil {
		return translateErr(err)
	}
	return nil
}

func (cu *mdbxCursor) Close() {
	cu.c.Close()
}
