package memkv

import (
	"context"
	"testing"

	"github.com/kvdoc/isardb/internal/kv"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	env := New()
	ctx := context.Background()

	wtx, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	dbi, err := wtx.OpenDB("things", kv.DBCreate)
	require.NoError(t, err)
	require.NoError(t, wtx.Put(dbi, []byte("a"), []byte("1")))
	require.NoError(t, wtx.Put(dbi, []byte("b"), []byte("2")))
	require.NoError(t, wtx.Commit())

	rtx, err := env.BeginRead(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	dbi2, err := rtx.OpenDB("things", 0)
	require.NoError(t, err)
	v, ok, err := rtx.Get(dbi2, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestReadSnapshotIsolation(t *testing.T) {
	env := New()
	ctx := context.Background()

	wtx, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	dbi, err := wtx.OpenDB("things", kv.DBCreate)
	require.NoError(t, err)
	require.NoError(t, wtx.Put(dbi, []byte("a"), []byte("1")))
	require.NoError(t, wtx.Commit())

	rtx, err := env.BeginRead(ctx)
	require.NoError(t, err)
	defer rtx.Abort()

	wtx2, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	dbi2, err := wtx2.OpenDB("things", 0)
	require.NoError(t, err)
	require.NoError(t, wtx2.Put(dbi2, []byte("a"), []byte("2")))
	require.NoError(t, wtx2.Commit())

	dbiR, err := rtx.OpenDB("things", 0)
	require.NoError(t, err)
	v, ok, err := rtx.Get(dbiR, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v, "read transaction must not observe a commit that happened after it began")
}

func TestDupSortCursorIteration(t *testing.T) {
	env := New()
	ctx := context.Background()

	wtx, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	dbi, err := wtx.OpenDB("idx", kv.DBCreate|kv.DBDupSort)
	require.NoError(t, err)
	require.NoError(t, wtx.Put(dbi, []byte("k1"), []byte("v1")))
	require.NoError(t, wtx.Put(dbi, []byte("k1"), []byte("v2")))
	require.NoError(t, wtx.Put(dbi, []byte("k2"), []byte("v1")))
	require.NoError(t, wtx.Commit())

	rtx, err := env.BeginRead(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	dbiR, err := rtx.OpenDB("idx", 0)
	require.NoError(t, err)
	cur, err := rtx.Cursor(dbiR)
	require.NoError(t, err)
	defer cur.Close()

	var dups [][]byte
	require.NoError(t, cur.IterDups([]byte("k1"), func(v []byte) (bool, error) {
		dups = append(dups, v)
		return true, nil
	}))
	require.Equal(t, [][]byte{[]byte("v1"), []byte("v2")}, dups)
}

func TestDeleteRange(t *testing.T) {
	env := New()
	ctx := context.Background()

	wtx, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	dbi, err := wtx.OpenDB("things", kv.DBCreate)
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, wtx.Put(dbi, []byte(k), []byte("x")))
	}
	require.NoError(t, wtx.DeleteRange(dbi, []byte("b"), []byte("d")))
	require.NoError(t, wtx.Commit())

	rtx, err := env.BeginRead(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	dbiR, err := rtx.OpenDB("things", 0)
	require.NoError(t, err)
	for _, tc := range []struct {
		key string
		ok  bool
	}{{"a", true}, {"b", false}, {"c", false}, {"d", true}} {
		_, ok, err := rtx.Get(dbiR, []byte(tc.key))
		require.NoError(t, err)
		require.Equal(t, tc.ok, ok, tc.key)
	}
}
