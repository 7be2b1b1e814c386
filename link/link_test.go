package link_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/kv/memkv"
	"github.com/kvdoc/isardb/link"
	"github.com/kvdoc/isardb/schema"
)

func openLink(t *testing.T) (*link.Link, kv.RwTx) {
	t.Helper()
	env := memkv.New()
	wtx, err := env.BeginWrite(context.Background())
	require.NoError(t, err)
	dbi, err := wtx.OpenDB("links", kv.DBCreate|kv.DBDupSort)
	require.NoError(t, err)
	def := schema.LinkDef{Name: "friends", BacklinkName: "friends_of", LinkID: 1, BacklinkID: 2, SourceCollection: "User", TargetCollection: "User"}
	return link.New(def, dbi, 7, 7), wtx
}

func TestCreateAndIterForward(t *testing.T) {
	l, wtx := openLink(t)
	require.NoError(t, l.Create(wtx, 1, 2))
	require.NoError(t, l.Create(wtx, 1, 3))

	var targets []int64
	require.NoError(t, l.Iter(wtx, 1, func(tgt link.Target) (bool, error) {
		targets = append(targets, tgt.ID)
		return true, nil
	}))
	require.ElementsMatch(t, []int64{2, 3}, targets)
}

func TestDeleteAllForObjectRemovesBacklinksToo(t *testing.T) {
	l, wtx := openLink(t)
	require.NoError(t, l.Create(wtx, 1, 2))
	require.NoError(t, l.Create(wtx, 1, 3))

	require.NoError(t, l.DeleteAllForObject(wtx, 2))

	var remaining []int64
	require.NoError(t, l.Iter(wtx, 1, func(tgt link.Target) (bool, error) {
		remaining = append(remaining, tgt.ID)
		return true, nil
	}))
	require.Equal(t, []int64{3}, remaining)
}

func TestDeleteDetectsMissingBacklinkCorruption(t *testing.T) {
	l, wtx := openLink(t)
	require.NoError(t, l.Create(wtx, 1, 2))

	// Directly strip the backlink entry to simulate on-disk corruption,
	// bypassing Link so the forward entry survives untouched.
	backKey := make([]byte, 16)
	binary.BigEndian.PutUint64(backKey[0:8], 2) // BacklinkID
	binary.BigEndian.PutUint64(backKey[8:16], 2) // target id
	require.NoError(t, wtx.Delete(l.DBI, backKey, nil))

	err := l.Delete(wtx, 1, 2)
	require.Error(t, err)
}
