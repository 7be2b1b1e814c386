package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvdoc/isardb/index"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/kv/memkv"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/schema"
)

func compileProps(t *testing.T) ([]object.Property, int) {
	t.Helper()
	props, staticSize := object.Compile([]object.Property{
		{Name: "name", Type: object.String},
		{Name: "age", Type: object.Int},
	})
	return props, staticSize
}

func buildObj(t *testing.T, props []object.Property, staticSize int, name string, age int32) []byte {
	t.Helper()
	b := object.NewBuilder(props, staticSize)
	b.PutString("name", name, false)
	b.PutInt("age", age)
	return b.Build()
}

func openIndex(t *testing.T, def schema.IndexDef, props []object.Property) (*index.Index, kv.RwTx) {
	t.Helper()
	env := memkv.New()
	wtx, err := env.BeginWrite(context.Background())
	require.NoError(t, err)
	flags := kv.DBCreate
	if !def.Unique {
		flags |= kv.DBDupSort
	}
	dbi, err := wtx.OpenDB("idx:test:"+def.Name, flags)
	require.NoError(t, err)
	return index.New(def, dbi, props), wtx
}

func TestNonUniqueIndexAscendingIDOrderOnTies(t *testing.T) {
	props, staticSize := compileProps(t)
	def := schema.IndexDef{Name: "age_idx", Components: []schema.IndexComponent{{Property: "age", Mode: schema.ModeValue}}}
	ix, wtx := openIndex(t, def, props)

	objA := buildObj(t, props, staticSize, "a", 30)
	objB := buildObj(t, props, staticSize, "b", 30)
	objC := buildObj(t, props, staticSize, "c", 40)

	require.NoError(t, ix.CreateForObject(wtx, 1, objA, nil))
	require.NoError(t, ix.CreateForObject(wtx, 2, objB, nil))
	require.NoError(t, ix.CreateForObject(wtx, 3, objC, nil))

	var ids []int64
	lower := fixedInt(30)
	upper := fixedInt(31)
	require.NoError(t, ix.IterBetween(wtx, lower, upper, false, true, func(id int64) (bool, error) {
		ids = append(ids, id)
		return true, nil
	}))
	require.Equal(t, []int64{1, 2}, ids)
}

func TestUniqueIndexConflictWithoutCallback(t *testing.T) {
	props, staticSize := compileProps(t)
	def := schema.IndexDef{Name: "name_idx", Unique: true, Components: []schema.IndexComponent{{Property: "name", Mode: schema.ModeValue}}}
	ix, wtx := openIndex(t, def, props)

	obj1 := buildObj(t, props, staticSize, "x", 1)
	obj2 := buildObj(t, props, staticSize, "x", 2)

	require.NoError(t, ix.CreateForObject(wtx, 1, obj1, nil))
	err := ix.CreateForObject(wtx, 2, obj2, nil)
	require.Error(t, err)
}

func TestUniqueIndexOnConflictCascade(t *testing.T) {
	props, staticSize := compileProps(t)
	def := schema.IndexDef{Name: "name_idx", Unique: true, Components: []schema.IndexComponent{{Property: "name", Mode: schema.ModeValue}}}
	ix, wtx := openIndex(t, def, props)

	obj1 := buildObj(t, props, staticSize, "x", 1)
	obj2 := buildObj(t, props, staticSize, "x", 2)
	require.NoError(t, ix.CreateForObject(wtx, 1, obj1, nil))

	var conflicted int64
	require.NoError(t, ix.CreateForObject(wtx, 2, obj2, func(existingID int64) (bool, error) {
		conflicted = existingID
		return true, nil
	}))
	require.Equal(t, int64(1), conflicted)

	id, ok, err := ix.GetID(wtx, indexKeyForString("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), id)
}

func TestMultiEntryIndexOverStringList(t *testing.T) {
	props, staticSize := object.Compile([]object.Property{
		{Name: "tags", Type: object.StringList},
	})
	def := schema.IndexDef{Name: "tags_idx", Components: []schema.IndexComponent{{Property: "tags", Mode: schema.ModeHashElements}}}
	ix, wtx := openIndex(t, def, props)

	b1 := object.NewBuilder(props, staticSize)
	b1.PutStringList("tags", []object.StringElement{{Value: "red"}, {Value: "green"}}, false)
	obj1 := b1.Build()

	b2 := object.NewBuilder(props, staticSize)
	b2.PutStringList("tags", []object.StringElement{{Value: "green"}, {Value: "blue"}}, false)
	obj2 := b2.Build()

	require.NoError(t, ix.CreateForObject(wtx, 1, obj1, nil))
	require.NoError(t, ix.CreateForObject(wtx, 2, obj2, nil))

	seen := map[int64]bool{}
	require.NoError(t, ix.IterBetween(wtx, nil, nil, false, true, func(id int64) (bool, error) {
		seen[id] = true
		return true, nil
	}))
	require.True(t, seen[1])
	require.True(t, seen[2])
}

func fixedInt(v int32) []byte {
	b := make([]byte, 4)
	uv := uint32(v) ^ 0x8000_0000
	b[0] = byte(uv >> 24)
	b[1] = byte(uv >> 16)
	b[2] = byte(uv >> 8)
	b[3] = byte(uv)
	return b
}

func indexKeyForString(s string) []byte {
	return append([]byte(s), 0x00)
}
