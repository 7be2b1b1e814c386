package collection_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvdoc/isardb/collection"
	"github.com/kvdoc/isardb/index"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/kv/memkv"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/schema"
)

type fixture struct {
	coll *collection.Collection
	wtx  kv.RwTx
	env  *memkv.Env
}

func newFixture(t *testing.T, indexes []schema.IndexDef) (*fixture, []object.Property, int) {
	t.Helper()
	props, staticSize := object.Compile([]object.Property{
		{Name: "name", Type: object.String},
		{Name: "age", Type: object.Int},
	})

	env := memkv.New()
	wtx, err := env.BeginWrite(context.Background())
	require.NoError(t, err)

	primaryDBI, err := wtx.OpenDB("coll:users", kv.DBCreate)
	require.NoError(t, err)

	var ixs []*index.Index
	for _, def := range indexes {
		flags := kv.DBCreate
		if !def.Unique {
			flags |= kv.DBDupSort
		}
		dbi, err := wtx.OpenDB("idx:users:"+def.Name, flags)
		require.NoError(t, err)
		ixs = append(ixs, index.New(def, dbi, props))
	}

	sc := &schema.Collection{Name: "users", ID: 1, Properties: props, StaticSize: staticSize, Indexes: indexes}
	c := &collection.Collection{Schema: sc, PrimaryDBI: primaryDBI, Indexes: ixs}
	return &fixture{coll: c, wtx: wtx, env: env}, props, staticSize
}

func buildUser(props []object.Property, staticSize int, name string, age int32) []byte {
	b := object.NewBuilder(props, staticSize)
	b.PutString("name", name, false)
	b.PutInt("age", age)
	return b.Build()
}

func TestPutAssignsIDAndGetRoundTrips(t *testing.T) {
	fx, props, staticSize := newFixture(t, nil)
	buf := buildUser(props, staticSize, "alice", 30)

	id, err := fx.coll.Put(fx.wtx, collection.NoID, buf, false)
	require.NoError(t, err)
	require.Equal(t, int64(0), id)

	got, ok, err := fx.coll.Get(fx.wtx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, buf, got)
}

func TestPutAutoIDsAreMonotonic(t *testing.T) {
	fx, props, staticSize := newFixture(t, nil)
	id1, err := fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "a", 1), false)
	require.NoError(t, err)
	id2, err := fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "b", 2), false)
	require.NoError(t, err)
	require.Greater(t, id2, id1)
}

func TestUniqueViolationWithoutReplace(t *testing.T) {
	def := schema.IndexDef{Name: "name_idx", Unique: true, Components: []schema.IndexComponent{{Property: "name", Mode: schema.ModeValue}}}
	fx, props, staticSize := newFixture(t, []schema.IndexDef{def})

	_, err := fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "x", 1), false)
	require.NoError(t, err)

	_, err = fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "x", 2), false)
	require.Error(t, err)
}

func TestReplaceOnConflictCascadesOneLevel(t *testing.T) {
	def := schema.IndexDef{Name: "name_idx", Unique: true, Components: []schema.IndexComponent{{Property: "name", Mode: schema.ModeValue}}}
	fx, props, staticSize := newFixture(t, []schema.IndexDef{def})

	id1, err := fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "x", 1), false)
	require.NoError(t, err)

	id2, err := fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "x", 2), true)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	_, ok, err := fx.coll.Get(fx.wtx, id1)
	require.NoError(t, err)
	require.False(t, ok, "cascaded delete should have removed the conflicting record")

	gotID, buf, ok, err := fx.coll.GetByIndex(fx.wtx, "name_idx", indexKeyForString("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id2, gotID)
	age, _ := object.GetInt(buf, findProp(props, "age"))
	require.Equal(t, int32(2), age)
}

func TestDeleteIsIdempotent(t *testing.T) {
	fx, props, staticSize := newFixture(t, nil)
	id, err := fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "a", 1), false)
	require.NoError(t, err)

	existed1, err := fx.coll.Delete(fx.wtx, id)
	require.NoError(t, err)
	require.True(t, existed1)

	existed2, err := fx.coll.Delete(fx.wtx, id)
	require.NoError(t, err)
	require.False(t, existed2)
}

func TestClearDropsEverything(t *testing.T) {
	def := schema.IndexDef{Name: "name_idx", Components: []schema.IndexComponent{{Property: "name", Mode: schema.ModeValue}}}
	fx, props, staticSize := newFixture(t, []schema.IndexDef{def})
	_, err := fx.coll.Put(fx.wtx, collection.NoID, buildUser(props, staticSize, "a", 1), false)
	require.NoError(t, err)

	require.NoError(t, fx.coll.Clear(fx.wtx))

	_, _, ok, err := fx.coll.GetByIndex(fx.wtx, "name_idx", indexKeyForString("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func findProp(props []object.Property, name string) object.Property {
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	panic("not found: " + name)
}

func indexKeyForString(s string) []byte {
	return append([]byte(s), 0x00)
}
