package query_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvdoc/isardb/collection"
	"github.com/kvdoc/isardb/index"
	"github.com/kvdoc/isardb/internal/indexkey"
	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/internal/kv/memkv"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/link"
	"github.com/kvdoc/isardb/query"
	"github.com/kvdoc/isardb/schema"
)

type harness struct {
	env   *memkv.Env
	wtx   kv.RwTx
	users *collection.Collection
	posts *collection.Collection

	userProps      []object.Property
	userStaticSize int
	postProps      []object.Property
	postStaticSize int
}

func (h *harness) Collection(name string) (*collection.Collection, error) {
	switch name {
	case "users":
		return h.users, nil
	case "posts":
		return h.posts, nil
	default:
		return nil, isarerr.New(isarerr.IllegalArgument, "query_test: unknown collection %q", name)
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	userProps, userStaticSize := object.Compile([]object.Property{
		{Name: "name", Type: object.String},
		{Name: "age", Type: object.Int},
	})
	postProps, postStaticSize := object.Compile([]object.Property{
		{Name: "title", Type: object.String},
	})

	env := memkv.New()
	wtx, err := env.BeginWrite(context.Background())
	require.NoError(t, err)

	userPrimary, err := wtx.OpenDB("coll:users", kv.DBCreate)
	require.NoError(t, err)
	ageIdxDBI, err := wtx.OpenDB("idx:users:age_idx", kv.DBCreate|kv.DBDupSort)
	require.NoError(t, err)
	ageIdxDef := schema.IndexDef{Name: "age_idx", Components: []schema.IndexComponent{{Property: "age", Mode: schema.ModeValue}}}
	ageIdx := index.New(ageIdxDef, ageIdxDBI, userProps)

	postPrimary, err := wtx.OpenDB("coll:posts", kv.DBCreate)
	require.NoError(t, err)

	linksDBI, err := wtx.OpenDB("links", kv.DBCreate|kv.DBDupSort)
	require.NoError(t, err)
	authorDef := schema.LinkDef{
		Name: "author", BacklinkName: "posts", LinkID: 1, BacklinkID: 2,
		SourceCollection: "posts", TargetCollection: "users",
	}
	authorLink := link.New(authorDef, linksDBI, 2 /*posts*/, 1 /*users*/)

	usersSchema := &schema.Collection{Name: "users", ID: 1, Properties: userProps, StaticSize: userStaticSize, Indexes: []schema.IndexDef{ageIdxDef}}
	postsSchema := &schema.Collection{Name: "posts", ID: 2, Properties: postProps, StaticSize: postStaticSize, Links: []schema.LinkDef{authorDef}}

	users := &collection.Collection{
		Schema: usersSchema, PrimaryDBI: userPrimary,
		Indexes:       []*index.Index{ageIdx},
		IncomingLinks: []*link.Link{authorLink},
	}
	posts := &collection.Collection{
		Schema: postsSchema, PrimaryDBI: postPrimary,
		OutgoingLinks: []*link.Link{authorLink},
	}

	return &harness{
		env: env, wtx: wtx, users: users, posts: posts,
		userProps: userProps, userStaticSize: userStaticSize,
		postProps: postProps, postStaticSize: postStaticSize,
	}
}

func (h *harness) buildUser(name string, age int32) []byte {
	b := object.NewBuilder(h.userProps, h.userStaticSize)
	b.PutString("name", name, false)
	b.PutInt("age", age)
	return b.Build()
}

func (h *harness) buildPost(title string) []byte {
	b := object.NewBuilder(h.postProps, h.postStaticSize)
	b.PutString("title", title, false)
	return b.Build()
}

func TestFindAllFullScanAppliesFilter(t *testing.T) {
	h := newHarness(t)
	_, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("alice", 30), false)
	require.NoError(t, err)
	_, err = h.users.Put(h.wtx, collection.NoID, h.buildUser("bob", 17), false)
	require.NoError(t, err)

	q := query.NewBuilder(h.users, h).
		Filter(query.Between{Property: "age", LowerI: 18, UpperI: 200}).
		Build()

	var names []string
	err = q.FindAll(h.wtx, func(id int64, buf []byte) (bool, error) {
		v, _ := object.GetString(buf, findProp(h.userProps, "name"))
		names = append(names, v)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, names)
}

func TestWhereIndexRangeScan(t *testing.T) {
	h := newHarness(t)
	_, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("a", 10), false)
	require.NoError(t, err)
	_, err = h.users.Put(h.wtx, collection.NoID, h.buildUser("b", 20), false)
	require.NoError(t, err)
	_, err = h.users.Put(h.wtx, collection.NoID, h.buildUser("c", 30), false)
	require.NoError(t, err)

	lower := indexkey.EncodeInt(15)
	upper := indexkey.EncodeInt(40)
	q := query.NewBuilder(h.users, h).
		WhereIndex("age_idx", lower, upper, true, true, false, true).
		Build()

	n, err := q.Count(h.wtx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestDeleteAllRemovesMatchingRecords(t *testing.T) {
	h := newHarness(t)
	_, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("old", 99), false)
	require.NoError(t, err)
	keepID, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("young", 5), false)
	require.NoError(t, err)

	q := query.NewBuilder(h.users, h).
		Filter(query.Between{Property: "age", LowerI: 50, UpperI: 150}).
		Build()
	n, err := q.DeleteAll(h.wtx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, err := h.users.Get(h.wtx, keepID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAggregateSumAndAvg(t *testing.T) {
	h := newHarness(t)
	_, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("a", 10), false)
	require.NoError(t, err)
	_, err = h.users.Put(h.wtx, collection.NoID, h.buildUser("b", 20), false)
	require.NoError(t, err)
	_, err = h.users.Put(h.wtx, collection.NoID, h.buildUser("c", 30), false)
	require.NoError(t, err)

	q := query.NewBuilder(h.users, h).Build()
	sum, err := q.Aggregate(h.wtx, query.AggSum, "age")
	require.NoError(t, err)
	require.Equal(t, float64(60), sum)

	avg, err := q.Aggregate(h.wtx, query.AggAvg, "age")
	require.NoError(t, err)
	require.Equal(t, float64(20), avg)
}

func TestLinkFilterTraversesBacklink(t *testing.T) {
	h := newHarness(t)
	authorID, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("alice", 30), false)
	require.NoError(t, err)
	otherID, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("bob", 40), false)
	require.NoError(t, err)

	postID, err := h.posts.Put(h.wtx, collection.NoID, h.buildPost("hello"), false)
	require.NoError(t, err)

	var authorLink *link.Link
	for _, l := range h.posts.OutgoingLinks {
		authorLink = l
	}
	require.NoError(t, authorLink.Create(h.wtx, postID, authorID))

	q := query.NewBuilder(h.users, h).
		Filter(query.Link{LinkName: "posts", IsBacklink: true}).
		Build()

	var ids []int64
	err = q.FindAll(h.wtx, func(id int64, buf []byte) (bool, error) {
		ids = append(ids, id)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{authorID}, ids)
	_ = otherID
}

func TestLinkFilterRaisesDbCorruptedOnMissingTarget(t *testing.T) {
	h := newHarness(t)
	authorID, err := h.users.Put(h.wtx, collection.NoID, h.buildUser("alice", 30), false)
	require.NoError(t, err)
	postID, err := h.posts.Put(h.wtx, collection.NoID, h.buildPost("hello"), false)
	require.NoError(t, err)

	var authorLink *link.Link
	for _, l := range h.posts.OutgoingLinks {
		authorLink = l
	}
	require.NoError(t, authorLink.Create(h.wtx, postID, authorID))

	// Simulate primary-data corruption: remove alice's primary record
	// directly (bypassing Collection.Delete, which would also sever the
	// link) so the author edge survives but its target does not.
	_, ok, err := h.users.Get(h.wtx, authorID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.wtx.Delete(h.users.PrimaryDBI, idKeyForTest(authorID), nil))

	q := query.NewBuilder(h.posts, h).
		Filter(query.Link{LinkName: "author", Child: query.Static{Value: true}}).
		Build()

	err = q.FindAll(h.wtx, func(id int64, buf []byte) (bool, error) {
		return true, nil
	})
	require.Error(t, err)
	require.True(t, isarerr.Of(err, isarerr.DbCorrupted))
}

// idKeyForTest mirrors collection's unexported big-endian id encoding, used
// here only to reach into the primary database directly and simulate
// corruption that Collection.Delete's own link bookkeeping would prevent.
func idKeyForTest(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func findProp(props []object.Property, name string) object.Property {
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	panic("not found: " + name)
}

