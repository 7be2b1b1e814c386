package schema

import (
	"testing"

	"github.com/kvdoc/isardb/internal/object"
	"github.com/stretchr/testify/require"
)

func userDef() CollectionDef {
	return CollectionDef{
		Name: "User",
		Properties: []object.Property{
			{Name: "age", Type: object.Int},
			{Name: "name", Type: object.String},
		},
		Indexes: []IndexDef{
			{Name: "age_idx", Components: []IndexComponent{{Property: "age", Mode: ModeValue}}},
			{Name: "name_idx", Components: []IndexComponent{{Property: "name", Mode: ModeValue}}, Unique: true},
		},
	}
}

func TestCompileAssignsStableCollectionID(t *testing.T) {
	r := NewRegistry(nil)
	c, err := r.Compile(nil, userDef())
	require.NoError(t, err)
	require.EqualValues(t, 1, c.ID)
}

func TestCompileReusesIDAcrossReopen(t *testing.T) {
	r := NewRegistry(nil)
	first, err := r.Compile(nil, userDef())
	require.NoError(t, err)

	// Simulate a restart: a fresh registry seeded from the persisted
	// collection must reuse the same id and property offsets.
	r2 := NewRegistry([]*Collection{first})
	second, err := r2.Compile(first, userDef())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Properties, second.Properties)
}

func TestCompileRejectsRemovedProperty(t *testing.T) {
	r := NewRegistry(nil)
	prior, err := r.Compile(nil, userDef())
	require.NoError(t, err)

	reduced := CollectionDef{
		Name: "User",
		Properties: []object.Property{
			{Name: "age", Type: object.Int},
		},
	}
	_, err = r.Compile(prior, reduced)
	require.Error(t, err)
}

func TestCompileRejectsRetypedProperty(t *testing.T) {
	r := NewRegistry(nil)
	prior, err := r.Compile(nil, userDef())
	require.NoError(t, err)

	retyped := userDef()
	retyped.Properties[0].Type = object.Long
	_, err = r.Compile(prior, retyped)
	require.Error(t, err)
}

func TestCompileAllowsAdditiveProperty(t *testing.T) {
	r := NewRegistry(nil)
	prior, err := r.Compile(nil, userDef())
	require.NoError(t, err)

	grown := userDef()
	grown.Properties = append(grown.Properties, object.Property{Name: "score", Type: object.Double})
	next, err := r.Compile(prior, grown)
	require.NoError(t, err)

	age, _ := next.Property("age")
	priorAge, _ := prior.Property("age")
	require.Equal(t, priorAge.Offset, age.Offset)

	score, ok := next.Property("score")
	require.True(t, ok)
	require.NotZero(t, score)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := NewRegistry(nil)
	c, err := r.Compile(nil, userDef())
	require.NoError(t, err)

	data, err := Encode(c)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, c.Name, back.Name)
	require.Equal(t, c.ID, back.ID)
	require.Equal(t, c.Properties, back.Properties)
}

func TestIsMultiEntry(t *testing.T) {
	def := CollectionDef{
		Name: "Post",
		Properties: []object.Property{
			{Name: "tags", Type: object.StringList},
		},
		Indexes: []IndexDef{
			{Name: "tags_idx", Components: []IndexComponent{{Property: "tags", Mode: ModeHashElements}}},
			{Name: "tags_hash", Components: []IndexComponent{{Property: "tags", Mode: ModeHash}}},
		},
	}
	r := NewRegistry(nil)
	c, err := r.Compile(nil, def)
	require.NoError(t, err)

	multi, _ := c.Index("tags_idx")
	require.True(t, multi.IsMultiEntry(c.Properties))

	single, _ := c.Index("tags_hash")
	require.False(t, single.IsMultiEntry(c.Properties))
}
