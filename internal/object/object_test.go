package object

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func compileFixture(t *testing.T) ([]Property, int) {
	t.Helper()
	props, size := Compile([]Property{
		{Name: "flag", Type: Byte},
		{Name: "age", Type: Int},
		{Name: "score", Type: Float},
		{Name: "id", Type: Long},
		{Name: "weight", Type: Double},
		{Name: "name", Type: String},
		{Name: "tags", Type: StringList},
		{Name: "counts", Type: IntList},
	})
	return props, size
}

func propByName(props []Property, name string) Property {
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	panic("missing " + name)
}

func TestCompileLayoutAlignment(t *testing.T) {
	props, size := compileFixture(t)

	flag := propByName(props, "flag")
	age := propByName(props, "age")
	score := propByName(props, "score")
	id := propByName(props, "id")
	weight := propByName(props, "weight")
	name := propByName(props, "name")

	require.EqualValues(t, 0, flag.Offset)
	require.Zero(t, age.Offset%4, "int properties must be 4-byte aligned")
	require.Zero(t, score.Offset%4)
	require.Zero(t, id.Offset%8, "long properties must be 8-byte aligned")
	require.Zero(t, weight.Offset%8)
	require.Greater(t, name.Offset, id.Offset)
	require.Greater(t, size, int(name.Offset))
}

func TestRoundTripStaticAndDynamic(t *testing.T) {
	props, size := compileFixture(t)
	b := NewBuilder(props, size)

	b.PutByte("flag", 1)
	b.PutInt("age", 30)
	b.PutFloat("score", 9.5)
	b.PutLong("id", 42)
	b.PutDouble("weight", 72.25)
	b.PutString("name", "ada", false)
	b.PutStringList("tags", []StringElement{{Value: "red"}, {IsNull: true}, {Value: "green"}}, false)
	b.PutIntList("counts", []int32{1, 2, NullInt}, false)

	buf := b.Build()
	require.NoError(t, Verify(props, size, buf))

	require.EqualValues(t, 1, GetByte(buf, propByName(props, "flag")))

	age, null := GetInt(buf, propByName(props, "age"))
	require.False(t, null)
	require.EqualValues(t, 30, age)

	score, null := GetFloat(buf, propByName(props, "score"))
	require.False(t, null)
	require.InDelta(t, 9.5, score, 1e-6)

	id, null := GetLong(buf, propByName(props, "id"))
	require.False(t, null)
	require.EqualValues(t, 42, id)

	weight, null := GetDouble(buf, propByName(props, "weight"))
	require.False(t, null)
	require.InDelta(t, 72.25, weight, 1e-9)

	name, null := GetString(buf, propByName(props, "name"))
	require.False(t, null)
	require.Equal(t, "ada", name)

	tags, listNull := GetStringList(buf, propByName(props, "tags"))
	require.False(t, listNull)
	require.Equal(t, []StringElement{{Value: "red"}, {IsNull: true}, {Value: "green"}}, tags)

	counts, listNull := GetIntList(buf, propByName(props, "counts"))
	require.False(t, listNull)
	require.Equal(t, []int32{1, 2, NullInt}, counts)
}

func TestNullSentinels(t *testing.T) {
	props, size := compileFixture(t)
	b := NewBuilder(props, size)

	b.PutIntNull("age")
	b.PutFloatNull("score")
	b.PutLongNull("id")
	b.PutDoubleNull("weight")
	b.PutString("name", "", true)
	b.PutStringList("tags", nil, true)
	b.PutIntList("counts", nil, true)

	buf := b.Build()
	require.NoError(t, Verify(props, size, buf))

	_, null := GetInt(buf, propByName(props, "age"))
	require.True(t, null)

	_, null = GetFloat(buf, propByName(props, "score"))
	require.True(t, null)

	_, null = GetLong(buf, propByName(props, "id"))
	require.True(t, null)

	_, null = GetDouble(buf, propByName(props, "weight"))
	require.True(t, null)

	_, null = GetString(buf, propByName(props, "name"))
	require.True(t, null)

	_, listNull := GetStringList(buf, propByName(props, "tags"))
	require.True(t, listNull)

	_, listNull = GetIntList(buf, propByName(props, "counts"))
	require.True(t, listNull)
}

func TestNaNIsNullRegardlessOfBitPattern(t *testing.T) {
	// A non-canonical NaN bit pattern must still read back as null: the
	// engine treats every NaN uniformly, not just the one it happens to
	// write for "null".
	alt := math.Float32frombits(0x7fc00001)
	require.True(t, IsNullFloat32(alt))

	altD := math.Float64frombits(0x7ff8000000000001)
	require.True(t, IsNullFloat64(altD))
}

func TestVerifyRejectsTruncatedBuffer(t *testing.T) {
	props, size := compileFixture(t)
	buf := make([]byte, size-1)
	err := Verify(props, size, buf)
	require.Error(t, err)
}

func TestVerifyRejectsInvalidUTF8(t *testing.T) {
	props, size := compileFixture(t)
	b := NewBuilder(props, size)
	b.PutString("name", "\xff\xfe", false)
	buf := b.Build()
	err := Verify(props, size, buf)
	require.Error(t, err)
}

func TestVerifyRejectsOutOfBoundsDescriptor(t *testing.T) {
	props, size := compileFixture(t)
	b := NewBuilder(props, size)
	b.PutString("name", "ada", false)
	buf := b.Build()

	name := propByName(props, "name")
	// Corrupt the length word to claim far more data than exists.
	putU32(buf, name.Offset+4, 1<<20)

	err := Verify(props, size, buf)
	require.Error(t, err)
}
