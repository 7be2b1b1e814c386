package indexkey

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeIntMonotonic(t *testing.T) {
	require.True(t, bytes.Compare(EncodeInt(math.MinInt32), EncodeInt(-1)) < 0)
	require.True(t, bytes.Compare(EncodeInt(-1), EncodeInt(0)) < 0)
	require.True(t, bytes.Compare(EncodeInt(0), EncodeInt(1)) < 0)
	require.True(t, bytes.Compare(EncodeInt(1), EncodeInt(math.MaxInt32)) < 0)
}

func TestEncodeLongMonotonic(t *testing.T) {
	require.True(t, bytes.Compare(EncodeLong(math.MinInt64), EncodeLong(-1)) < 0)
	require.True(t, bytes.Compare(EncodeLong(-1), EncodeLong(math.MaxInt64)) < 0)
}

func TestEncodeFloatMonotonicAndNaNIsMinimum(t *testing.T) {
	// S6: encode(-1.0) < encode(-0.0) < encode(+0.0) < encode(1.0), and NaN
	// is the minimum of all of them.
	nan := EncodeFloat(float32(math.NaN()))
	neg1 := EncodeFloat(-1.0)
	negZero := EncodeFloat(float32(math.Copysign(0, -1)))
	posZero := EncodeFloat(0.0)
	pos1 := EncodeFloat(1.0)

	require.True(t, bytes.Compare(nan, neg1) < 0)
	require.True(t, bytes.Compare(neg1, negZero) < 0)
	require.True(t, bytes.Compare(negZero, posZero) < 0)
	require.True(t, bytes.Compare(posZero, pos1) < 0)
}

func TestEncodeDoubleMonotonicAndNaNIsMinimum(t *testing.T) {
	nan := EncodeDouble(math.NaN())
	neg1 := EncodeDouble(-1.0)
	pos1 := EncodeDouble(1.0)
	require.True(t, bytes.Compare(nan, neg1) < 0)
	require.True(t, bytes.Compare(neg1, pos1) < 0)
}

func TestEncodeStringValueOrderingAndNull(t *testing.T) {
	nullKey := EncodeStringValue("", true, true)
	require.Empty(t, nullKey)

	aKey := EncodeStringValue("a", false, true)
	bKey := EncodeStringValue("b", false, true)
	require.True(t, bytes.Compare(nullKey, aKey) < 0, "null string must sort before any non-null string")
	require.True(t, bytes.Compare(aKey, bKey) < 0)
}

func TestEncodeStringValueCaseFolding(t *testing.T) {
	upper := EncodeStringValue("ABC", false, false)
	lower := EncodeStringValue("abc", false, false)
	require.Equal(t, lower, upper)

	sensitiveUpper := EncodeStringValue("ABC", false, true)
	sensitiveLower := EncodeStringValue("abc", false, true)
	require.NotEqual(t, sensitiveUpper, sensitiveLower)
}

func TestEncodeStringValueTruncates(t *testing.T) {
	long := make([]byte, MaxStringIndexSize+50)
	for i := range long {
		long[i] = 'x'
	}
	key := EncodeStringValue(string(long), false, true)
	// truncated bytes + 1 terminator byte
	require.Len(t, key, MaxStringIndexSize+1)
}

func TestStableHashDeterministic(t *testing.T) {
	h1 := StableHash([]byte("hello"))
	h2 := StableHash([]byte("hello"))
	require.Equal(t, h1, h2)

	h3 := StableHash([]byte("world"))
	require.NotEqual(t, h1, h3)
}
