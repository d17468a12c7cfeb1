package plist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoundTripScalarTypes(t *testing.T) {
	d := NewDict()
	d.Set("flag", Bool(true))
	d.Set("count", Int(-42))
	d.Set("big", Int(1<<40))
	d.Set("ratio", Real(1.5))
	d.Set("name", String("volume"))
	d.Set("blob", DataVal([]byte{0x01, 0x02, 0x03}))
	d.Set("when", DateVal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

	root := DictVal(d)
	enc, err := Marshal(root)
	require.NoError(t, err)
	require.Equal(t, "bplist00", string(enc[:8]))

	out, err := Unmarshal(enc)
	require.NoError(t, err)
	require.Equal(t, KindDict, out.Kind)

	v, ok := out.Dict.Get("flag")
	require.True(t, ok)
	require.True(t, v.Bool)

	v, ok = out.Dict.Get("count")
	require.True(t, ok)
	require.Equal(t, int64(-42), v.Int)

	v, ok = out.Dict.Get("big")
	require.True(t, ok)
	require.Equal(t, int64(1<<40), v.Int)

	v, ok = out.Dict.Get("ratio")
	require.True(t, ok)
	require.InDelta(t, 1.5, v.Real, 1e-9)

	v, ok = out.Dict.Get("name")
	require.True(t, ok)
	require.Equal(t, "volume", v.Str)

	v, ok = out.Dict.Get("blob")
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, v.Data)

	v, ok = out.Dict.Get("when")
	require.True(t, ok)
	require.WithinDuration(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), v.Date, time.Second)
}

func TestDictKeyOrderPreserved(t *testing.T) {
	d := NewDict()
	d.Set("z", Int(1))
	d.Set("a", Int(2))
	d.Set("m", Int(3))

	enc, err := Marshal(DictVal(d))
	require.NoError(t, err)
	out, err := Unmarshal(enc)
	require.NoError(t, err)

	require.Equal(t, []string{"z", "a", "m"}, out.Dict.Keys())
}

func TestNestedArrayOfDicts(t *testing.T) {
	inner1 := NewDict()
	inner1.Set("streamID", Int(1))
	inner2 := NewDict()
	inner2.Set("streamID", Int(2))

	root := NewDict()
	root.Set("streams", ArrayVal(DictVal(inner1), DictVal(inner2)))

	enc, err := Marshal(DictVal(root))
	require.NoError(t, err)
	out, err := Unmarshal(enc)
	require.NoError(t, err)

	streams, ok := out.Dict.Get("streams")
	require.True(t, ok)
	require.Equal(t, KindArray, streams.Kind)
	require.Len(t, streams.Array, 2)
	id, _ := streams.Array[1].Dict.Get("streamID")
	require.Equal(t, int64(2), id.Int)
}

func TestLongStringAndArrayUseFollowingLength(t *testing.T) {
	items := make([]*Value, 20)
	for i := range items {
		items[i] = Int(int64(i))
	}
	enc, err := Marshal(ArrayVal(items...))
	require.NoError(t, err)
	out, err := Unmarshal(enc)
	require.NoError(t, err)
	require.Len(t, out.Array, 20)
	require.Equal(t, int64(19), out.Array[19].Int)
}

func TestUnicodeStringRoundTrip(t *testing.T) {
	enc, err := Marshal(String("héllo wörld"))
	require.NoError(t, err)
	out, err := Unmarshal(enc)
	require.NoError(t, err)
	require.Equal(t, "héllo wörld", out.Str)
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	_, err := Unmarshal([]byte("not a plist at all, definitely not"))
	require.Error(t, err)
}
