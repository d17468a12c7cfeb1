package tlv8

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fields := Container{
		TypeState:     {1},
		TypeMethod:    {0},
		TypeSalt:      bytes.Repeat([]byte{0xab}, 16),
		TypePublicKey: bytes.Repeat([]byte{0x01}, 384),
	}
	order := []Type{TypeState, TypeMethod, TypeSalt, TypePublicKey}

	enc := Encode(order, fields)
	dec, err := Decode(enc)
	require.NoError(t, err)

	require.Equal(t, fields[TypeState], dec[TypeState])
	require.Equal(t, fields[TypeMethod], dec[TypeMethod])
	require.Equal(t, fields[TypeSalt], dec[TypeSalt])
	require.Equal(t, fields[TypePublicKey], dec[TypePublicKey])
}

func TestFragmentationLength(t *testing.T) {
	value := bytes.Repeat([]byte{0x42}, 512)
	enc := Encode([]Type{TypePublicKey}, Container{TypePublicKey: value})

	expectedFragments := (len(value) + 254) / 255
	expectedLen := expectedFragments*2 + len(value)
	require.Equal(t, expectedLen, len(enc))

	dec, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, value, dec[TypePublicKey])
}

func TestGetRequiredMissing(t *testing.T) {
	c := Container{}
	_, err := c.GetRequired(TypeState)
	require.Error(t, err)
}

func TestDeviceErrorSurfaces(t *testing.T) {
	c := Container{TypeState: {2}, TypeError: {2}}
	err := c.DeviceError()
	require.Error(t, err)
	require.Contains(t, err.Error(), "2")
}

func TestDeviceErrorZeroIsNil(t *testing.T) {
	c := Container{TypeError: {0}}
	require.NoError(t, c.DeviceError())
}

func TestDecodeTruncatedIsProtocolError(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x05, 0x00, 0x00})
	require.Error(t, err)
}
