package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequenceDistanceWrap(t *testing.T) {
	require.True(t, SequenceAhead(0, 65535))
	require.True(t, SequenceAhead(10, 5))
	require.False(t, SequenceAhead(5, 10))
	require.Equal(t, int32(1), SequenceDistance(0, 65535))
}

func TestSequenceDistanceFarBehindIsNegative(t *testing.T) {
	d := SequenceDistance(10000, 40000)
	require.Less(t, d, int32(0))
}

func TestNewPacketMarkerOnlyOnFirst(t *testing.T) {
	p0 := New(PayloadTypeAudio, true, 0, 0, 1234, make([]byte, 1408))
	p1 := New(PayloadTypeAudio, false, 1, FramesPerPacket, 1234, make([]byte, 1408))

	require.True(t, p0.Marker)
	require.False(t, p1.Marker)
	require.Equal(t, uint32(FramesPerPacket), p1.Timestamp)
	require.Equal(t, uint8(2), p0.Version)
}
