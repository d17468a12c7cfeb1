package sdp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTripALAC(t *testing.T) {
	desc := Description{
		PayloadType:       96,
		Codec:             CodecALAC,
		SampleRate:        44100,
		Channels:          2,
		BitDepth:          16,
		FramesPerPacket:   352,
		RSAAESKeyBase64:   "QUJD",
		AESIVBase64:       "WFla",
		MinLatencySamples: 11025,
	}
	body, err := Build(desc, 1, "192.168.1.10")
	require.NoError(t, err)

	parsed, err := Parse(body)
	require.NoError(t, err)
	require.Equal(t, desc.PayloadType, parsed.PayloadType)
	require.Equal(t, desc.Codec, parsed.Codec)
	require.Equal(t, desc.SampleRate, parsed.SampleRate)
	require.Equal(t, desc.Channels, parsed.Channels)
	require.Equal(t, desc.BitDepth, parsed.BitDepth)
	require.Equal(t, desc.FramesPerPacket, parsed.FramesPerPacket)
	require.Equal(t, desc.RSAAESKeyBase64, parsed.RSAAESKeyBase64)
	require.Equal(t, desc.AESIVBase64, parsed.AESIVBase64)
	require.Equal(t, desc.MinLatencySamples, parsed.MinLatencySamples)
}

func TestBuildParseRoundTripPCM(t *testing.T) {
	desc := Description{
		PayloadType:     96,
		Codec:           CodecPCM,
		SampleRate:      44100,
		Channels:        2,
		BitDepth:        16,
		FramesPerPacket: 352,
	}
	body, err := Build(desc, 2, "10.0.0.5")
	require.NoError(t, err)

	parsed, err := Parse(body)
	require.NoError(t, err)
	require.Equal(t, CodecPCM, parsed.Codec)
	require.Equal(t, 44100, parsed.SampleRate)
	require.Equal(t, 2, parsed.Channels)
}

func TestParseRejectsMissingAudioSection(t *testing.T) {
	_, err := Parse([]byte("v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=x\r\nt=0 0\r\n"))
	require.Error(t, err)
}
