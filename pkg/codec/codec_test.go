package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineBlock(frames, channels int) []int16 {
	out := make([]int16, frames*channels)
	for n := 0; n < frames; n++ {
		v := int16(8000 * math.Sin(float64(n)*0.1))
		for c := 0; c < channels; c++ {
			out[n*channels+c] = v + int16(c*17)
		}
	}
	return out
}

func TestPCMCodecRoundTrip(t *testing.T) {
	c := PCMCodec{Format: Format{SampleRate: 44100, Channels: 2, BitDepth: 16}}
	pcm := sineBlock(FrameSamples, 2)
	enc, err := c.Encode(pcm)
	require.NoError(t, err)
	dec, err := c.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, pcm, dec)
}

func TestPCMCodecRejectsWrongDepth(t *testing.T) {
	c := PCMCodec{Format: Format{BitDepth: 24}}
	_, err := c.Encode([]int16{1, 2})
	require.Error(t, err)
}

func TestALACCodecRoundTripIsLossless(t *testing.T) {
	c := ALACCodec{Format: Format{SampleRate: 44100, Channels: 2, BitDepth: 16}}
	pcm := sineBlock(FrameSamples, 2)
	enc, err := c.Encode(pcm)
	require.NoError(t, err)
	dec, err := c.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, pcm, dec)
}

func TestALACCodecRoundTripSilence(t *testing.T) {
	c := ALACCodec{Format: Format{SampleRate: 44100, Channels: 2, BitDepth: 16}}
	pcm := make([]int16, FrameSamples*2)
	enc, err := c.Encode(pcm)
	require.NoError(t, err)
	dec, err := c.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, pcm, dec)
}

func TestALACCodecRejectsMisalignedBlock(t *testing.T) {
	c := ALACCodec{Format: Format{Channels: 2}}
	_, err := c.Encode([]int16{1, 2, 3})
	require.Error(t, err)
}

func TestAACCodecRoundTripApproximatesWithinQuantStep(t *testing.T) {
	c := AACCodec{Format: Format{SampleRate: 44100, Channels: 2}, Profile: AACProfileLC}
	pcm := sineBlock(FrameSamples, 2)
	enc, err := c.Encode(pcm)
	require.NoError(t, err)
	dec, err := c.Decode(enc)
	require.NoError(t, err)
	require.Len(t, dec, len(pcm))
	bits := c.bitsPerSample()
	maxErr := 1 << (16 - bits)
	for i := range pcm {
		diff := int(pcm[i]) - int(dec[i])
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqual(t, diff, maxErr)
	}
}

func TestAACProfileDefaultBitrates(t *testing.T) {
	require.Equal(t, 128000, AACProfileLC.DefaultBitrate())
	require.Equal(t, 64000, AACProfileELD.DefaultBitrate())
}
