package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3, -0.4}
	out := Resample(in, 44100, 44100)
	require.Equal(t, in, out)
}

func TestResampleOutputFrameCountWithinOne(t *testing.T) {
	cases := []struct{ in, out int }{
		{44100, 48000}, {48000, 44100}, {44100, 88200}, {96000, 44100}, {22050, 44100},
	}
	for _, c := range cases {
		in := make([]float64, 1000)
		for i := range in {
			in[i] = math.Sin(float64(i) * 0.05)
		}
		out := Resample(in, c.in, c.out)
		expected := float64(len(in)) * float64(c.out) / float64(c.in)
		require.InDelta(t, expected, float64(len(out)), 1.0001)
	}
}

func TestResamplePreservesDCLevel(t *testing.T) {
	in := make([]float64, 500)
	for i := range in {
		in[i] = 0.5
	}
	out := Resample(in, 44100, 48000)
	for _, v := range out {
		require.InDelta(t, 0.5, v, 1e-9)
	}
}

func TestMonoToStereoAndBack(t *testing.T) {
	mono := []float64{0.1, 0.2, 0.3}
	stereo := MonoToStereo(mono)
	require.Equal(t, []float64{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}, stereo)
	back := StereoToMono(stereo)
	require.InDeltaSlice(t, mono, back, 1e-9)
}

func TestDownmix51ToStereo(t *testing.T) {
	// L R C LFE Ls Rs, one frame, all channels at 1.0.
	in := []float64{1, 1, 1, 1, 1, 1}
	out, err := DownmixToStereo(in, 6)
	require.NoError(t, err)
	require.Len(t, out, 2)
	expected := 1 + downmixCoeff + downmixCoeff
	require.InDelta(t, expected, out[0], 1e-9)
	require.InDelta(t, expected, out[1], 1e-9)
}

func TestDownmixRejectsUnsupportedChannelCount(t *testing.T) {
	_, err := DownmixToStereo([]float64{1, 2}, 2)
	require.Error(t, err)
}

func TestConvertBitDepthWidenThenNarrowRecoversApproximateValue(t *testing.T) {
	samples := []int32{100, -200, 32000, -32768}
	widened := ConvertBitDepth(samples, 16, 24)
	for i, s := range samples {
		require.Equal(t, s<<8, widened[i])
	}
	narrowed := ConvertBitDepth(widened, 24, 16)
	for i, s := range samples {
		require.InDelta(t, s, narrowed[i], 1)
	}
}

func TestConvertBitDepthSameWidthIsIdentity(t *testing.T) {
	samples := []int32{1, 2, 3}
	out := ConvertBitDepth(samples, 16, 16)
	require.Equal(t, samples, out)
}
