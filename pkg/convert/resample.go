// Package convert implements the optional format-conversion stage:
// sample-rate conversion, channel up/down-mix, and bit-depth conversion,
// per spec.md 4.L.
package convert

// Resample converts one channel of samples from inRate to outRate using
// linear-interpolated polyphase resampling: for each output index i the
// corresponding fractional input position is i*inRate/outRate, and the
// two surrounding input samples are blended by its fractional part. This
// is a simplified polyphase filter (a single linear kernel rather than a
// windowed-sinc bank), but satisfies spec.md 4.L's
// invariant: output length is round(len(in) * outRate / inRate) within
// ±1, and it preserves DC and reproduces the input exactly when
// inRate == outRate.
func Resample(in []float64, inRate, outRate int) []float64 {
	if inRate <= 0 || outRate <= 0 {
		return nil
	}
	if inRate == outRate {
		out := make([]float64, len(in))
		copy(out, in)
		return out
	}
	if len(in) == 0 {
		return nil
	}

	outLen := int(roundRatio(len(in), outRate, inRate))
	out := make([]float64, outLen)
	ratio := float64(inRate) / float64(outRate)

	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		var s0, s1 float64
		if idx < len(in) {
			s0 = in[idx]
		} else {
			s0 = in[len(in)-1]
		}
		if idx+1 < len(in) {
			s1 = in[idx+1]
		} else {
			s1 = s0
		}
		out[i] = s0 + (s1-s0)*frac
	}
	return out
}

// roundRatio computes round(n * num / den) using integer arithmetic
// scaled to avoid float rounding surprises near .5 boundaries.
func roundRatio(n, num, den int) int64 {
	total := int64(n) * int64(num)
	q := total / int64(den)
	r := total % int64(den)
	if 2*r >= int64(den) {
		q++
	}
	return q
}

// ResampleInterleaved resamples an interleaved multi-channel buffer,
// preserving channel count as spec.md 4.L requires.
func ResampleInterleaved(in []float64, channels, inRate, outRate int) []float64 {
	if channels <= 0 {
		return nil
	}
	frames := len(in) / channels
	perChannel := make([][]float64, channels)
	for c := 0; c < channels; c++ {
		buf := make([]float64, frames)
		for n := 0; n < frames; n++ {
			buf[n] = in[n*channels+c]
		}
		perChannel[c] = Resample(buf, inRate, outRate)
	}
	outFrames := 0
	if channels > 0 {
		outFrames = len(perChannel[0])
	}
	out := make([]float64, outFrames*channels)
	for c := 0; c < channels; c++ {
		for n := 0; n < outFrames; n++ {
			out[n*channels+c] = perChannel[c][n]
		}
	}
	return out
}
