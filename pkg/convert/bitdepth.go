package convert

import "math/rand"

// ConvertBitDepth converts samples (each holding a signed value at
// fromBits) to toBits, per spec.md 4.L: widening sign-extends (here,
// left-shifts the already-sign-extended int32 value — equivalent for a
// two's-complement PCM ladder), narrowing dithers with triangular-PDF
// noise before truncating to avoid quantization-distortion artifacts.
func ConvertBitDepth(samples []int32, fromBits, toBits int) []int32 {
	if fromBits == toBits {
		out := make([]int32, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]int32, len(samples))
	if toBits > fromBits {
		shift := uint(toBits - fromBits)
		for i, s := range samples {
			out[i] = s << shift
		}
		return out
	}

	shift := uint(fromBits - toBits)
	for i, s := range samples {
		v := s + tpdfDither(shift)
		out[i] = v >> shift
	}
	return out
}

// tpdfDither returns triangular-probability-density noise scaled to the
// bits being discarded: half the sum of two independent uniform variables
// on [-2^(shift-1), 2^(shift-1)), which has a triangular distribution and
// decorrelates quantization error from the signal, per spec.md 4.L.
func tpdfDither(shift uint) int32 {
	if shift == 0 {
		return 0
	}
	span := int32(1) << shift
	a := rand.Int31n(span) - span/2
	b := rand.Int31n(span) - span/2
	return (a + b) / 2
}
