package convert

import "github.com/bluenviron/airplay2/internal/liberrors"

// MonoToStereo duplicates each mono sample across both stereo channels.
func MonoToStereo(in []float64) []float64 {
	out := make([]float64, len(in)*2)
	for i, s := range in {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages the two channels.
func StereoToMono(in []float64) []float64 {
	frames := len(in) / 2
	out := make([]float64, frames)
	for n := 0; n < frames; n++ {
		out[n] = (in[n*2] + in[n*2+1]) / 2
	}
	return out
}

// downmixCoeff is the ITU-R BS.775 center/surround attenuation, -3dB.
const downmixCoeff = 0.7071067811865476

// DownmixToStereo folds 5.1 (L,R,C,LFE,Ls,Rs) or 7.1 (L,R,C,LFE,Ls,Rs,Lrs,Rrs)
// interleaved input down to stereo using ITU-R BS.775 coefficients:
// Lo = L + 0.707*C + 0.707*Ls(+Lrs), Ro = R + 0.707*C + 0.707*Rs(+Rrs).
// The LFE channel is dropped, matching the standard's bass-management
// convention of routing LFE through a subwoofer, not the main stereo mix.
func DownmixToStereo(in []float64, channels int) ([]float64, error) {
	if channels != 6 && channels != 8 {
		return nil, liberrors.ErrFormat{Reason: "downmix only supports 5.1 or 7.1 input"}
	}
	frames := len(in) / channels
	out := make([]float64, frames*2)
	for n := 0; n < frames; n++ {
		base := n * channels
		l := in[base+0]
		r := in[base+1]
		c := in[base+2]
		ls := in[base+4]
		rs := in[base+5]
		lo := l + downmixCoeff*c + downmixCoeff*ls
		ro := r + downmixCoeff*c + downmixCoeff*rs
		if channels == 8 {
			lo += downmixCoeff * in[base+6]
			ro += downmixCoeff * in[base+7]
		}
		out[n*2] = lo
		out[n*2+1] = ro
	}
	return out, nil
}
