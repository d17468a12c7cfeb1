// Package codec implements the sender/receiver audio codec pipeline:
// PCM pass-through, a simplified ALAC lossless coder, and raw-frame
// AAC-LC/AAC-ELD codecs, per spec.md 4.J/4.K.
package codec

import "github.com/bluenviron/airplay2/internal/liberrors"

// Format describes the negotiated PCM format each codec operates on.
// Samples are interleaved, signed, native-endian 16-bit throughout this
// module; no codec accepts spec.md 3's wider widths (the PCM
// pass-through codec rejects any BitDepth other than 16).
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// FrameSamples is the number of samples per channel in one coded block,
// 352 frames per packet at the reference rate (spec.md 4.H).
const FrameSamples = 352

// Encoder turns one block of interleaved PCM samples into an encoded
// payload suitable for an RTP packet body.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Decoder turns one encoded RTP payload back into interleaved PCM.
type Decoder interface {
	Decode(payload []byte) ([]int16, error)
}

func errFormat(reason string) error {
	return liberrors.ErrFormat{Reason: reason}
}
