package sender

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"sort"

	"github.com/bluenviron/airplay2/internal/liberrors"
	"github.com/bluenviron/airplay2/pkg/codec"
	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
	"github.com/bluenviron/airplay2/pkg/sdp"
	"github.com/bluenviron/airplay2/pkg/tlv8"
)

func cryptoRandRead(buf []byte) (int, error) { return rand.Read(buf) }

func base64Std(b []byte) string   { return base64.StdEncoding.EncodeToString(b) }
func base64NoPad(b []byte) string { return base64.RawStdEncoding.EncodeToString(b) }

// decodeLE16 decodes little-endian 16-bit PCM samples from raw into
// out, zero-filling anything raw doesn't cover.
func decodeLE16(raw []byte, out []int16) {
	n := len(raw) / 2
	for i := range out {
		if i < n {
			out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		} else {
			out[i] = 0
		}
	}
}

func randomSSRC() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func codecPayloadType(choice CodecChoice) uint8 {
	switch choice {
	case CodecAACLC, CodecAACELD:
		return airplayrtp.PayloadTypeAAC
	default:
		return airplayrtp.PayloadTypeAudio
	}
}

func codecSDPName(choice CodecChoice) sdp.Codec {
	switch choice {
	case CodecALAC:
		return sdp.CodecALAC
	case CodecAACLC, CodecAACELD:
		return sdp.CodecAAC
	default:
		return sdp.CodecPCM
	}
}

// buildEncoder returns the Encoder for choice and the nominal number of
// bytes one encoded frame's AES-CTR keystream region spans, used to seek
// the RAOP cipher to packetIndex*frameBytes.
func buildEncoder(choice CodecChoice, format codec.Format) (codec.Encoder, int, error) {
	bytesPerSample := format.BitDepth / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	frameBytes := codec.FrameSamples * format.Channels * bytesPerSample

	switch choice {
	case CodecPCM:
		return codec.PCMCodec{Format: format}, frameBytes, nil
	case CodecALAC:
		return codec.ALACCodec{Format: format}, frameBytes, nil
	case CodecAACLC:
		return codec.AACCodec{Format: format, Profile: codec.AACProfileLC}, frameBytes, nil
	case CodecAACELD:
		return codec.AACCodec{Format: format, Profile: codec.AACProfileELD}, frameBytes, nil
	default:
		return nil, 0, liberrors.ErrFormat{Reason: "unknown codec choice"}
	}
}

// tlv8Encode serializes a Container in ascending type order. Order among
// distinct top-level fields is not wire-significant here (each field
// type appears at most once per pairing message), so any deterministic
// order is safe.
func tlv8Encode(c tlv8.Container) []byte {
	order := make([]tlv8.Type, 0, len(c))
	for t := range c {
		order = append(order, t)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return tlv8.Encode(order, c)
}

func tlv8Decode(data []byte) (tlv8.Container, error) {
	return tlv8.Decode(data)
}
