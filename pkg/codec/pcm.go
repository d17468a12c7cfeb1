package codec

import "encoding/binary"

// PCMCodec is the pass-through codec: the negotiated sample format must
// already match the wire format, per spec.md 4.J. It only converts
// between []int16 and big-endian bytes, matching RAOP's L16 wire format.
type PCMCodec struct {
	Format Format
}

// Encode packs samples as big-endian 16-bit PCM.
func (c PCMCodec) Encode(pcm []int16) ([]byte, error) {
	if c.Format.BitDepth != 16 {
		return nil, errFormat("PCM pass-through requires 16-bit depth")
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.BigEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

// Decode unpacks big-endian 16-bit PCM.
func (c PCMCodec) Decode(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, errFormat("PCM payload length not a multiple of 2")
	}
	out := make([]int16, len(payload)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(payload[i*2:]))
	}
	return out, nil
}
