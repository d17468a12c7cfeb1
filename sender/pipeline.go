package sender

import (
	"github.com/bluenviron/airplay2/internal/liberrors"
	"github.com/bluenviron/airplay2/pkg/codec"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/ring"
	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
)

// CipherMode selects which bulk cipher encrypts each packet's payload,
// per spec.md 4.J step 2.
type CipherMode int

// Modes named in spec.md 4.J.
const (
	CipherAESCTR CipherMode = iota
	CipherChaCha20
)

// Pipeline is the sender's per-session encode state: {ssrc, sequence,
// timestamp, cipher_state, ring_buffer}, per spec.md 4.J. Not safe for
// concurrent use; the encoder feeder task owns it exclusively.
type Pipeline struct {
	ssrc            uint32
	sequence        uint16
	timestamp       uint32
	packetIndex     uint64
	payloadType     uint8
	framesPerPacket uint32

	cipherMode CipherMode
	aesctr     *airplaycrypto.AESCTR
	chacha     *airplaycrypto.ChaCha20Poly1305
	frameBytes int

	encoder codec.Encoder
	ring    *ring.Ring
}

// PipelineConfig carries everything EncodeFrame needs: the session's
// SSRC and starting sequence/timestamp, which encoder and cipher to use,
// and the retransmission ring's capacity.
type PipelineConfig struct {
	SSRC            uint32
	StartSequence   uint16
	StartTimestamp  uint32
	PayloadType     uint8
	FramesPerPacket uint32
	Encoder         codec.Encoder
	RingSize        int
}

// NewAESCTRPipeline builds a Pipeline that encrypts with AES-128-CTR
// keyed by key/iv, the legacy RAOP cipher.
func NewAESCTRPipeline(cfg PipelineConfig, key, iv []byte, frameBytes int) (*Pipeline, error) {
	aesctr, err := airplaycrypto.NewAESCTR(key, iv)
	if err != nil {
		return nil, err
	}
	p := newPipeline(cfg)
	p.cipherMode = CipherAESCTR
	p.aesctr = aesctr
	p.frameBytes = frameBytes
	return p, nil
}

// NewChaCha20Pipeline builds a Pipeline that encrypts with
// ChaCha20-Poly1305 keyed by key, nonce derived per-packet from the RTP
// sequence number, the AirPlay-2 cipher.
func NewChaCha20Pipeline(cfg PipelineConfig, key []byte) (*Pipeline, error) {
	aead, err := airplaycrypto.NewChaCha20Poly1305(key)
	if err != nil {
		return nil, err
	}
	p := newPipeline(cfg)
	p.cipherMode = CipherChaCha20
	p.chacha = aead
	return p, nil
}

func newPipeline(cfg PipelineConfig) *Pipeline {
	ringSize := cfg.RingSize
	if ringSize <= 0 {
		ringSize = 128
	}
	return &Pipeline{
		ssrc:            cfg.SSRC,
		sequence:        cfg.StartSequence,
		timestamp:       cfg.StartTimestamp,
		payloadType:     cfg.PayloadType,
		framesPerPacket: cfg.FramesPerPacket,
		encoder:         cfg.Encoder,
		ring:            ring.New(ringSize),
	}
}

// EncodeFrame performs one full spec.md 4.J encode_frame step: packetize,
// encrypt the payload in place (the header is never encrypted), push the
// encoded packet into the retransmission ring, and advance
// sequence/timestamp (both wrapping).
func (p *Pipeline) EncodeFrame(pcm []int16) (*airplayrtp.Packet, error) {
	encoded, err := p.encoder.Encode(pcm)
	if err != nil {
		return nil, err
	}

	marker := p.packetIndex == 0
	seq := p.sequence
	ts := p.timestamp

	payload, err := p.encryptPayload(encoded, seq)
	if err != nil {
		return nil, err
	}

	pkt := airplayrtp.New(p.payloadType, marker, seq, ts, p.ssrc, payload)

	p.ring.Push(ring.Entry{
		Sequence:  seq,
		Timestamp: ts,
		Payload:   append([]byte(nil), payload...),
	})

	p.sequence++
	p.timestamp += p.framesPerPacket
	p.packetIndex++
	return pkt, nil
}

func (p *Pipeline) encryptPayload(plaintext []byte, sequence uint16) ([]byte, error) {
	switch p.cipherMode {
	case CipherAESCTR:
		buf := append([]byte(nil), plaintext...)
		offset := int64(p.packetIndex) * int64(p.frameBytes)
		p.aesctr.ProcessAt(offset, buf)
		return buf, nil
	case CipherChaCha20:
		nonce := airplaycrypto.SequenceNonce(sequence)
		return p.chacha.Seal(nonce[:], plaintext, nil)
	default:
		return nil, liberrors.ErrCrypto{Reason: "unknown cipher mode"}
	}
}

// HandleRetransmit returns every ring entry whose sequence lies in
// [firstSeq, firstSeq+count), in the order spec.md 4.J's ring keeps
// them. Missing entries (already evicted) are silently skipped.
func (p *Pipeline) HandleRetransmit(firstSeq uint16, count int) []ring.Entry {
	return p.ring.GetRange(firstSeq, count)
}

// Sequence and Timestamp report the next values EncodeFrame will use,
// for tests and for building RTP-Info headers on RECORD/FLUSH.
func (p *Pipeline) Sequence() uint16   { return p.sequence }
func (p *Pipeline) Timestamp() uint32  { return p.timestamp }
func (p *Pipeline) PacketIndex() uint64 { return p.packetIndex }
