package receiver

import (
	"time"

	"github.com/bluenviron/airplay2/internal/liberrors"
	"github.com/bluenviron/airplay2/pkg/codec"
	"github.com/bluenviron/airplay2/pkg/convert"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/jitter"
	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
	"github.com/bluenviron/airplay2/pkg/timing"
)

// AudioSink is the external playback-sink contract from spec.md 6: a
// capability set accepted by static duck-typing rather than a class
// hierarchy, per spec.md 9.
type AudioSink interface {
	Write(pcm []int16) error
}

// Pipeline is the receiver's per-session decode state: sequence tracker,
// jitter buffer, concealer, decryption and decoding, per spec.md 4.K. Not
// safe for concurrent use; one UDP reader feeds it and one playback task
// drains it.
type Pipeline struct {
	cipherMode CipherMode
	aesctr     *airplaycrypto.AESCTR
	chacha     *airplaycrypto.ChaCha20Poly1305
	frameBytes int

	decoder codec.Decoder

	tracker   *jitter.SequenceTracker
	buf       *jitter.Buffer
	concealer *jitter.Concealer

	payloadSize int

	// inputFormat/outputFormat drive an optional post-decode conversion
	// stage (pkg/convert): nil outputFormat means deliver the negotiated
	// format untouched.
	inputFormat  codec.Format
	outputFormat *codec.Format
}

// CipherMode selects which bulk cipher decrypts each packet's payload,
// mirroring sender.CipherMode.
type CipherMode int

// Modes named in spec.md 4.K.
const (
	CipherAESCTR CipherMode = iota
	CipherChaCha20
)

// PipelineConfig carries everything a Pipeline needs to decrypt and
// schedule incoming packets.
type PipelineConfig struct {
	Decoder         codec.Decoder
	Mapper          *timing.Mapper
	MinDepth        int
	MaxDepth        int
	ConcealStrategy jitter.ConcealStrategy
	ConcealFadeStep int
	PayloadSamples  int // decoded payload length in bytes per packet, for concealment sizing

	// InputFormat is the negotiated wire format. OutputFormat, if
	// non-nil and different, requests a post-decode sample-rate/channel
	// conversion before delivery to the sink (spec.md 4.L).
	InputFormat  codec.Format
	OutputFormat *codec.Format
}

// NewAESCTRPipeline builds a Pipeline that decrypts with AES-128-CTR,
// the legacy RAOP cipher.
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

// NewChaCha20Pipeline builds a Pipeline that decrypts with
// ChaCha20-Poly1305, the AirPlay-2 cipher.
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
	return &Pipeline{
		decoder:      cfg.Decoder,
		tracker:      jitter.NewSequenceTracker(),
		buf:          jitter.NewBuffer(cfg.Mapper, cfg.MinDepth, cfg.MaxDepth),
		concealer:    jitter.NewConcealer(cfg.ConcealStrategy, cfg.ConcealFadeStep),
		payloadSize:  cfg.PayloadSamples,
		inputFormat:  cfg.InputFormat,
		outputFormat: cfg.OutputFormat,
	}
}

// HandlePacket decrypts one arriving RTP packet's payload and inserts it
// into the jitter buffer, classifying it against the sequence tracker
// first. Late-or-duplicate arrivals are dropped (spec.md 4.K); missing
// ranges are reported back to the caller so it can issue a retransmit
// request, but never treated as an error.
func (p *Pipeline) HandlePacket(pkt *airplayrtp.Packet) (jitter.Result, error) {
	result := p.tracker.Observe(pkt.SequenceNumber)
	if result.Outcome == jitter.OutcomeLateOrDuplicate {
		return result, nil
	}

	plain, err := p.decryptPayload(pkt.Payload, pkt.SequenceNumber)
	if err != nil {
		return result, err
	}
	p.buf.Insert(jitter.Packet{Sequence: pkt.SequenceNumber, Timestamp: pkt.Timestamp, Payload: plain})
	return result, nil
}

func (p *Pipeline) decryptPayload(ciphertext []byte, sequence uint16) ([]byte, error) {
	switch p.cipherMode {
	case CipherAESCTR:
		buf := append([]byte(nil), ciphertext...)
		offset := int64(sequence) * int64(p.frameBytes)
		p.aesctr.ProcessAt(offset, buf)
		return buf, nil
	case CipherChaCha20:
		nonce := airplaycrypto.SequenceNonce(sequence)
		return p.chacha.Open(nonce[:], ciphertext, nil)
	default:
		return nil, liberrors.ErrCrypto{Reason: "unknown cipher mode"}
	}
}

// Pop drains the jitter buffer once, decoding the earliest-ready packet
// to PCM. Returns (nil, false) when nothing is ready yet or the payload
// fails to decode. Gaps are not filled here; ConcealGap does that.
func (p *Pipeline) Pop(now time.Time) ([]int16, bool) {
	pkt, ok := p.buf.Pop(now)
	if !ok {
		return nil, false
	}
	pcm, err := p.decoder.Decode(pkt.Payload)
	if err != nil {
		return nil, false
	}
	p.concealer.Observe(pkt.Payload)
	return p.convertOutput(pcm), true
}

// convertOutput applies the optional sample-rate/channel conversion
// named by outputFormat, round-tripping through float64 since
// pkg/convert operates on normalized samples. A no-op when outputFormat
// is nil or already matches the negotiated format.
func (p *Pipeline) convertOutput(pcm []int16) []int16 {
	if p.outputFormat == nil {
		return pcm
	}
	out := *p.outputFormat
	if out.Channels == p.inputFormat.Channels && out.SampleRate == p.inputFormat.SampleRate {
		return pcm
	}

	samples := make([]float64, len(pcm))
	for i, s := range pcm {
		samples[i] = float64(s) / 32768
	}

	if out.Channels != p.inputFormat.Channels {
		switch {
		case p.inputFormat.Channels == 1 && out.Channels == 2:
			samples = convert.MonoToStereo(samples)
		case p.inputFormat.Channels == 2 && out.Channels == 1:
			samples = convert.StereoToMono(samples)
		case out.Channels == 2 && (p.inputFormat.Channels == 6 || p.inputFormat.Channels == 8):
			if mixed, err := convert.DownmixToStereo(samples, p.inputFormat.Channels); err == nil {
				samples = mixed
			}
		}
	}

	if out.SampleRate != p.inputFormat.SampleRate {
		samples = convert.ResampleInterleaved(samples, out.Channels, p.inputFormat.SampleRate, out.SampleRate)
	}

	converted := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		converted[i] = int16(v)
	}
	return converted
}

// ConcealGap decodes a synthetic payload standing in for a lost packet
// the retransmit deadline passed on. payloadLen <= 0 falls back to the
// session's nominal per-packet payload size.
func (p *Pipeline) ConcealGap(payloadLen int) ([]int16, error) {
	if payloadLen <= 0 {
		payloadLen = p.payloadSize
	}
	synthetic := p.concealer.Conceal(payloadLen)
	pcm, err := p.decoder.Decode(synthetic)
	if err != nil {
		return nil, err
	}
	return p.convertOutput(pcm), nil
}

// Len reports the current jitter-buffer depth.
func (p *Pipeline) Len() int { return p.buf.Len() }

// Reset discards all buffered packets and sequence-tracker state, for
// FLUSH. Packets that arrive after the reset are not checked against
// the flush point.
func (p *Pipeline) Reset(mapper *timing.Mapper, minDepth, maxDepth int) {
	p.tracker = jitter.NewSequenceTracker()
	p.buf = jitter.NewBuffer(mapper, minDepth, maxDepth)
}
