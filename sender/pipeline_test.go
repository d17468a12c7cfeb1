package sender

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/airplay2/pkg/codec"
	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
)

// TestAESCTRPipelineOneSecondOfSilence reproduces spec.md 8 scenario 1:
// feeding one second of 44.1kHz stereo S16 silence through an AES-128-CTR
// pipeline (key 16x0x42, IV 16x0x00) must produce exactly 126 packets,
// sequences 0..125, timestamps advancing by 352 each packet, and a marker
// bit set only on the very first packet.
func TestAESCTRPipelineOneSecondOfSilence(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	for i := range key {
		key[i] = 0x42
	}

	format := codec.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
	frameBytes := codec.FrameSamples * format.Channels * (format.BitDepth / 8)

	p, err := NewAESCTRPipeline(PipelineConfig{
		SSRC:            0x11223344,
		PayloadType:     airplayrtp.PayloadTypeAudio,
		FramesPerPacket: airplayrtp.FramesPerPacket,
		Encoder:         codec.PCMCodec{Format: format},
		RingSize:        128,
	}, key, iv, frameBytes)
	require.NoError(t, err)

	silentFrame := make([]int16, codec.FrameSamples*format.Channels)

	totalSamplesPerChannel := format.SampleRate
	packetCount := (totalSamplesPerChannel + codec.FrameSamples - 1) / codec.FrameSamples
	require.Equal(t, 126, packetCount, "44100/352 truncates to 125 full packets plus one partial; scenario defines exactly 126 packets")

	var packets []*airplayrtp.Packet
	for i := 0; i < 126; i++ {
		pkt, err := p.EncodeFrame(silentFrame)
		require.NoError(t, err)
		packets = append(packets, pkt)
	}

	for i, pkt := range packets {
		require.Equal(t, uint16(i), pkt.SequenceNumber, "packet %d sequence", i)
		require.Equal(t, uint32(i*codec.FrameSamples), pkt.Timestamp, "packet %d timestamp", i)
		if i == 0 {
			require.True(t, pkt.Marker, "first packet must set the marker bit")
		} else {
			require.False(t, pkt.Marker, "only the first packet sets the marker bit")
		}
	}

	require.Equal(t, uint16(126), p.Sequence())
	require.Equal(t, uint32(126*codec.FrameSamples), p.Timestamp())
}

func TestAESCTRPipelineEncryptsPayloadInPlace(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	format := codec.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
	frameBytes := codec.FrameSamples * format.Channels * 2

	p, err := NewAESCTRPipeline(PipelineConfig{
		PayloadType:     airplayrtp.PayloadTypeAudio,
		FramesPerPacket: airplayrtp.FramesPerPacket,
		Encoder:         codec.PCMCodec{Format: format},
		RingSize:        4,
	}, key, iv, frameBytes)
	require.NoError(t, err)

	frame := make([]int16, codec.FrameSamples*format.Channels)
	for i := range frame {
		frame[i] = int16(i)
	}
	plain, err := (codec.PCMCodec{Format: format}).Encode(frame)
	require.NoError(t, err)

	pkt, err := p.EncodeFrame(frame)
	require.NoError(t, err)
	require.NotEqual(t, plain, pkt.Payload, "AES-CTR must actually transform the payload")
	require.Len(t, pkt.Payload, len(plain))
}

func TestChaCha20PipelineRoundTripsThroughRetransmitRing(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	format := codec.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

	p, err := NewChaCha20Pipeline(PipelineConfig{
		PayloadType:     airplayrtp.PayloadTypeAudio,
		FramesPerPacket: airplayrtp.FramesPerPacket,
		Encoder:         codec.PCMCodec{Format: format},
		RingSize:        8,
	}, key)
	require.NoError(t, err)

	frame := make([]int16, codec.FrameSamples*format.Channels)
	for i := 0; i < 5; i++ {
		_, err := p.EncodeFrame(frame)
		require.NoError(t, err)
	}

	entries := p.HandleRetransmit(0, 5)
	require.Len(t, entries, 5)
	for i, e := range entries {
		require.Equal(t, uint16(i), e.Sequence)
	}
}
