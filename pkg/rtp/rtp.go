// Package rtp layers AirPlay's payload-type constants and wrap-aware
// sequence/timestamp arithmetic on top of github.com/pion/rtp, the RTP
// packet library the teacher (bluenviron/gortsplib) already depends on.
package rtp

import (
	"github.com/pion/rtp"
)

// Packet is an AirPlay RTP packet: a pion/rtp header plus payload, the
// same embedding style gortsplib's own rtpcodecs layer uses.
type Packet struct {
	rtp.Packet
}

// Payload types used across RAOP and AirPlay 2, per spec.md 3.
const (
	PayloadTypeAudio      uint8 = 96
	PayloadTypeTimingLeg1 uint8 = 84
	PayloadTypeTimingLeg2 uint8 = 86
	PayloadTypeSyncRetx   uint8 = 85
	PayloadTypeAAC        uint8 = 97
	PayloadTypeControl    uint8 = 103
	PayloadTypeEvent      uint8 = 130
	PayloadTypePTP        uint8 = 150
)

// FramesPerPacket is the number of audio frames packed into one RTP
// packet at the reference 44.1kHz rate (~8ms), per spec.md 4.H.
const FramesPerPacket = 352

// New builds a packet with the given payload type, sequence, timestamp,
// SSRC and payload. Marker is set by the caller for the first packet of
// a RECORD.
func New(payloadType uint8, marker bool, sequence uint16, timestamp, ssrc uint32, payload []byte) *Packet {
	return &Packet{
		Packet: rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         marker,
				PayloadType:    payloadType,
				SequenceNumber: sequence,
				Timestamp:      timestamp,
				SSRC:           ssrc,
			},
			Payload: payload,
		},
	}
}

// SequenceDistance returns (a - b) mod 2^16 as defined in spec.md 4.H:
// a signed-wrap distance where values < 2^15 mean a is at-or-ahead of b.
func SequenceDistance(a, b uint16) int32 {
	return int32(int16(a - b))
}

// SequenceAhead reports whether a is at or ahead of b under wrap-aware
// comparison.
func SequenceAhead(a, b uint16) bool {
	return SequenceDistance(a, b) >= 0
}

// TimestampDistance returns (a - b) mod 2^32 interpreted as a signed
// int32, used to turn RTP timestamp deltas into signed sample offsets
// (spec.md 4.I).
func TimestampDistance(a, b uint32) int32 {
	return int32(a - b)
}
