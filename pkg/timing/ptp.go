package timing

import "encoding/binary"

// PTPMessageType enumerates the IEEE-1588 message kinds this module
// exchanges, plus AirPlay-2's compact variant.
type PTPMessageType uint8

// Message types, matching IEEE-1588's low nibble values.
const (
	PTPSync       PTPMessageType = 0x0
	PTPDelayReq   PTPMessageType = 0x1
	PTPFollowUp   PTPMessageType = 0x8
	PTPDelayResp  PTPMessageType = 0x9
)

// EventPort and GeneralPort are the standard IEEE-1588 UDP ports; when
// AirPlay 2 negotiates a single timing_port in SETUP both message
// classes travel on it instead.
const (
	EventPort   = 319
	GeneralPort = 320
)

// ClockIdentity is the 8-byte EUI-64-style identifier the master
// publishes in PTP Announce/Sync messages.
type ClockIdentity [8]byte

// CompactMessage is AirPlay-2's 24-byte compact PTP variant, used on the
// single negotiated timing_port instead of full IEEE-1588 framing.
type CompactMessage struct {
	Type          PTPMessageType
	ClockID       ClockIdentity
	SequenceID    uint16
	Timestamp     NTPTimestamp
}

// Marshal encodes a CompactMessage into its 24-byte wire form:
// 1 byte type, 1 byte reserved, 8 bytes clock identity, 2 bytes sequence
// id, 4 bytes reserved, 8 bytes NTP-style timestamp.
func (m *CompactMessage) Marshal() []byte {
	buf := make([]byte, 24)
	buf[0] = byte(m.Type)
	copy(buf[2:10], m.ClockID[:])
	binary.BigEndian.PutUint16(buf[10:12], m.SequenceID)
	binary.BigEndian.PutUint64(buf[16:24], uint64(m.Timestamp))
	return buf
}

// UnmarshalCompactMessage decodes a 24-byte AirPlay-2 compact PTP
// datagram.
func UnmarshalCompactMessage(buf []byte) (*CompactMessage, bool) {
	if len(buf) < 24 {
		return nil, false
	}
	m := &CompactMessage{
		Type:       PTPMessageType(buf[0]),
		SequenceID: binary.BigEndian.Uint16(buf[10:12]),
		Timestamp:  NTPTimestamp(binary.BigEndian.Uint64(buf[16:24])),
	}
	copy(m.ClockID[:], buf[2:10])
	return m, true
}

// Role is the PTP role a peer plays in a session: the sender is always
// master, the receiver always slave, per spec.md 4.I.
type Role int

// Roles.
const (
	RoleMaster Role = iota
	RoleSlave
)
