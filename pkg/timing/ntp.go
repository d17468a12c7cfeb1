// Package timing implements spec.md 4.I: NTP-style clock sync for
// legacy RAOP, IEEE-1588 PTP offset/delay measurement for AirPlay 2, and
// the RTP-timestamp-to-wall-clock mapping both flavors feed into.
//
// The NTP wire packet layout follows the teacher pack's NTPv4 reference
// (facebook/time's protocol.Packet), trimmed to the four-timestamp
// exchange RAOP actually performs.
package timing

import (
	"encoding/binary"
	"time"
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// NTPTimestamp is a 64-bit NTP timestamp: seconds since 1900-01-01 UTC
// in the upper 32 bits, fractional seconds in the lower 32 bits.
type NTPTimestamp uint64

// ToNTPTimestamp converts a wall-clock time to its NTP representation.
func ToNTPTimestamp(t time.Time) NTPTimestamp {
	secs := t.Unix() + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	return NTPTimestamp(uint64(secs)<<32 | frac)
}

// Time converts an NTP timestamp back to a wall-clock time.
func (n NTPTimestamp) Time() time.Time {
	secs := int64(n>>32) - ntpEpochOffset
	frac := uint64(n & 0xffffffff)
	nanos := frac * 1e9 >> 32
	return time.Unix(secs, int64(nanos)).UTC()
}

// TimingPacket is the 4-timestamp RAOP timing exchange: the client
// sends T1/(reserved), the server fills T2/T3, the client records T4 on
// receipt.
type TimingPacket struct {
	ReferenceTime NTPTimestamp
	OriginTime    NTPTimestamp // T1
	ReceiveTime   NTPTimestamp // T2
	TransmitTime  NTPTimestamp // T3
}

// Marshal encodes ReferenceTime, OriginTime and ReceiveTime as 24 bytes
// of big-endian NTP timestamps. TransmitTime is not encoded, and
// UnmarshalTimingPacket leaves it zero.
func (p *TimingPacket) Marshal() []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.ReferenceTime))
	binary.BigEndian.PutUint64(buf[8:16], uint64(p.OriginTime))
	binary.BigEndian.PutUint64(buf[16:24], uint64(p.ReceiveTime))
	return buf
}

// UnmarshalTimingPacket decodes a 24-byte RAOP timing datagram.
func UnmarshalTimingPacket(buf []byte) (*TimingPacket, bool) {
	if len(buf) < 24 {
		return nil, false
	}
	return &TimingPacket{
		ReferenceTime: NTPTimestamp(binary.BigEndian.Uint64(buf[0:8])),
		OriginTime:    NTPTimestamp(binary.BigEndian.Uint64(buf[8:16])),
		ReceiveTime:   NTPTimestamp(binary.BigEndian.Uint64(buf[16:24])),
	}, true
}

// Exchange is one complete T1-T4 timing round trip.
type Exchange struct {
	T1, T2, T3, T4 time.Time
}

// Offset computes the clock offset per spec.md 3:
// offset = ((T2-T1)+(T3-T4))/2.
func (e Exchange) Offset() time.Duration {
	return ((e.T2.Sub(e.T1)) + (e.T3.Sub(e.T4))) / 2
}

// RoundTrip computes the round-trip delay: (T4-T1)-(T3-T2).
func (e Exchange) RoundTrip() time.Duration {
	return e.T4.Sub(e.T1) - e.T3.Sub(e.T2)
}
