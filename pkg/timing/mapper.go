package timing

import (
	"time"

	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
)

// DefaultTargetLatency is 2 seconds of samples on receive, per spec.md
// 4.I, configurable per session.
const DefaultTargetLatency = 2 * time.Second

// Mapper translates RTP sample timestamps into wall-clock playback
// instants, anchored to the reference pair from the last SYNC packet.
type Mapper struct {
	rtpRef        uint32
	wallRef       time.Time
	sampleRate    int
	targetLatency time.Duration
}

// NewMapper builds a Mapper from a reference (rtp, wall-clock) pair.
func NewMapper(rtpRef uint32, wallRef time.Time, sampleRate int, targetLatency time.Duration) *Mapper {
	return &Mapper{rtpRef: rtpRef, wallRef: wallRef, sampleRate: sampleRate, targetLatency: targetLatency}
}

// SetReference updates the reference pair, as done on each new SYNC.
func (m *Mapper) SetReference(rtpRef uint32, wallRef time.Time) {
	m.rtpRef = rtpRef
	m.wallRef = wallRef
}

// PlaybackInstant returns the wall-clock instant a given RTP timestamp
// should play at: now_reference + (t - rtp_ref)/sample_rate + target_latency,
// with the subtraction done signed-wrap-aware so past timestamps yield
// past instants, per spec.md 4.I.
func (m *Mapper) PlaybackInstant(t uint32) time.Time {
	delta := int64(airplayrtp.TimestampDistance(t, m.rtpRef))
	rate := int64(m.sampleRate)

	// split into whole-seconds and remainder-samples parts before
	// multiplying by time.Second, the way the teacher's rtptime.Decoder
	// avoids an int64 overflow while preserving resolution.
	secs := delta / rate
	rem := delta % rate
	offset := time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(rate)

	return m.wallRef.Add(offset).Add(m.targetLatency)
}
