package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/airplay2/pkg/timing"
)

func TestSequenceTrackerInOrder(t *testing.T) {
	tr := NewSequenceTracker()
	for seq := uint16(0); seq < 10; seq++ {
		res := tr.Observe(seq)
		require.Equal(t, OutcomeInOrder, res.Outcome)
	}
}

func TestSequenceTrackerReportsMissingRange(t *testing.T) {
	tr := NewSequenceTracker()
	for seq := uint16(0); seq <= 49; seq++ {
		require.Equal(t, OutcomeInOrder, tr.Observe(seq).Outcome)
	}
	res := tr.Observe(55)
	require.Equal(t, OutcomeMissing, res.Outcome)
	require.Equal(t, []uint16{50, 51, 52, 53, 54}, res.MissingSeqs)
}

func TestSequenceTrackerWrapReportsContiguousRun(t *testing.T) {
	tr := NewSequenceTracker()
	require.Equal(t, OutcomeInOrder, tr.Observe(65500).Outcome)
	res := tr.Observe(50)
	require.Equal(t, OutcomeMissing, res.Outcome)
	require.Len(t, res.MissingSeqs, 85)
	require.Equal(t, uint16(65501), res.MissingSeqs[0])
	require.Equal(t, uint16(65535), res.MissingSeqs[34])
	require.Equal(t, uint16(0), res.MissingSeqs[35])
	require.Equal(t, uint16(49), res.MissingSeqs[84])
}

func TestSequenceTrackerNoLossAcrossCleanWrap(t *testing.T) {
	tr := NewSequenceTracker()
	require.Equal(t, OutcomeInOrder, tr.Observe(65535).Outcome)
	require.Equal(t, OutcomeInOrder, tr.Observe(0).Outcome)

	tr2 := NewSequenceTracker()
	require.Equal(t, OutcomeInOrder, tr2.Observe(65534).Outcome)
	require.Equal(t, OutcomeInOrder, tr2.Observe(65535).Outcome)
	require.Equal(t, OutcomeInOrder, tr2.Observe(0).Outcome)
}

func TestSequenceTrackerResyncOnBigForwardJump(t *testing.T) {
	tr := NewSequenceTracker()
	require.Equal(t, OutcomeInOrder, tr.Observe(0).Outcome)
	res := tr.Observe(5000)
	require.Equal(t, OutcomeResync, res.Outcome)
	require.Empty(t, res.MissingSeqs)
}

func TestSequenceTrackerLateDuplicateIgnored(t *testing.T) {
	tr := NewSequenceTracker()
	require.Equal(t, OutcomeInOrder, tr.Observe(100).Outcome)
	require.Equal(t, OutcomeInOrder, tr.Observe(101).Outcome)
	res := tr.Observe(99)
	require.Equal(t, OutcomeLateOrDuplicate, res.Outcome)
	require.Equal(t, uint16(102), tr.ExpectedNext())
}

func TestBufferInsertIsIdempotentOnDuplicateSequence(t *testing.T) {
	b := NewBuffer(nil, DefaultMinDepth, DefaultMaxDepth)
	b.Insert(Packet{Sequence: 1, Timestamp: 100, Payload: []byte("a")})
	b.Insert(Packet{Sequence: 1, Timestamp: 100, Payload: []byte("a")})
	require.Equal(t, 1, b.Len())
}

func TestBufferPopWaitsForMinDepth(t *testing.T) {
	b := NewBuffer(nil, 3, DefaultMaxDepth)
	b.Insert(Packet{Sequence: 1, Timestamp: 352})
	b.Insert(Packet{Sequence: 2, Timestamp: 704})
	_, ok := b.Pop(time.Now())
	require.False(t, ok)
	b.Insert(Packet{Sequence: 3, Timestamp: 1056})
	p, ok := b.Pop(time.Now())
	require.True(t, ok)
	require.Equal(t, uint16(1), p.Sequence)
}

func TestBufferPopOrdersByTimestampNotInsertOrder(t *testing.T) {
	b := NewBuffer(nil, 1, DefaultMaxDepth)
	b.Insert(Packet{Sequence: 5, Timestamp: 1000})
	b.Insert(Packet{Sequence: 3, Timestamp: 500})
	b.Insert(Packet{Sequence: 4, Timestamp: 750})

	p1, _ := b.Pop(time.Now())
	p2, _ := b.Pop(time.Now())
	p3, _ := b.Pop(time.Now())
	require.Equal(t, []uint16{3, 4, 5}, []uint16{p1.Sequence, p2.Sequence, p3.Sequence})
}

func TestBufferOverflowDropsAndAdvancesIgnoringSchedule(t *testing.T) {
	mapper := timing.NewMapper(0, time.Now().Add(time.Hour), 44100, 0)
	b := NewBuffer(mapper, 1, 2)
	b.Insert(Packet{Sequence: 1, Timestamp: 0})
	b.Insert(Packet{Sequence: 2, Timestamp: 352})
	b.Insert(Packet{Sequence: 3, Timestamp: 704})
	p, ok := b.Pop(time.Now())
	require.True(t, ok)
	require.Equal(t, uint16(1), p.Sequence)
}

func TestBufferWaitsForScheduledInstant(t *testing.T) {
	mapper := timing.NewMapper(0, time.Now().Add(time.Hour), 44100, 0)
	b := NewBuffer(mapper, 1, DefaultMaxDepth)
	b.Insert(Packet{Sequence: 1, Timestamp: 0})
	_, ok := b.Pop(time.Now())
	require.False(t, ok)
}

func TestConcealerRepeatUsesLastGoodPayload(t *testing.T) {
	c := NewConcealer(ConcealRepeat, 4)
	c.Observe([]byte{0x01, 0x02, 0x03, 0x04})
	out := c.Conceal(4)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, out)
}

func TestConcealerSilenceIsZero(t *testing.T) {
	c := NewConcealer(ConcealSilence, 4)
	c.Observe([]byte{0x7f, 0x7f})
	out := c.Conceal(4)
	require.Equal(t, []byte{0, 0, 0, 0}, out)
}

func TestConcealerFadeOutDecaysTowardZero(t *testing.T) {
	c := NewConcealer(ConcealFadeOut, 4)
	c.Observe([]byte{0x7f, 0xff, 0x7f, 0xff})
	first := c.Conceal(4)
	c.Conceal(4)
	c.Conceal(4)
	last := c.Conceal(4)
	firstSample := int16(uint16(first[0])<<8 | uint16(first[1]))
	lastSample := int16(uint16(last[0])<<8 | uint16(last[1]))
	require.Less(t, lastSample, firstSample)
}

func TestConcealerInterpolateFallsBackToRepeat(t *testing.T) {
	c := NewConcealer(ConcealInterpolate, 4)
	c.Observe([]byte{0x09, 0x0a})
	out := c.Conceal(2)
	require.Equal(t, []byte{0x09, 0x0a}, out)
}
