package jitter

import (
	"container/heap"
	"time"

	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
	"github.com/bluenviron/airplay2/pkg/timing"
)

// Depths default to {min, target, max} = {10, 50, 200}, per spec.md 4.K.
// Target is advisory (informs the orchestrator's latency reporting);
// only min and max gate Pop.
const (
	DefaultMinDepth    = 10
	DefaultTargetDepth = 50
	DefaultMaxDepth    = 200
)

// Packet is one buffered, not-yet-decoded audio packet.
type Packet struct {
	Sequence  uint16
	Timestamp uint32
	Payload   []byte
}

type entry struct {
	Packet
	index int
}

// entryHeap orders entries by RTP timestamp using wrap-aware signed
// distance from the buffer's reference timestamp, since raw uint32
// comparison breaks across a wraparound.
type entryHeap struct {
	items []*entry
	ref   uint32
}

func (h entryHeap) Len() int { return len(h.items) }
func (h entryHeap) Less(i, j int) bool {
	di := airplayrtp.TimestampDistance(h.items[i].Timestamp, h.ref)
	dj := airplayrtp.TimestampDistance(h.items[j].Timestamp, h.ref)
	return di < dj
}
func (h entryHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(h.items)
	h.items = append(h.items, e)
}
func (h *entryHeap) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return e
}

// Buffer is the receiver's priority-queue jitter buffer.
type Buffer struct {
	heap      entryHeap
	seen      map[uint16]bool
	mapper    *timing.Mapper
	minDepth  int
	maxDepth  int
	haveRef   bool
}

// NewBuffer builds a Buffer that schedules playback instants via mapper.
func NewBuffer(mapper *timing.Mapper, minDepth, maxDepth int) *Buffer {
	return &Buffer{
		seen:     make(map[uint16]bool),
		mapper:   mapper,
		minDepth: minDepth,
		maxDepth: maxDepth,
	}
}

// Len returns the number of packets currently buffered.
func (b *Buffer) Len() int { return b.heap.Len() }

// Insert adds a packet, idempotent on duplicate sequence (spec.md 4.K).
func (b *Buffer) Insert(p Packet) {
	if b.seen[p.Sequence] {
		return
	}
	if !b.haveRef {
		b.heap.ref = p.Timestamp
		b.haveRef = true
	}
	b.seen[p.Sequence] = true
	heap.Push(&b.heap, &entry{Packet: p})
}

// Pop returns the earliest-timestamped packet if the buffer is ready to
// deliver it: either it has reached min depth and the packet's scheduled
// playback instant (per pkg/timing) has arrived, or the buffer has grown
// past max depth and must drop-and-advance regardless of timing.
func (b *Buffer) Pop(now time.Time) (Packet, bool) {
	if b.heap.Len() == 0 {
		return Packet{}, false
	}

	overflow := b.heap.Len() > b.maxDepth
	if !overflow {
		if b.heap.Len() < b.minDepth {
			return Packet{}, false
		}
		head := b.heap.items[0]
		if b.mapper != nil && b.mapper.PlaybackInstant(head.Timestamp).After(now) {
			return Packet{}, false
		}
	}

	e := heap.Pop(&b.heap).(*entry)
	delete(b.seen, e.Sequence)
	return e.Packet, true
}
