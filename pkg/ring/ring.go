// Package ring implements the sender's retransmission ring buffer:
// a bounded, FIFO-evicting store of recently-sent packets keyed by RTP
// sequence number, per spec.md 4.J.
package ring

import (
	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
)

// Entry is a buffered packet, owned exclusively by the ring.
type Entry struct {
	Sequence  uint16
	Timestamp uint32
	Payload   []byte
}

// Ring is a single-writer/single-reader bounded FIFO of recently sent
// packets, default capacity 128 on the sender per spec.md 3.
type Ring struct {
	capacity int
	entries  []Entry
}

// New allocates a Ring with the given capacity.
func New(capacity int) *Ring {
	return &Ring{capacity: capacity}
}

// Push appends a new entry, evicting the oldest if the ring is full.
func (r *Ring) Push(e Entry) {
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

// GetRange returns every entry whose sequence lies in [first, first+count)
// under wrap-aware comparison, in the order they are currently stored.
// Entries already evicted are silently skipped, per spec.md 4.J.
func (r *Ring) GetRange(first uint16, count int) []Entry {
	var out []Entry
	for _, e := range r.entries {
		d := airplayrtp.SequenceDistance(e.Sequence, first)
		if d >= 0 && d < int32(count) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries currently retained.
func (r *Ring) Len() int { return len(r.entries) }
