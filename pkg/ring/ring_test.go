package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetRangeReturnsOnlyLiveSubset(t *testing.T) {
	r := New(4)
	for i := uint16(0); i < 10; i++ {
		r.Push(Entry{Sequence: i, Payload: []byte{byte(i)}})
	}
	require.Equal(t, 4, r.Len())

	got := r.GetRange(0, 10)
	var seqs []uint16
	for _, e := range got {
		seqs = append(seqs, e.Sequence)
	}
	require.Equal(t, []uint16{6, 7, 8, 9}, seqs)
}

func TestGetRangeWrapAware(t *testing.T) {
	r := New(128)
	for i := 0; i < 5; i++ {
		r.Push(Entry{Sequence: uint16(65533 + i)})
	}
	got := r.GetRange(65533, 5)
	require.Len(t, got, 5)
}

func TestGetRangeEmptyWhenOutOfWindow(t *testing.T) {
	r := New(4)
	r.Push(Entry{Sequence: 100})
	got := r.GetRange(200, 5)
	require.Empty(t, got)
}
