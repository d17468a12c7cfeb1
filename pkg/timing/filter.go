package timing

import (
	"sort"
	"time"
)

// staleAfter is how long a clock sync datum is trusted without a
// refresh, per spec.md 3.
const staleAfter = 30 * time.Second

// maxRoundTrip rejects PTP samples whose round trip exceeds this,
// per spec.md 4.I.
const maxRoundTrip = 100 * time.Millisecond

const ewmaAlpha = 1.0 / 8.0

// EWMAFilter maintains a running exponentially-weighted offset estimate
// for the legacy NTP-style exchange, refreshed roughly every 3 seconds.
type EWMAFilter struct {
	have       bool
	offset     time.Duration
	lastUpdate time.Time
	now        func() time.Time
}

// NewEWMAFilter allocates a filter. nowFn defaults to time.Now.
func NewEWMAFilter(nowFn func() time.Time) *EWMAFilter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &EWMAFilter{now: nowFn}
}

// Update folds a new offset sample into the running estimate.
func (f *EWMAFilter) Update(sample time.Duration) {
	if !f.have {
		f.offset = sample
		f.have = true
	} else {
		f.offset = f.offset + time.Duration(ewmaAlpha*float64(sample-f.offset))
	}
	f.lastUpdate = f.now()
}

// Offset returns the current offset estimate and whether it is fresh
// (updated within the last 30 seconds).
func (f *EWMAFilter) Offset() (time.Duration, bool) {
	if !f.have {
		return 0, false
	}
	if f.now().Sub(f.lastUpdate) > staleAfter {
		return f.offset, false
	}
	return f.offset, true
}

// PTPFilter implements the AirPlay-2 offset filter: reject round trips
// over 100ms, keep the median of the best 8 of the last 32 accepted
// samples, per spec.md 4.I.
type PTPFilter struct {
	samples    []ptpSample
	lastUpdate time.Time
	now        func() time.Time
}

type ptpSample struct {
	offset    time.Duration
	roundTrip time.Duration
}

// NewPTPFilter allocates a PTP filter.
func NewPTPFilter(nowFn func() time.Time) *PTPFilter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &PTPFilter{now: nowFn}
}

// Submit offers a new (offset, roundTrip) sample, rejecting it outright
// if the round trip exceeds 100ms.
func (f *PTPFilter) Submit(offset, roundTrip time.Duration) bool {
	if roundTrip > maxRoundTrip {
		return false
	}
	f.samples = append(f.samples, ptpSample{offset: offset, roundTrip: roundTrip})
	if len(f.samples) > 32 {
		f.samples = f.samples[len(f.samples)-32:]
	}
	f.lastUpdate = f.now()
	return true
}

// Offset returns the median offset of the best 8 (lowest round trip) of
// the last 32 accepted samples, and whether the estimate is fresh.
func (f *PTPFilter) Offset() (time.Duration, bool) {
	if len(f.samples) == 0 {
		return 0, false
	}
	if f.now().Sub(f.lastUpdate) > staleAfter {
		return 0, false
	}

	sorted := append([]ptpSample(nil), f.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].roundTrip < sorted[j].roundTrip })

	n := 8
	if n > len(sorted) {
		n = len(sorted)
	}
	best := sorted[:n]
	sort.Slice(best, func(i, j int) bool { return best[i].offset < best[j].offset })

	mid := len(best) / 2
	if len(best)%2 == 1 {
		return best[mid].offset, true
	}
	return (best[mid-1].offset + best[mid].offset) / 2, true
}
