// Package observability implements the router's non-transport metrics: a
// fixed-bucket latency histogram and, when enabled, OpenTelemetry request
// tracing linked by request id (§4.8).
package observability

import (
	"sort"
	"sync/atomic"
	"time"
)

// bucketBounds are the fixed log-scale histogram boundaries, each an
// inclusive upper bound in nanoseconds.
var bucketBounds = []time.Duration{
	time.Microsecond,
	10 * time.Microsecond,
	100 * time.Microsecond,
	time.Millisecond,
	10 * time.Millisecond,
	100 * time.Millisecond,
	time.Second,
	10 * time.Second,
}

// Histogram is a lock-free-read, fixed-bucket latency histogram plus an
// overflow bucket for anything past the last bound.
type Histogram struct {
	counts [len(bucketBounds) + 1]atomic.Uint64
	total  atomic.Uint64
	sumNs  atomic.Uint64
}

// NewHistogram constructs an empty histogram.
func NewHistogram() *Histogram { return &Histogram{} }

// Observe records one latency sample.
func (h *Histogram) Observe(d time.Duration) {
	idx := sort.Search(len(bucketBounds), func(i int) bool { return d <= bucketBounds[i] })
	h.counts[idx].Add(1)
	h.total.Add(1)
	if d > 0 {
		h.sumNs.Add(uint64(d.Nanoseconds()))
	}
}

// Snapshot is a point-in-time read of bucket counts and summary stats.
type Snapshot struct {
	BucketUpperBounds []time.Duration
	BucketCounts      []uint64
	Total             uint64
	Mean              time.Duration
}

// Snapshot reads the current bucket counts. Counts aren't read atomically
// as a whole (no cross-bucket lock), matching the atomic-counters contract
// elsewhere in the module — a reader may observe a sample landing after
// some buckets were read and before others.
func (h *Histogram) Snapshot() Snapshot {
	counts := make([]uint64, len(h.counts))
	for i := range h.counts {
		counts[i] = h.counts[i].Load()
	}
	total := h.total.Load()
	var mean time.Duration
	if total > 0 {
		mean = time.Duration(h.sumNs.Load() / total)
	}
	bounds := append([]time.Duration(nil), bucketBounds...)
	return Snapshot{BucketUpperBounds: bounds, BucketCounts: counts, Total: total, Mean: mean}
}

// Percentile approximates the pth percentile (0..100) latency by walking
// the cumulative bucket distribution and linearly interpolating within
// the bucket that contains the target rank. This is an approximation:
// within-bucket samples are assumed uniformly distributed.
func (s Snapshot) Percentile(p float64) time.Duration {
	if s.Total == 0 {
		return 0
	}
	target := p / 100 * float64(s.Total)
	var cumulative float64
	var lower time.Duration
	for i, count := range s.BucketCounts {
		upper := upperBoundFor(i)
		if count > 0 && cumulative+float64(count) >= target {
			frac := (target - cumulative) / float64(count)
			if frac < 0 {
				frac = 0
			}
			return lower + time.Duration(frac*float64(upper-lower))
		}
		cumulative += float64(count)
		lower = upper
	}
	return lower
}

func upperBoundFor(i int) time.Duration {
	if i < len(bucketBounds) {
		return bucketBounds[i]
	}
	return bucketBounds[len(bucketBounds)-1] * 10
}

// Reset zeroes every bucket and the running sum.
func (h *Histogram) Reset() {
	for i := range h.counts {
		h.counts[i].Store(0)
	}
	h.total.Store(0)
	h.sumNs.Store(0)
}
