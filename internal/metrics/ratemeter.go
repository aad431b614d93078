package metrics

import (
	"sync"
	"time"
)

// DefaultRateWindow is the number of timestamps kept by a RateMeter.
const DefaultRateWindow = 60

// RateMeter tracks the most recent frame timestamps and reports throughput.
type RateMeter struct {
	mu    sync.Mutex
	ring  []time.Time
	next  int
	count int
}

// NewRateMeter creates a meter over the last window timestamps.
func NewRateMeter(window int) *RateMeter {
	if window < 2 {
		window = DefaultRateWindow
	}
	return &RateMeter{ring: make([]time.Time, window)}
}

// Record appends a timestamp, evicting the oldest once the ring is full.
func (r *RateMeter) Record(ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring[r.next] = ts
	r.next = (r.next + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
}

// CurrentRate returns (samples-1)/(newest-oldest), or 0 with fewer than
// two samples or a non-positive span.
func (r *RateMeter) CurrentRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < 2 {
		return 0
	}

	newest := r.ring[(r.next-1+len(r.ring))%len(r.ring)]
	oldest := r.ring[(r.next-r.count+len(r.ring))%len(r.ring)]

	span := newest.Sub(oldest).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(r.count-1) / span
}

// Samples returns how many timestamps are currently held.
func (r *RateMeter) Samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Reset drops all samples.
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.count = 0
}
