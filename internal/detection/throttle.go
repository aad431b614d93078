package detection

import (
	"sync"
	"time"
)

// DefaultDiagnosticInterval limits detector fault diagnostics.
const DefaultDiagnosticInterval = 2 * time.Second

// Throttle lets one event through per interval and counts the rest.
type Throttle struct {
	mu         sync.Mutex
	interval   time.Duration
	last       time.Time
	suppressed int
}

// NewThrottle creates a throttle with the given minimum spacing.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultDiagnosticInterval
	}
	return &Throttle{interval: interval}
}

// Allow reports whether an event at now may be emitted. When it may, it
// also returns how many events were suppressed since the last one.
func (t *Throttle) Allow(now time.Time) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		return false, 0
	}
	n := t.suppressed
	t.suppressed = 0
	t.last = now
	return true, n
}
