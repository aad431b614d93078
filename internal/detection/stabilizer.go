package detection

import (
	"sync"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// DefaultHoldWindow is how long a detection stays valid without a refresh.
const DefaultHoldWindow = 700 * time.Millisecond

// Estimate is a stabilized detection and the time it was produced.
type Estimate struct {
	Detection types.Detection
	Source    time.Time
}

// Age returns how old the estimate is at now.
func (e Estimate) Age(now time.Time) time.Duration {
	return now.Sub(e.Source)
}

// Stabilizer holds the most recent accepted detection and serves it for
// a bounded hold window when the scheduler produces nothing.
type Stabilizer struct {
	mu     sync.Mutex
	hold   time.Duration
	stored *Estimate
}

// NewStabilizer creates a stabilizer with the given hold window.
func NewStabilizer(hold time.Duration) *Stabilizer {
	if hold <= 0 {
		hold = DefaultHoldWindow
	}
	return &Stabilizer{hold: hold}
}

// HoldWindow returns the configured hold window.
func (s *Stabilizer) HoldWindow() time.Duration {
	return s.hold
}

// Update feeds one cycle's selection. A non-nil det replaces the stored
// estimate. Otherwise the stored estimate is returned unchanged (timestamp
// not refreshed) while now-source < hold. ok is false when absent.
func (s *Stabilizer) Update(det *types.Detection, now time.Time) (Estimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if det != nil {
		s.stored = &Estimate{Detection: *det, Source: now}
		return *s.stored, true
	}
	return s.currentLocked(now)
}

// Current returns the estimate valid at now without feeding a new cycle.
func (s *Stabilizer) Current(now time.Time) (Estimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(now)
}

func (s *Stabilizer) currentLocked(now time.Time) (Estimate, bool) {
	if s.stored == nil || now.Sub(s.stored.Source) >= s.hold {
		return Estimate{}, false
	}
	return *s.stored, true
}

// Clear drops the stored estimate.
func (s *Stabilizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = nil
}
