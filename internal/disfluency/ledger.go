// Package disfluency counts filler-word events ("ahs") reported by a
// remote Ah-Counter and keeps their per-session timeline.
package disfluency

import (
	"sync"
	"time"
)

// Event is delivered to observers after every increment.
type Event struct {
	Count    int       // Count after the increment
	At       time.Time // When the increment happened
	Recorded bool      // Placed on the session timeline
}

// Observer receives ledger events. It runs on the incrementing goroutine
// and must not block.
type Observer func(Event)

// Snapshot is a consistent view of the ledger.
type Snapshot struct {
	Count    int       `json:"count" yaml:"count"`
	Timeline []float64 `json:"timeline" yaml:"timeline"` // Seconds since session start
}

// Ledger is a monotonically increasing event counter plus an ordered
// timeline of occurrences recorded while a session is open.
// len(timeline) never exceeds count.
//
// The session window lives here so that counting an event, deciding
// whether a session is open and appending to the timeline happen under
// one lock. The timing engine opens and closes the window.
type Ledger struct {
	mu        sync.Mutex
	count     int
	timeline  []float64
	open      bool
	start     time.Time
	observers []Observer
	now       func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// SetClock overrides the time source used for events.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Subscribe registers an observer for increments.
func (l *Ledger) Subscribe(fn Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Increment adds one event and returns the new count. While a session is
// open the event is also placed on the timeline, relative to the session
// start. Observers are called after the lock is released, in
// registration order.
func (l *Ledger) Increment() int {
	l.mu.Lock()
	l.count++
	ev := Event{Count: l.count, At: l.now()}
	if l.open && !ev.At.Before(l.start) && len(l.timeline) < l.count {
		l.timeline = append(l.timeline, ev.At.Sub(l.start).Seconds())
		ev.Recorded = true
	}
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
	return ev.Count
}

// Count returns the current count.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// RecordOccurrence appends a relative time to the timeline. It refuses
// (returns false) when the timeline already holds count entries, which
// happens when a reset races an in-flight event.
func (l *Ledger) RecordOccurrence(seconds float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.timeline) >= l.count {
		return false
	}
	l.timeline = append(l.timeline, seconds)
	return true
}

// OpenSession starts a new timeline at start. Events stamped before start
// are counted only.
func (l *Ledger) OpenSession(start time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = true
	l.start = start
	l.timeline = nil
}

// CloseSession stops timeline recording; the timeline is kept for reports.
func (l *Ledger) CloseSession() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
}

// SessionOpen reports whether increments are placed on the timeline.
func (l *Ledger) SessionOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// ClearTimeline drops the timeline but keeps the count.
func (l *Ledger) ClearTimeline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeline = nil
}

// Reset zeroes the count, clears the timeline and closes the session.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count = 0
	l.timeline = nil
	l.open = false
	l.start = time.Time{}
}

// Snapshot returns a copy of the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl := make([]float64, len(l.timeline))
	copy(tl, l.timeline)
	return Snapshot{Count: l.count, Timeline: tl}
}
