// Package emotion accumulates the dominant emotion label per frame.
package emotion

import (
	"sort"
	"sync"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// LabelCount is one tally row.
type LabelCount struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// Tally is a snapshot of accumulated counts. Counts are ordered by
// descending count; equal counts keep first-seen order.
type Tally struct {
	Counts []LabelCount `json:"counts" yaml:"counts"`
	Total  int          `json:"total" yaml:"total"`
}

// Empty reports whether no samples were collected.
func (t Tally) Empty() bool {
	return t.Total == 0
}

// Percent returns the share of total for count, or 0 when empty.
func (t Tally) Percent(count int) float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(count) / float64(t.Total) * 100
}

// Accumulator counts, per observed frame, which label scored highest.
type Accumulator struct {
	mu      sync.Mutex
	counts  map[string]int
	order   []string // first-seen order
	total   int
	current types.Scores
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{counts: make(map[string]int)}
}

// Observe records one frame's scores. The latest scores are always exposed
// via CurrentScores; an empty mapping leaves the tally untouched.
func (a *Accumulator) Observe(scores types.Scores) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = append(a.current[:0:0], scores...)

	top, ok := scores.Top()
	if !ok {
		return
	}
	if _, seen := a.counts[top.Label]; !seen {
		a.order = append(a.order, top.Label)
	}
	a.counts[top.Label]++
	a.total++
}

// CurrentScores returns the latest scores sorted by descending score.
func (a *Accumulator) CurrentScores() types.Scores {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Sorted()
}

// Snapshot returns the tally sorted by descending count.
func (a *Accumulator) Snapshot() Tally {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]LabelCount, 0, len(a.order))
	for _, label := range a.order {
		rows = append(rows, LabelCount{Label: label, Count: a.counts[label]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Count > rows[j].Count
	})
	return Tally{Counts: rows, Total: a.total}
}

// Reset clears the tally and the current scores.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts = make(map[string]int)
	a.order = nil
	a.total = 0
	a.current = nil
}
