// Package report builds the end-of-session speech report and persists it.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/emotion"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/timing"
)

// Title is the first line of every report.
const Title = "Toastmaster Toolbox - Speech Report"

// Report combines the timing, emotion and disfluency snapshots of a session.
type Report struct {
	ID              string        `json:"id,omitempty" yaml:"id,omitempty"`
	CreatedAt       time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	TargetSeconds   float64       `json:"target_seconds" yaml:"target_seconds"`
	ActualSeconds   float64       `json:"actual_seconds" yaml:"actual_seconds"`
	Disfluencies    int           `json:"disfluencies" yaml:"disfluencies"`
	DisfluencyTimes []float64     `json:"disfluency_times" yaml:"disfluency_times"`
	Emotions        emotion.Tally `json:"emotions" yaml:"emotions"`
}

// Build combines three snapshots. It has no side effects.
func Build(t timing.Snapshot, e emotion.Tally, d disfluency.Snapshot) Report {
	times := make([]float64, len(d.Timeline))
	copy(times, d.Timeline)
	counts := make([]emotion.LabelCount, len(e.Counts))
	copy(counts, e.Counts)

	return Report{
		TargetSeconds:   t.TargetSeconds,
		ActualSeconds:   t.ElapsedSeconds,
		Disfluencies:    d.Count,
		DisfluencyTimes: times,
		Emotions:        emotion.Tally{Counts: counts, Total: e.Total},
	}
}

// New is Build plus a fresh ID and creation time.
func New(t timing.Snapshot, e emotion.Tally, d disfluency.Snapshot, now time.Time) Report {
	r := Build(t, e, d)
	r.ID = uuid.NewString()
	r.CreatedAt = now
	return r
}

// Difference returns actual minus target; positive means over time.
func (r Report) Difference() float64 {
	return r.ActualSeconds - r.TargetSeconds
}

// TimingResult renders the signed difference. Exactly on target counts as under.
func (r Report) TimingResult() string {
	diff := r.Difference()
	if diff > 0 {
		return fmt.Sprintf("Over time by %.1f s", diff)
	}
	return fmt.Sprintf("Under time by %.1f s", math.Abs(diff))
}

// Text renders the plain-text report.
func (r Report) Text() string {
	times := "(none)"
	if len(r.DisfluencyTimes) > 0 {
		parts := make([]string, len(r.DisfluencyTimes))
		for i, t := range r.DisfluencyTimes {
			parts[i] = fmt.Sprintf("%.1fs", t)
		}
		times = strings.Join(parts, ", ")
	}

	var summary string
	if r.Emotions.Empty() {
		summary = "  No emotion samples collected."
	} else {
		rows := make([]string, len(r.Emotions.Counts))
		for i, c := range r.Emotions.Counts {
			rows[i] = fmt.Sprintf("  %-8s: %4d (%4.1f %%)", c.Label, c.Count, r.Emotions.Percent(c.Count))
		}
		summary = strings.Join(rows, "\n")
	}

	lines := []string{
		Title + "\n",
		fmt.Sprintf("Target Time: %.1f s", r.TargetSeconds),
		fmt.Sprintf("Actual Time: %.1f s", r.ActualSeconds),
		fmt.Sprintf("Timing Result: %s\n", r.TimingResult()),
		fmt.Sprintf("Total Disfluencies: %d", r.Disfluencies),
		fmt.Sprintf("Disfluency Times: %s\n", times),
		"Facial Expression Summary:",
		summary,
	}
	return strings.Join(lines, "\n")
}
