package pipeline

import (
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/emotion"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/timing"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// EstimateView is the stabilized estimate as shown to clients.
type EstimateView struct {
	Box    types.Region `json:"box"`
	Scores types.Scores `json:"emotions"`
	AgeMs  int64        `json:"age_ms"`
	Held   bool         `json:"held"`
}

// Status is the live telemetry snapshot pushed to clients.
type Status struct {
	Timestamp        float64             `json:"timestamp"`
	Timing           timing.Snapshot     `json:"timing"`
	FPS              float64             `json:"fps"`
	FrameIndex       uint64              `json:"frame_index"`
	DetectionEnabled bool                `json:"detection_enabled"`
	Mirror           bool                `json:"mirror"`
	SourceExhausted  bool                `json:"source_exhausted"`
	Estimate         *EstimateView       `json:"estimate"`
	CurrentScores    types.Scores        `json:"current_scores"`
	Emotions         emotion.Tally       `json:"emotions"`
	Disfluency       disfluency.Snapshot `json:"disfluency"`
}

// Status collects a consistent-enough view of every component at now.
func (p *Pipeline) Status() Status {
	now := p.now()
	last := p.LastCycle()

	st := Status{
		Timestamp:        float64(now.UnixNano()) / float64(time.Second),
		Timing:           p.engine.Tick(now),
		FPS:              p.rate.CurrentRate(),
		FrameIndex:       last.FrameIndex,
		DetectionEnabled: p.DetectionEnabled(),
		Mirror:           p.Mirror(),
		SourceExhausted:  p.Exhausted(),
		CurrentScores:    p.accumulator.CurrentScores(),
		Emotions:         p.accumulator.Snapshot(),
		Disfluency:       p.ledger.Snapshot(),
	}

	if est, ok := p.stabilizer.Current(now); ok {
		st.Estimate = &EstimateView{
			Box:    est.Detection.Region,
			Scores: est.Detection.Scores.Sorted(),
			AgeMs:  est.Age(now).Milliseconds(),
			Held:   last.Held,
		}
	}
	return st
}
